package storage

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id          BIGSERIAL PRIMARY KEY,
		title       TEXT        NOT NULL DEFAULT '',
		summary     TEXT        NOT NULL DEFAULT '',
		link        TEXT        NOT NULL UNIQUE,
		published   TEXT        NOT NULL DEFAULT '',
		btc_amount  NUMERIC     NOT NULL DEFAULT 0,
		usdt_amount NUMERIC     NOT NULL DEFAULT 0,
		usdc_amount NUMERIC     NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL,
		recorded_on DATE        NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_recorded_on ON alerts (recorded_on)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_recorded_at ON alerts (recorded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS daily_aggregates (
		date              DATE        PRIMARY KEY,
		btc_total         NUMERIC     NOT NULL DEFAULT 0,
		usdt_total        NUMERIC     NOT NULL DEFAULT 0,
		usdc_total        NUMERIC     NOT NULL DEFAULT 0,
		transaction_count BIGINT      NOT NULL DEFAULT 0,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS price_points (
		date       DATE        PRIMARY KEY,
		price_usd  NUMERIC     NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// amounts are TEXT so decimal values round-trip exactly
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL DEFAULT '',
		summary     TEXT NOT NULL DEFAULT '',
		link        TEXT NOT NULL UNIQUE,
		published   TEXT NOT NULL DEFAULT '',
		btc_amount  TEXT NOT NULL DEFAULT '0',
		usdt_amount TEXT NOT NULL DEFAULT '0',
		usdc_amount TEXT NOT NULL DEFAULT '0',
		recorded_at TEXT NOT NULL,
		recorded_on TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_recorded_on ON alerts(recorded_on)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_recorded_at ON alerts(recorded_at)`,

	`CREATE TABLE IF NOT EXISTS daily_aggregates (
		date              TEXT PRIMARY KEY,
		btc_total         TEXT    NOT NULL DEFAULT '0',
		usdt_total        TEXT    NOT NULL DEFAULT '0',
		usdc_total        TEXT    NOT NULL DEFAULT '0',
		transaction_count INTEGER NOT NULL DEFAULT 0,
		updated_at        TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS price_points (
		date       TEXT PRIMARY KEY,
		price_usd  TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}
