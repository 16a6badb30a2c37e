package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// PersistenceError wraps a failure of the underlying store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// clampLimit maps a negative row limit to zero rows.
func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	return limit
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

const (
	alertExistsSQL = `SELECT EXISTS (SELECT 1 FROM alerts WHERE link = $1);`

	insertAlertSQL = `INSERT INTO alerts (
        title,
        summary,
        link,
        published,
        btc_amount,
        usdt_amount,
        usdc_amount,
        recorded_at,
        recorded_on
    ) VALUES (
        $1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9::date
    )
    ON CONFLICT (link) DO NOTHING
    RETURNING id;`

	listRecentAlertsSQL = `SELECT
        id,
        title,
        summary,
        link,
        published,
        btc_amount::text,
        usdt_amount::text,
        usdc_amount::text,
        recorded_at,
        to_char(recorded_on, 'YYYY-MM-DD')
    FROM alerts
    ORDER BY recorded_at DESC, id DESC
    LIMIT $1;`

	// single statement keeps the recompute atomic against concurrent inserts
	recomputeDailyAggregateSQL = `INSERT INTO daily_aggregates (
        date,
        btc_total,
        usdt_total,
        usdc_total,
        transaction_count,
        updated_at
    )
    SELECT
        $1::date,
        COALESCE(SUM(btc_amount), 0),
        COALESCE(SUM(usdt_amount), 0),
        COALESCE(SUM(usdc_amount), 0),
        COUNT(*),
        now()
    FROM alerts
    WHERE recorded_on = $1::date
    ON CONFLICT (date) DO UPDATE
    SET
        btc_total         = EXCLUDED.btc_total,
        usdt_total        = EXCLUDED.usdt_total,
        usdc_total        = EXCLUDED.usdc_total,
        transaction_count = EXCLUDED.transaction_count,
        updated_at        = EXCLUDED.updated_at
    RETURNING
        to_char(date, 'YYYY-MM-DD'),
        btc_total::text,
        usdt_total::text,
        usdc_total::text,
        transaction_count,
        updated_at;`

	getDailyAggregateSQL = `SELECT
        to_char(date, 'YYYY-MM-DD'),
        btc_total::text,
        usdt_total::text,
        usdc_total::text,
        transaction_count,
        updated_at
    FROM daily_aggregates
    WHERE date = $1::date;`

	listRecentDailyAggregatesSQL = `SELECT
        to_char(date, 'YYYY-MM-DD'),
        btc_total::text,
        usdt_total::text,
        usdc_total::text,
        transaction_count,
        updated_at
    FROM daily_aggregates
    ORDER BY date DESC
    LIMIT $1;`

	upsertPricePointSQL = `INSERT INTO price_points (
        date,
        price_usd,
        updated_at
    ) VALUES (
        $1::date,$2::numeric,now()
    )
    ON CONFLICT (date) DO UPDATE
    SET price_usd  = EXCLUDED.price_usd,
        updated_at = EXCLUDED.updated_at
    RETURNING to_char(date, 'YYYY-MM-DD'), price_usd::text, updated_at;`

	listRecentPricePointsSQL = `SELECT
        to_char(date, 'YYYY-MM-DD'),
        price_usd::text,
        updated_at
    FROM price_points
    ORDER BY date DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines dedup-aware alert persistence.
type AlertStore interface {
	AlertExists(ctx context.Context, link string) (bool, error)
	// InsertAlertIfAbsent reports inserted=false when link is already stored.
	InsertAlertIfAbsent(ctx context.Context, alert Alert) (Alert, bool, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// AggregateStore defines daily rollup persistence.
type AggregateStore interface {
	RecomputeDailyAggregate(ctx context.Context, date string) (DailyAggregate, error)
	GetDailyAggregate(ctx context.Context, date string) (DailyAggregate, bool, error)
	ListRecentDailyAggregates(ctx context.Context, limit int) ([]DailyAggregate, error)
}

// PriceStore defines reference price persistence.
type PriceStore interface {
	UpsertPricePoint(ctx context.Context, point PricePoint) (PricePoint, error)
	ListRecentPricePoints(ctx context.Context, limit int) ([]PricePoint, error)
}

// Repository is the full persistence boundary consumed by the pipeline.
type Repository interface {
	AlertStore
	AggregateStore
	PriceStore
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PostgresStore implements Repository on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates tables and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// session locks die with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AlertExists reports whether an alert with link is stored.
func (s *PostgresStore) AlertExists(ctx context.Context, link string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, alertExistsSQL, link).Scan(&exists); scanErr != nil {
		return false, persistErr("alert exists", scanErr)
	}
	return exists, nil
}

// InsertAlertIfAbsent persists alert unless its link is already stored.
func (s *PostgresStore) InsertAlertIfAbsent(ctx context.Context, alert Alert) (Alert, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, false, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Title,
		alert.Summary,
		alert.Link,
		alert.Published,
		alert.BTCAmount.String(),
		alert.USDTAmount.String(),
		alert.USDCAmount.String(),
		alert.RecordedAt,
		alert.RecordedOn,
	)

	var id int64
	if scanErr := row.Scan(&id); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Alert{}, false, nil
		}
		return Alert{}, false, persistErr("insert alert", scanErr)
	}
	alert.ID = id
	return alert, true, nil
}

// ListRecentAlerts lists most recent alerts, newest first.
func (s *PostgresStore) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	limit = clampLimit(limit)
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, persistErr("list recent alerts", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0, limit)
	for rows.Next() {
		var (
			rec                      Alert
			btcStr, usdtStr, usdcStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Summary,
			&rec.Link,
			&rec.Published,
			&btcStr,
			&usdtStr,
			&usdcStr,
			&rec.RecordedAt,
			&rec.RecordedOn,
		); err != nil {
			return nil, persistErr("scan alert", err)
		}
		if err := parseDecimals(
			decimalField{"btc amount", btcStr, &rec.BTCAmount},
			decimalField{"usdt amount", usdtStr, &rec.USDTAmount},
			decimalField{"usdc amount", usdcStr, &rec.USDCAmount},
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, persistErr("list recent alerts", rows.Err())
	}
	return alerts, nil
}

// RecomputeDailyAggregate rebuilds date's rollup from the alert table and upserts it.
func (s *PostgresStore) RecomputeDailyAggregate(ctx context.Context, date string) (DailyAggregate, error) {
	pool, err := s.getPool()
	if err != nil {
		return DailyAggregate{}, err
	}
	agg, scanErr := scanDailyAggregate(pool.QueryRow(ctx, recomputeDailyAggregateSQL, date))
	if scanErr != nil {
		return DailyAggregate{}, persistErr("recompute daily aggregate", scanErr)
	}
	return agg, nil
}

// GetDailyAggregate loads the stored rollup for date.
func (s *PostgresStore) GetDailyAggregate(ctx context.Context, date string) (DailyAggregate, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return DailyAggregate{}, false, err
	}
	agg, scanErr := scanDailyAggregate(pool.QueryRow(ctx, getDailyAggregateSQL, date))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return DailyAggregate{}, false, nil
		}
		return DailyAggregate{}, false, persistErr("get daily aggregate", scanErr)
	}
	return agg, true, nil
}

// ListRecentDailyAggregates lists rollups ordered by descending date.
func (s *PostgresStore) ListRecentDailyAggregates(ctx context.Context, limit int) ([]DailyAggregate, error) {
	limit = clampLimit(limit)
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDailyAggregatesSQL, limit)
	if queryErr != nil {
		return nil, persistErr("list daily aggregates", queryErr)
	}
	defer rows.Close()

	aggs := make([]DailyAggregate, 0, limit)
	for rows.Next() {
		agg, scanErr := scanDailyAggregate(rows)
		if scanErr != nil {
			return nil, persistErr("scan daily aggregate", scanErr)
		}
		aggs = append(aggs, agg)
	}
	if rows.Err() != nil {
		return nil, persistErr("list daily aggregates", rows.Err())
	}
	return aggs, nil
}

// UpsertPricePoint stores the price for point.Date, replacing any earlier value that day.
func (s *PostgresStore) UpsertPricePoint(ctx context.Context, point PricePoint) (PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return PricePoint{}, err
	}
	rec, scanErr := scanPricePoint(pool.QueryRow(ctx, upsertPricePointSQL, point.Date, point.PriceUSD.String()))
	if scanErr != nil {
		return PricePoint{}, persistErr("upsert price point", scanErr)
	}
	return rec, nil
}

// ListRecentPricePoints lists prices ordered by descending date.
func (s *PostgresStore) ListRecentPricePoints(ctx context.Context, limit int) ([]PricePoint, error) {
	limit = clampLimit(limit)
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricePointsSQL, limit)
	if queryErr != nil {
		return nil, persistErr("list price points", queryErr)
	}
	defer rows.Close()

	points := make([]PricePoint, 0, limit)
	for rows.Next() {
		point, scanErr := scanPricePoint(rows)
		if scanErr != nil {
			return nil, persistErr("scan price point", scanErr)
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, persistErr("list price points", rows.Err())
	}
	return points, nil
}

func scanDailyAggregate(row pgx.Row) (DailyAggregate, error) {
	var (
		agg                      DailyAggregate
		btcStr, usdtStr, usdcStr string
	)
	if err := row.Scan(&agg.Date, &btcStr, &usdtStr, &usdcStr, &agg.TransactionCount, &agg.UpdatedAt); err != nil {
		return DailyAggregate{}, err
	}
	if err := parseDecimals(
		decimalField{"btc total", btcStr, &agg.BTCTotal},
		decimalField{"usdt total", usdtStr, &agg.USDTTotal},
		decimalField{"usdc total", usdcStr, &agg.USDCTotal},
	); err != nil {
		return DailyAggregate{}, err
	}
	return agg, nil
}

func scanPricePoint(row pgx.Row) (PricePoint, error) {
	var (
		point    PricePoint
		priceStr string
	)
	if err := row.Scan(&point.Date, &priceStr, &point.UpdatedAt); err != nil {
		return PricePoint{}, err
	}
	if err := parseDecimals(decimalField{"price", priceStr, &point.PriceUSD}); err != nil {
		return PricePoint{}, err
	}
	return point, nil
}

type decimalField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = value
	}
	return nil
}

var (
	_ Repository     = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
