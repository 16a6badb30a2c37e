package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// fixed width, always written in UTC so TEXT ordering follows time ordering
const sqliteTimeLayout = "2006-01-02 15:04:05.000000-07:00"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// SQLiteStore implements Repository on an embedded SQLite database.
// Reads run concurrently under WAL; writes are serialised by mu.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// AlertExists reports whether an alert with link is stored.
func (s *SQLiteStore) AlertExists(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE link = ?)`, link).Scan(&exists)
	if err != nil {
		return false, persistErr("alert exists", err)
	}
	return exists, nil
}

// InsertAlertIfAbsent persists alert unless its link is already stored.
func (s *SQLiteStore) InsertAlertIfAbsent(ctx context.Context, alert Alert) (Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (title, summary, link, published, btc_amount, usdt_amount, usdc_amount, recorded_at, recorded_on)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(link) DO NOTHING`,
		alert.Title,
		alert.Summary,
		alert.Link,
		alert.Published,
		alert.BTCAmount.String(),
		alert.USDTAmount.String(),
		alert.USDCAmount.String(),
		sqliteTime(alert.RecordedAt),
		alert.RecordedOn,
	)
	if err != nil {
		return Alert{}, false, persistErr("insert alert", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Alert{}, false, persistErr("insert alert", err)
	}
	if affected == 0 {
		return Alert{}, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Alert{}, false, persistErr("insert alert", err)
	}
	alert.ID = id
	return alert, true, nil
}

// ListRecentAlerts lists most recent alerts, newest first.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	limit = clampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, link, published, btc_amount, usdt_amount, usdc_amount, recorded_at, recorded_on
		 FROM alerts
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("list recent alerts", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0, limit)
	for rows.Next() {
		var (
			rec                      Alert
			btcStr, usdtStr, usdcStr string
			recordedAt               string
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Summary, &rec.Link, &rec.Published,
			&btcStr, &usdtStr, &usdcStr, &recordedAt, &rec.RecordedOn); err != nil {
			return nil, persistErr("scan alert", err)
		}
		if err := parseDecimals(
			decimalField{"btc amount", btcStr, &rec.BTCAmount},
			decimalField{"usdt amount", usdtStr, &rec.USDTAmount},
			decimalField{"usdc amount", usdcStr, &rec.USDCAmount},
		); err != nil {
			return nil, err
		}
		if rec.RecordedAt, err = time.Parse(sqliteTimeLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list recent alerts", err)
	}
	return alerts, nil
}

// RecomputeDailyAggregate rebuilds date's rollup from every alert recorded that
// day and upserts it. Sums are done in decimal to avoid SQLite's float SUM.
func (s *SQLiteStore) RecomputeDailyAggregate(ctx context.Context, date string) (DailyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DailyAggregate{}, persistErr("recompute daily aggregate", err)
	}
	defer tx.Rollback() //nolint:errcheck

	agg, err := sumAlertsOn(ctx, tx, date)
	if err != nil {
		return DailyAggregate{}, err
	}
	agg.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_aggregates (date, btc_total, usdt_total, usdc_total, transaction_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		     btc_total = excluded.btc_total,
		     usdt_total = excluded.usdt_total,
		     usdc_total = excluded.usdc_total,
		     transaction_count = excluded.transaction_count,
		     updated_at = excluded.updated_at`,
		agg.Date, agg.BTCTotal.String(), agg.USDTTotal.String(), agg.USDCTotal.String(),
		agg.TransactionCount, sqliteTime(agg.UpdatedAt))
	if err != nil {
		return DailyAggregate{}, persistErr("upsert daily aggregate", err)
	}
	if err := tx.Commit(); err != nil {
		return DailyAggregate{}, persistErr("recompute daily aggregate", err)
	}
	return agg, nil
}

func sumAlertsOn(ctx context.Context, tx *sql.Tx, date string) (DailyAggregate, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT btc_amount, usdt_amount, usdc_amount FROM alerts WHERE recorded_on = ?`, date)
	if err != nil {
		return DailyAggregate{}, persistErr("sum alerts", err)
	}
	defer rows.Close()

	agg := DailyAggregate{Date: date, BTCTotal: decimal.Zero, USDTTotal: decimal.Zero, USDCTotal: decimal.Zero}
	for rows.Next() {
		var btcStr, usdtStr, usdcStr sql.NullString
		if err := rows.Scan(&btcStr, &usdtStr, &usdcStr); err != nil {
			return DailyAggregate{}, persistErr("sum alerts", err)
		}
		var btc, usdt, usdc decimal.Decimal
		if err := parseDecimals(
			decimalField{"btc amount", orZero(btcStr), &btc},
			decimalField{"usdt amount", orZero(usdtStr), &usdt},
			decimalField{"usdc amount", orZero(usdcStr), &usdc},
		); err != nil {
			return DailyAggregate{}, err
		}
		agg.BTCTotal = agg.BTCTotal.Add(btc)
		agg.USDTTotal = agg.USDTTotal.Add(usdt)
		agg.USDCTotal = agg.USDCTotal.Add(usdc)
		agg.TransactionCount++
	}
	if err := rows.Err(); err != nil {
		return DailyAggregate{}, persistErr("sum alerts", err)
	}
	return agg, nil
}

func orZero(v sql.NullString) string {
	if !v.Valid || v.String == "" {
		return "0"
	}
	return v.String
}

// GetDailyAggregate loads the stored rollup for date.
func (s *SQLiteStore) GetDailyAggregate(ctx context.Context, date string) (DailyAggregate, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date, btc_total, usdt_total, usdc_total, transaction_count, updated_at
		 FROM daily_aggregates WHERE date = ?`, date)
	agg, err := scanSQLiteAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyAggregate{}, false, nil
	}
	if err != nil {
		return DailyAggregate{}, false, persistErr("get daily aggregate", err)
	}
	return agg, true, nil
}

// ListRecentDailyAggregates lists rollups ordered by descending date.
func (s *SQLiteStore) ListRecentDailyAggregates(ctx context.Context, limit int) ([]DailyAggregate, error) {
	limit = clampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, btc_total, usdt_total, usdc_total, transaction_count, updated_at
		 FROM daily_aggregates ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("list daily aggregates", err)
	}
	defer rows.Close()

	aggs := make([]DailyAggregate, 0, limit)
	for rows.Next() {
		agg, err := scanSQLiteAggregate(rows)
		if err != nil {
			return nil, persistErr("scan daily aggregate", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list daily aggregates", err)
	}
	return aggs, nil
}

// UpsertPricePoint stores the price for point.Date, replacing any earlier value that day.
func (s *SQLiteStore) UpsertPricePoint(ctx context.Context, point PricePoint) (PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	point.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_points (date, price_usd, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET price_usd = excluded.price_usd, updated_at = excluded.updated_at`,
		point.Date, point.PriceUSD.String(), sqliteTime(point.UpdatedAt))
	if err != nil {
		return PricePoint{}, persistErr("upsert price point", err)
	}
	return point, nil
}

// ListRecentPricePoints lists prices ordered by descending date.
func (s *SQLiteStore) ListRecentPricePoints(ctx context.Context, limit int) ([]PricePoint, error) {
	limit = clampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, price_usd, updated_at FROM price_points ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("list price points", err)
	}
	defer rows.Close()

	points := make([]PricePoint, 0, limit)
	for rows.Next() {
		var (
			point             PricePoint
			priceStr, updated string
		)
		if err := rows.Scan(&point.Date, &priceStr, &updated); err != nil {
			return nil, persistErr("scan price point", err)
		}
		if err := parseDecimals(decimalField{"price", priceStr, &point.PriceUSD}); err != nil {
			return nil, err
		}
		if point.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list price points", err)
	}
	return points, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAggregate(row rowScanner) (DailyAggregate, error) {
	var (
		agg                      DailyAggregate
		btcStr, usdtStr, usdcStr string
		updated                  string
	)
	if err := row.Scan(&agg.Date, &btcStr, &usdtStr, &usdcStr, &agg.TransactionCount, &updated); err != nil {
		return DailyAggregate{}, err
	}
	if err := parseDecimals(
		decimalField{"btc total", btcStr, &agg.BTCTotal},
		decimalField{"usdt total", usdtStr, &agg.USDTTotal},
		decimalField{"usdc total", usdcStr, &agg.USDCTotal},
	); err != nil {
		return DailyAggregate{}, err
	}
	updatedAt, err := time.Parse(sqliteTimeLayout, updated)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("parse updated_at: %w", err)
	}
	agg.UpdatedAt = updatedAt
	return agg, nil
}

var _ Repository = (*SQLiteStore)(nil)
