// Package rollup rebuilds daily aggregates from persisted alerts.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whale-alerts/internal/storage"
)

// Rollup recomputes the aggregate of one calendar day in a fixed timezone.
type Rollup struct {
	store  storage.AggregateStore
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Rollup. A nil loc falls back to UTC.
func New(store storage.AggregateStore, loc *time.Location, logger zerolog.Logger) *Rollup {
	if loc == nil {
		loc = time.UTC
	}
	return &Rollup{
		store:  store,
		loc:    loc,
		logger: logger.With().Str("component", "rollup").Logger(),
		now:    time.Now,
	}
}

// Day returns the calendar-day key of t in the rollup timezone.
func (r *Rollup) Day(t time.Time) string {
	return t.In(r.loc).Format(storage.DateLayout)
}

// Today returns the current calendar-day key in the rollup timezone.
func (r *Rollup) Today() string {
	return r.Day(r.now())
}

// Recompute rebuilds and upserts the aggregate for date (YYYY-MM-DD).
// It is a full recomputation and safe to call any number of times.
func (r *Rollup) Recompute(ctx context.Context, date string) (storage.DailyAggregate, error) {
	if r.store == nil {
		return storage.DailyAggregate{}, storage.ErrNotConfigured
	}
	if _, err := time.Parse(storage.DateLayout, date); err != nil {
		return storage.DailyAggregate{}, fmt.Errorf("rollup date %q: %w", date, err)
	}

	agg, err := r.store.RecomputeDailyAggregate(ctx, date)
	if err != nil {
		return storage.DailyAggregate{}, fmt.Errorf("recompute %s: %w", date, err)
	}

	r.logger.Info().
		Str("date", date).
		Str("btc_total", agg.BTCTotal.String()).
		Str("usdt_total", agg.USDTTotal.String()).
		Str("usdc_total", agg.USDCTotal.String()).
		Int64("transactions", agg.TransactionCount).
		Msg("daily aggregate updated")
	return agg, nil
}
