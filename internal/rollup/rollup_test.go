package rollup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whale-alerts/internal/storage"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestDayUsesTargetTimezone(t *testing.T) {
	r := New(nil, shanghai(t), zerolog.Nop())

	// 20:30 UTC on May 1st is already May 2nd in Shanghai
	utc := time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC)
	if got := r.Day(utc); got != "2024-05-02" {
		t.Fatalf("Day(%s) = %s, want 2024-05-02", utc, got)
	}
}

func TestRecomputeWithoutStore(t *testing.T) {
	r := New(nil, time.UTC, zerolog.Nop())
	if _, err := r.Recompute(context.Background(), "2024-05-01"); !errors.Is(err, storage.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestRecomputeRejectsBadDate(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bad.db"), time.Second)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(store.Close)

	r := New(store, time.UTC, zerolog.Nop())
	if _, err := r.Recompute(context.Background(), "05/01/2024"); err == nil {
		t.Fatalf("非法日期应报错")
	}
}

func TestTodayUsesClock(t *testing.T) {
	r := New(nil, shanghai(t), zerolog.Nop())
	r.now = func() time.Time { return time.Date(2024, 12, 31, 16, 0, 0, 0, time.UTC) }
	if got := r.Today(); got != "2025-01-01" {
		t.Fatalf("Today = %s, want 2025-01-01", got)
	}
}

func TestRecomputeSumsSameDay(t *testing.T) {
	loc := shanghai(t)
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rollup.db"), time.Second)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(store.Close)

	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, loc)
	for i, amounts := range [][3]string{{"1", "0", "0"}, {"2", "5", "0"}} {
		_, _, err := store.InsertAlertIfAbsent(ctx, storage.Alert{
			Link:       "https://t.me/misttrack_alert/" + string(rune('a'+i)),
			BTCAmount:  decimal.RequireFromString(amounts[0]),
			USDTAmount: decimal.RequireFromString(amounts[1]),
			USDCAmount: decimal.RequireFromString(amounts[2]),
			RecordedAt: at.Add(time.Duration(i) * time.Hour),
			RecordedOn: "2024-05-01",
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	r := New(store, loc, zerolog.Nop())
	first, err := r.Recompute(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !first.BTCTotal.Equal(decimal.NewFromInt(3)) || !first.USDTTotal.Equal(decimal.NewFromInt(5)) ||
		!first.USDCTotal.IsZero() || first.TransactionCount != 2 {
		t.Fatalf("汇总不正确: %+v", first)
	}

	second, err := r.Recompute(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("Recompute again: %v", err)
	}
	if !second.SameTotals(first) {
		t.Fatalf("重复计算结果应一致: %+v vs %+v", first, second)
	}
}
