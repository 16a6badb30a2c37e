package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPostgresStoreNotConfigured(t *testing.T) {
	var s *PostgresStore
	ctx := context.Background()

	if _, err := s.AlertExists(ctx, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("AlertExists: want ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.InsertAlertIfAbsent(ctx, Alert{Link: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertAlertIfAbsent: want ErrNotConfigured, got %v", err)
	}
	if _, err := s.RecomputeDailyAggregate(ctx, "2024-01-01"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("RecomputeDailyAggregate: want ErrNotConfigured, got %v", err)
	}
	if _, err := s.UpsertPricePoint(ctx, PricePoint{Date: "2024-01-01", PriceUSD: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("UpsertPricePoint: want ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: want ErrNotConfigured, got %v", err)
	}
	s.Close()
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := persistErr("insert alert", cause)

	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "insert alert" {
		t.Fatalf("应能识别为 PersistenceError: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("PersistenceError 应保留原始错误")
	}
}

func TestParseDecimalsRejectsGarbage(t *testing.T) {
	var d decimal.Decimal
	if err := parseDecimals(decimalField{"btc", "abc", &d}); err == nil {
		t.Fatal("非法数字应报错")
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{-10: 0, -1: 0, 0: 0, 25: 25}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Fatalf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
