package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day key format shared by alerts, aggregates and prices.
const DateLayout = "2006-01-02"

// Alert represents one persisted large-transfer announcement.
type Alert struct {
	ID         int64
	Title      string
	Summary    string
	Link       string
	Published  string
	BTCAmount  decimal.Decimal
	USDTAmount decimal.Decimal
	USDCAmount decimal.Decimal
	RecordedAt time.Time
	// RecordedOn is RecordedAt's calendar day in the target timezone.
	RecordedOn string
}

// DailyAggregate is the rollup of all alerts recorded on Date.
type DailyAggregate struct {
	Date             string
	BTCTotal         decimal.Decimal
	USDTTotal        decimal.Decimal
	USDCTotal        decimal.Decimal
	TransactionCount int64
	UpdatedAt        time.Time
}

// SameTotals reports whether two aggregates carry identical sums and counts.
func (d DailyAggregate) SameTotals(other DailyAggregate) bool {
	return d.Date == other.Date &&
		d.BTCTotal.Equal(other.BTCTotal) &&
		d.USDTTotal.Equal(other.USDTTotal) &&
		d.USDCTotal.Equal(other.USDCTotal) &&
		d.TransactionCount == other.TransactionCount
}

// PricePoint is the last observed reference price for Date.
type PricePoint struct {
	Date      string
	PriceUSD  decimal.Decimal
	UpdatedAt time.Time
}
