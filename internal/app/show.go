package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Record kinds accepted by Show.
const (
	KindAlerts     = "alerts"
	KindAggregates = "aggregates"
	KindPrices     = "prices"
)

// default row counts per kind when no limit is given
var defaultLimits = map[string]int{
	KindAlerts:     50,
	KindAggregates: 30,
	KindPrices:     30,
}

// Show prints the most recent rows of one kind, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" {
		kind = KindAlerts
	}
	limit := opts.Limit
	if limit <= 0 {
		var ok bool
		if limit, ok = defaultLimits[kind]; !ok {
			return fmt.Errorf("unknown kind %q (want alerts, aggregates or prices)", opts.Kind)
		}
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	defer writer.Flush()

	switch kind {
	case KindAlerts:
		alerts, err := store.ListRecentAlerts(ctx, limit)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(writer, "no alerts found")
			return nil
		}
		fmt.Fprintln(writer, "ID\tRecorded\tBTC\tUSDT\tUSDC\tTitle\tLink")
		for _, alert := range alerts {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				alert.ID,
				alert.RecordedAt.In(loc).Format(time.DateTime),
				formatAmount(alert.BTCAmount),
				formatAmount(alert.USDTAmount),
				formatAmount(alert.USDCAmount),
				truncate(sanitizeInline(alert.Title), 48),
				alert.Link,
			)
		}
	case KindAggregates:
		aggs, err := store.ListRecentDailyAggregates(ctx, limit)
		if err != nil {
			return err
		}
		if len(aggs) == 0 {
			fmt.Fprintln(writer, "no aggregates found")
			return nil
		}
		fmt.Fprintln(writer, "Date\tBTC\tUSDT\tUSDC\tTransfers\tUpdated")
		for _, agg := range aggs {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				agg.Date,
				formatAmount(agg.BTCTotal),
				formatAmount(agg.USDTTotal),
				formatAmount(agg.USDCTotal),
				humanize.Comma(agg.TransactionCount),
				humanize.Time(agg.UpdatedAt),
			)
		}
	case KindPrices:
		points, err := store.ListRecentPricePoints(ctx, limit)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Fprintln(writer, "no prices found")
			return nil
		}
		fmt.Fprintln(writer, "Date\tPrice (USD)\tUpdated")
		for _, point := range points {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", point.Date, formatAmount(point.PriceUSD), humanize.Time(point.UpdatedAt))
		}
	default:
		return fmt.Errorf("unknown kind %q (want alerts, aggregates or prices)", opts.Kind)
	}
	return nil
}

// formatAmount groups the integer part with commas and keeps the exact fraction.
func formatAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	whole := d.Truncate(0)
	frac := d.Sub(whole).Abs()

	s := humanize.BigComma(whole.BigInt())
	if d.IsNegative() && whole.IsZero() {
		s = "-" + s
	}
	if !frac.IsZero() {
		// "0.25" -> ".25"
		s += strings.TrimPrefix(frac.String(), "0")
	}
	return s
}

func truncate(v string, n int) string {
	r := []rune(v)
	if len(r) <= n {
		return v
	}
	return string(r[:n-1]) + "…"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
