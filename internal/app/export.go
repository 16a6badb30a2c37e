package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"whale-alerts/internal/storage"
)

// dailyRow joins a day's aggregate with its reference price, if any.
type dailyRow struct {
	Date      time.Time
	Aggregate storage.DailyAggregate
	Price     decimal.Decimal
	HasPrice  bool
}

// Export renders recent daily history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	days := a.Config.ResolveDays(opts.Days)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	aggs, err := store.ListRecentDailyAggregates(ctx, days)
	if err != nil {
		return err
	}
	points, err := store.ListRecentPricePoints(ctx, days)
	if err != nil {
		return err
	}

	rows, err := joinDaily(aggs, points)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no daily aggregates found for export window")
		return nil
	}
	a.Logger.Info().Int("days", len(rows)).Msg("exporting daily history")

	if opts.CSVPath != "" {
		if err := writeDailyCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDailyPNG(opts.PNGPath, rows); err != nil {
			return err
		}
	}

	return nil
}

// joinDaily returns one row per aggregate day, oldest first.
func joinDaily(aggs []storage.DailyAggregate, points []storage.PricePoint) ([]dailyRow, error) {
	prices := make(map[string]decimal.Decimal, len(points))
	for _, p := range points {
		prices[p.Date] = p.PriceUSD
	}

	rows := make([]dailyRow, 0, len(aggs))
	for _, agg := range aggs {
		day, err := time.Parse(storage.DateLayout, agg.Date)
		if err != nil {
			return nil, err
		}
		price, ok := prices[agg.Date]
		rows = append(rows, dailyRow{Date: day, Aggregate: agg, Price: price, HasPrice: ok})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func writeDailyCSV(path string, rows []dailyRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "btc_total", "usdt_total", "usdc_total", "transaction_count", "btc_price_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		price := ""
		if row.HasPrice {
			price = row.Price.String()
		}
		record := []string{
			row.Aggregate.Date,
			row.Aggregate.BTCTotal.String(),
			row.Aggregate.USDTTotal.String(),
			row.Aggregate.USDCTotal.String(),
			strconv.FormatInt(row.Aggregate.TransactionCount, 10),
			price,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeDailyPNG(path string, rows []dailyRow) error {
	if len(rows) < 2 {
		return errors.New("png export needs at least two days of aggregates")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	btc := make([]float64, len(rows))
	usdt := make([]float64, len(rows))
	usdc := make([]float64, len(rows))
	var priceX []time.Time
	var price []float64

	for i, row := range rows {
		x[i] = row.Date
		btc[i] = row.Aggregate.BTCTotal.InexactFloat64()
		usdt[i] = row.Aggregate.USDTTotal.InexactFloat64()
		usdc[i] = row.Aggregate.USDCTotal.InexactFloat64()
		if row.HasPrice {
			priceX = append(priceX, row.Date)
			price = append(price, row.Price.InexactFloat64())
		}
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	series := []chart.Series{
		chart.TimeSeries{Name: "BTC moved", XValues: x, YValues: btc},
		chart.TimeSeries{Name: "USDT moved", XValues: x, YValues: usdt},
		chart.TimeSeries{Name: "USDC moved", XValues: x, YValues: usdc},
	}
	// go-chart needs at least two points to draw a line
	if len(price) > 1 {
		series = append(series, chart.TimeSeries{
			Name:    "BTC price (USD)",
			XValues: priceX,
			YValues: price,
			YAxis:   chart.YAxisSecondary,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount moved",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "BTC price (USD)",
			ValueFormatter: amountFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
