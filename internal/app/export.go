package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tondonate/internal/storage"
)

// Export renders verified-donation history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -30)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	totals, err := store.DailyVerifiedTotals(ctx, from, to)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		a.Logger.Info().Msg("no verified donations in export window")
		return nil
	}

	downsampled := downsampleTotals(totals, opts.MaxPoints)
	a.Logger.Info().Int("days", len(totals)).Int("exported", len(downsampled)).Msg("exporting donation history")

	if opts.CSVPath != "" {
		if err := writeTotalsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTotalsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTotals(totals []storage.DailyTotal, max int) []storage.DailyTotal {
	if max <= 0 || len(totals) <= max {
		return totals
	}

	result := make([]storage.DailyTotal, 0, max)
	step := float64(len(totals)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(totals) {
			idx = len(totals) - 1
		}
		result = append(result, totals[idx])
	}
	return result
}

func writeTotalsCSV(path string, totals []storage.DailyTotal) error {
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

	header := []string{"day", "verified_count", "amount_ton"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, total := range totals {
		record := []string{
			total.Day.Format("2006-01-02"),
			strconv.FormatInt(total.Count, 10),
			total.AmountTon.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTotalsPNG(path string, totals []storage.DailyTotal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(totals))
	amounts := make([]float64, len(totals))
	counts := make([]float64, len(totals))

	for i, total := range totals {
		x[i] = total.Day
		amounts[i] = total.AmountTon.InexactFloat64()
		counts[i] = float64(total.Count)
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Donations (TON)",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Verified count",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Amount (TON)",
				XValues: x,
				YValues: amounts,
			},
			chart.TimeSeries{
				Name:    "Count",
				XValues: x,
				YValues: counts,
				YAxis:   chart.YAxisSecondary,
			},
		},
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
