package app

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"rate-ledger/internal/analytics"
)

// ratePoint is one rate_update event reduced to chartable form.
type ratePoint struct {
	At   time.Time
	Rate decimal.Decimal
}

// Export writes archived events as ledger JSON, and the rate history as
// CSV and/or a PNG chart.
func (a *App) Export(opts ExportOptions) error {
	if opts.JSONPath == "" && opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --json, --csv or --png must be provided")
	}

	filter, err := buildFilter(opts.Name, opts.From, opts.To)
	if err != nil {
		return err
	}

	ledger, err := a.openArchive()
	if err != nil {
		return err
	}

	if opts.JSONPath != "" {
		data, err := analytics.Encode(ledger.Query(filter), a.Config.Ledger.Pretty)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(opts.JSONPath, data); err != nil {
			return err
		}
	}

	if opts.CSVPath == "" && opts.PNGPath == "" {
		return nil
	}

	filter.Name = analytics.EventRateUpdate
	points := ratePoints(ledger.Query(filter))
	if len(points) == 0 {
		a.Logger.Info().Msg("no rate updates found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, a.Config.ResolveMaxPoints(opts.MaxPoints))
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting rate history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, a.Config.App.Pair, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// ratePoints skips events whose rate parameter does not parse.
func ratePoints(events []analytics.Event) []ratePoint {
	points := make([]ratePoint, 0, len(events))
	for _, e := range events {
		rate, err := decimal.NewFromString(e.Param("rate"))
		if err != nil {
			continue
		}
		points = append(points, ratePoint{At: e.Timestamp, Rate: rate})
	}
	return points
}

func downsamplePoints(points []ratePoint, max int) []ratePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]ratePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []ratePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "rate"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.At.UTC().Format(time.RFC3339Nano), p.Rate.String()}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, pair string, points []ratePoint) error {
	if len(points) < 2 {
		return errors.New("at least two rate updates are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		y[i] = p.Rate.InexactFloat64()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: pair,
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    pair,
				XValues: x,
				YValues: y,
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
