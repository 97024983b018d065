package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"alphafeed/internal/news"
)

// VolumeBucket counts stored news items in one time window.
type VolumeBucket struct {
	Start   time.Time
	Count   int
	Tickers map[string]int
}

// Export renders stored news volume as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	bucket := a.Config.ResolveBucket(opts.Bucket)
	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	items, err := store.ListNewsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.Logger.Info().Msg("no news found for export window")
		return nil
	}

	buckets := downsampleBuckets(bucketNews(items, from, to, bucket), maxPoints)
	a.Logger.Info().Int("items", len(items)).Int("buckets", len(buckets)).Dur("bucket", bucket).Msg("exporting news volume")

	if opts.CSVPath != "" {
		if err := writeVolumeCSV(opts.CSVPath, buckets); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeVolumePNG(opts.PNGPath, buckets); err != nil {
			return err
		}
	}
	return nil
}

// bucketNews groups items by event time into contiguous windows over
// [from, to). Empty windows are kept so the series has no gaps.
func bucketNews(items []news.News, from, to time.Time, size time.Duration) []VolumeBucket {
	start := from.Truncate(size)
	n := int(to.Sub(start)/size) + 1

	buckets := make([]VolumeBucket, 0, n)
	for t := start; t.Before(to); t = t.Add(size) {
		buckets = append(buckets, VolumeBucket{Start: t, Tickers: map[string]int{}})
	}

	for _, item := range items {
		idx := int(item.Time.Sub(start) / size)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].Count++
		for _, ticker := range item.Tickers {
			buckets[idx].Tickers[ticker]++
		}
	}
	return buckets
}

func downsampleBuckets(buckets []VolumeBucket, max int) []VolumeBucket {
	if max <= 0 || len(buckets) <= max {
		return buckets
	}
	if max == 1 {
		return buckets[:1]
	}

	result := make([]VolumeBucket, 0, max)
	step := float64(len(buckets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		result = append(result, buckets[idx])
	}
	return result
}

func writeVolumeCSV(path string, buckets []VolumeBucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"bucket_ts", "news_count", "top_tickers"}); err != nil {
		return err
	}
	for _, b := range buckets {
		record := []string{
			b.Start.Format(time.RFC3339),
			strconv.Itoa(b.Count),
			topTickers(b.Tickers, 5),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// topTickers renders the n most mentioned tickers as "BTC:4;ETH:2".
func topTickers(counts map[string]int, n int) string {
	type pair struct {
		ticker string
		count  int
	}
	pairs := make([]pair, 0, len(counts))
	for t, c := range counts {
		pairs = append(pairs, pair{t, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].ticker < pairs[j].ticker
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.ticker + ":" + strconv.Itoa(p.count)
	}
	return strings.Join(parts, ";")
}

func writeVolumePNG(path string, buckets []VolumeBucket) error {
	if len(buckets) < 2 {
		return errors.New("png export needs at least two buckets")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(buckets))
	y := make([]float64, len(buckets))
	for i, b := range buckets {
		x[i] = b.Start
		y[i] = float64(b.Count)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "News items",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "News volume",
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
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
