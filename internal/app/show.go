package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"alphafeed/internal/news"
)

// Show prints the most recent stored news items.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show news")
	}
	defer closeStore()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	items, total, err := store.ListNews(ctx, 1, limit)
	if err != nil {
		return err
	}
	return writeNewsTable(os.Stdout, items, total)
}

func writeNewsTable(out io.Writer, items []news.News, total int64) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "no news found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSource\tTickers\tTitle")
	for _, item := range items {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			item.Time.UTC().Format(time.RFC3339),
			sanitizeInline(item.SourceName),
			strings.Join(item.Tickers, ","),
			sanitizeInline(truncate(item.Title, 96)),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%d of %d stored items\n", len(items), total)
	return err
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func truncate(v string, max int) string {
	runes := []rune(v)
	if len(runes) <= max {
		return v
	}
	return string(runes[:max-1]) + "…"
}
