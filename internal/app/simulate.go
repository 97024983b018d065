package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"alphafeed/internal/feed"
	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
)

// SimulateResult summarizes one simulated frame.
type SimulateResult struct {
	Accepted bool
	NewsID   string
	Tickers  []string
	Quotes   []news.Quote
	Alerts   int
}

// Simulate runs one upstream frame through the validation gate and the
// ingestion pipeline against the configured rules. Telegram delivery
// happens when it is enabled.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (SimulateResult, error) {
	frame, err := loadFrame(opts)
	if err != nil {
		return SimulateResult{}, err
	}

	backend, _, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return SimulateResult{}, err
	}
	defer closeBackend()

	c := a.wire(backend, metrics.Nop{})
	c.service.Start(ctx)
	defer c.service.Wait()

	return simulateFrame(ctx, c, frame), nil
}

func simulateFrame(ctx context.Context, c components, frame []byte) SimulateResult {
	msg, ok := feed.ParseMessage(frame)
	if !ok {
		return SimulateResult{}
	}

	item := news.NormalizeNow(msg)
	return SimulateResult{
		Accepted: true,
		NewsID:   item.ID,
		Tickers:  item.Tickers,
		Quotes:   news.Quotes(msg, item.Tickers),
		Alerts:   c.service.Inject(ctx, item),
	}
}

func loadFrame(opts SimulateOptions) ([]byte, error) {
	switch {
	case opts.Frame != "" && opts.Path != "":
		return nil, errors.New("only one of --frame or --file may be provided")
	case opts.Frame != "":
		return []byte(opts.Frame), nil
	case opts.Path != "":
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("read frame file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("one of --frame or --file is required")
	}
}
