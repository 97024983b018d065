package news

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// quoteSuffixes are tried in order when picking the reference pair for a ticker.
var quoteSuffixes = []string{"USDT", "USDC", "USD", "BUSD"}

// Quote is the first traded price the feed attached to a ticker when the
// headline went out.
type Quote struct {
	Ticker string
	Symbol string
	Price  decimal.Decimal
	Supply *decimal.Decimal
}

// MarketCap is Price times Supply; ok is false when the supply is unknown.
func (q Quote) MarketCap() (decimal.Decimal, bool) {
	if q.Supply == nil {
		return decimal.Zero, false
	}
	return q.Price.Mul(*q.Supply), true
}

// Quotes returns one dollar-denominated quote per ticker, in ticker order.
// Tickers without a USD-like pair in firstPrice are skipped.
func Quotes(msg RawMessage, tickers []string) []Quote {
	if len(msg.FirstPrice) == 0 {
		return nil
	}

	prices := make(map[string]decimal.Decimal, len(msg.FirstPrice))
	for symbol, price := range msg.FirstPrice {
		prices[strings.ToUpper(symbol)] = price
	}
	supply := make(map[string]*decimal.Decimal, len(msg.Suggestions))
	for _, s := range msg.Suggestions {
		if s.Supply != nil {
			supply[strings.ToUpper(s.Coin)] = s.Supply
		}
	}

	quotes := make([]Quote, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, ticker := range tickers {
		base := strings.ToUpper(ticker)
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}

		for _, suffix := range quoteSuffixes {
			price, ok := prices[base+suffix]
			if !ok || !price.IsPositive() {
				continue
			}
			quotes = append(quotes, Quote{Ticker: ticker, Symbol: base + suffix, Price: price, Supply: supply[base]})
			break
		}
	}
	return quotes
}

// QuotesOf extracts quotes from a stored item's verbatim frame. Items that
// did not come from the feed have none.
func QuotesOf(item News) []Quote {
	if len(item.RawData) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item.RawData, &fields); err != nil {
		return nil
	}

	var msg RawMessage
	if raw, ok := fields["firstPrice"]; ok {
		_ = json.Unmarshal(raw, &msg.FirstPrice)
	}
	if raw, ok := fields["suggestions"]; ok {
		_ = json.Unmarshal(raw, &msg.Suggestions)
	}
	return Quotes(msg, item.Tickers)
}
