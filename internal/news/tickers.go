package news

import "strings"

// ExtractTickers derives the ordered ticker set of a frame.
// Suggestions win over symbols; symbols are reduced to their base asset.
func ExtractTickers(msg RawMessage) []string {
	if len(msg.Suggestions) > 0 {
		tickers := make([]string, 0, len(msg.Suggestions))
		for _, s := range msg.Suggestions {
			tickers = append(tickers, s.Coin)
		}
		return tickers
	}

	if len(msg.Symbols) > 0 {
		seen := make(map[string]struct{}, len(msg.Symbols))
		tickers := make([]string, 0, len(msg.Symbols))
		for _, symbol := range msg.Symbols {
			base := symbol
			if parts := strings.Split(symbol, "_"); len(parts) > 1 {
				base = parts[0]
			}
			if _, dup := seen[base]; dup {
				continue
			}
			seen[base] = struct{}{}
			tickers = append(tickers, base)
		}
		return tickers
	}

	return []string{}
}
