package news

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestExtractTickersPrefersSuggestions(t *testing.T) {
	msg := RawMessage{
		Suggestions: []Suggestion{{Coin: "HBAR"}, {Coin: "eth"}, {Coin: "HBAR"}},
		Symbols:     []string{"BTC_USDT"},
	}

	got := ExtractTickers(msg)
	want := []string{"HBAR", "eth", "HBAR"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractTickersFromSymbols(t *testing.T) {
	cases := []struct {
		name    string
		symbols []string
		want    []string
	}{
		{"dedup pairs", []string{"ETH_USDT", "ETH_BTC"}, []string{"ETH"}},
		{"keeps order", []string{"SOL_USDT", "BTC_USDT", "SOL_BTC"}, []string{"SOL", "BTC"}},
		{"no separator", []string{"DOGE", "DOGE_USDT"}, []string{"DOGE"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractTickers(RawMessage{Symbols: tc.symbols})
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestExtractTickersEmpty(t *testing.T) {
	got := ExtractTickers(RawMessage{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestNormalizeMinimalMessage(t *testing.T) {
	received := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	item := Normalize(RawMessage{ID: "x", Title: "T", Time: 1000}, received)

	if item.ID != "x" || item.Title != "T" {
		t.Fatalf("identity fields not copied: %+v", item)
	}
	if item.Body != "T" {
		t.Fatalf("body should fall back to title, got %q", item.Body)
	}
	if item.Source != "unknown" || item.SourceName != "unknown" {
		t.Fatalf("expected unknown source attribution, got %q / %q", item.Source, item.SourceName)
	}
	if item.URL != "" {
		t.Fatalf("expected empty url, got %q", item.URL)
	}
	if len(item.Tickers) != 0 {
		t.Fatalf("expected no tickers, got %v", item.Tickers)
	}
	if !item.Time.Equal(time.UnixMilli(1000)) {
		t.Fatalf("unexpected time %s", item.Time)
	}
	if !item.ReceivedAt.Equal(received) {
		t.Fatalf("receivedAt should be the injected clock, got %s", item.ReceivedAt)
	}
}

func TestNormalizeFallbackChains(t *testing.T) {
	item := Normalize(RawMessage{ID: "p1", Title: "post", Type: "direct", Body: "long body", Link: "https://x.com/p/1"}, time.Now())

	if item.Body != "long body" {
		t.Fatalf("body should use body when en missing, got %q", item.Body)
	}
	if item.Source != "direct" || item.SourceName != "direct" {
		t.Fatalf("source should fall back to type, got %q / %q", item.Source, item.SourceName)
	}
	if item.URL != "https://x.com/p/1" {
		t.Fatalf("url should fall back to link, got %q", item.URL)
	}

	item = Normalize(RawMessage{ID: "a1", Title: "t", En: "english", Body: "b", Source: "Blogs", SourceName: "HBAR", URL: "u", Link: "l"}, time.Now())
	if item.Body != "english" || item.SourceName != "HBAR" || item.URL != "u" {
		t.Fatalf("primary fields should win: %+v", item)
	}

	item = Normalize(RawMessage{ID: "a2", Title: "t", Source: "Binance"}, time.Now())
	if item.SourceName != "Binance" {
		t.Fatalf("sourceName should fall back to source, got %q", item.SourceName)
	}
}

func TestNormalizeKeepsRawFrame(t *testing.T) {
	raw := json.RawMessage(`{"_id":"n1","title":"BTC ATH","time":1700000000000}`)
	var msg RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	msg.Raw = raw

	item := NormalizeNow(msg)
	if string(item.RawData) != string(raw) {
		t.Fatalf("raw data should be verbatim, got %s", item.RawData)
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal news: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode news: %v", err)
	}
	if decoded["time"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("time should serialise as ISO-8601, got %v", decoded["time"])
	}
}
