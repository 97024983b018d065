package news

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ConnectionStatus describes the link to the upstream feed.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// RawMessage is an upstream frame as received. Article-like and post-like
// frames share this shape; the normalizer resolves the differences.
type RawMessage struct {
	ID          string                     `json:"_id"`
	Title       string                     `json:"title"`
	Time        int64                      `json:"time"`
	Source      string                     `json:"source,omitempty"`
	SourceName  string                     `json:"sourceName,omitempty"`
	Type        string                     `json:"type,omitempty"`
	URL         string                     `json:"url,omitempty"`
	Link        string                     `json:"link,omitempty"`
	En          string                     `json:"en,omitempty"`
	Body        string                     `json:"body,omitempty"`
	Icon        string                     `json:"icon,omitempty"`
	Image       string                     `json:"image,omitempty"`
	Symbols     []string                   `json:"symbols,omitempty"`
	Suggestions []Suggestion               `json:"suggestions,omitempty"`
	Actions     []Action                   `json:"actions,omitempty"`
	FirstPrice  map[string]decimal.Decimal `json:"firstPrice,omitempty"`
	Delay       int64                      `json:"delay,omitempty"`

	// Raw holds the verbatim frame bytes.
	Raw json.RawMessage `json:"-"`
}

// Suggestion is an upstream ticker hint attached to a frame.
type Suggestion struct {
	Coin    string           `json:"coin"`
	Found   []string         `json:"found,omitempty"`
	Symbols []ExchangeSymbol `json:"symbols,omitempty"`
	Supply  *decimal.Decimal `json:"supply,omitempty"`
}

// ExchangeSymbol pairs a trading symbol with the venue listing it.
type ExchangeSymbol struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// Action is display metadata for quick-trade buttons.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon"`
}

// News is the canonical, normalized news record.
type News struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Source     string          `json:"source"`
	SourceName string          `json:"sourceName"`
	URL        string          `json:"url"`
	Tickers    []string        `json:"tickers"`
	Time       time.Time       `json:"time"`
	ReceivedAt time.Time       `json:"receivedAt"`
	RawData    json.RawMessage `json:"rawData"`
}
