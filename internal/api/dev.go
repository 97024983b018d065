package api

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"alphafeed/internal/news"
)

var (
	seedSources = []string{"Twitter", "Blog", "Binance", "CoinDesk", "The Block"}
	seedTickers = []string{"BTC", "ETH", "SOL", "XRP", "DOGE", "ADA", "AVAX", "LINK"}
	seedTitles  = []string{
		"Bitcoin surges past $100K as institutional demand grows",
		"Ethereum ETF sees record inflows",
		"SEC approves new crypto regulation framework",
		"Solana TVL reaches all-time high",
		"Major exchange lists new memecoin",
		"DeFi protocol exploited for $50M",
		"Central bank announces CBDC pilot program",
		"Whale moves 10,000 BTC to cold storage",
	}
)

type devHandler struct {
	injector Injector
	hub      PeerHub
	enabled  bool
}

type seedResponse struct {
	OK     bool   `json:"ok"`
	Peers  int    `json:"peers"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Alerts int    `json:"alerts"`
}

// POST /api/_dev/seed-news
func (h *devHandler) seedNews(w http.ResponseWriter, r *http.Request) {
	if !h.enabled || h.injector == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}

	item := syntheticNews(time.Now().UTC())
	peers := 0
	if h.hub != nil {
		peers = h.hub.ConnectedPeers()
	}
	alerts := h.injector.Inject(r.Context(), item)

	writeJSON(w, http.StatusOK, seedResponse{OK: true, Peers: peers, ID: item.ID, Title: item.Title, Alerts: alerts})
}

func syntheticNews(now time.Time) news.News {
	source := seedSources[rand.Intn(len(seedSources))]
	title := seedTitles[rand.Intn(len(seedTitles))]

	tickers := make([]string, 0, len(seedTickers))
	for _, t := range seedTickers {
		if rand.Float64() > 0.7 {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		tickers = append(tickers, "BTC")
	}

	return news.News{
		ID:         fmt.Sprintf("dev-%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Title:      title,
		Body:       title + ". This is a dev-seeded news item for testing the real-time feed.",
		Source:     source,
		SourceName: source,
		URL:        "https://example.com/dev-news",
		Tickers:    tickers,
		Time:       now,
		ReceivedAt: now,
	}
}
