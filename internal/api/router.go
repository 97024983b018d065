// Package api serves the websocket push channel and the REST endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"alphafeed/internal/alerting"
	"alphafeed/internal/broadcast"
	"alphafeed/internal/logging"
	"alphafeed/internal/news"
)

const requestTimeout = 15 * time.Second

// NewsLister pages through stored news.
type NewsLister interface {
	ListNews(ctx context.Context, page, pageSize int) ([]news.News, int64, error)
}

// RuleManager manages alert rules and events.
type RuleManager interface {
	Rules(ctx context.Context) ([]alerting.Rule, error)
	CreateRule(ctx context.Context, in alerting.RuleInput) (alerting.Rule, error)
	UpdateRule(ctx context.Context, id string, patch alerting.RulePatch) (alerting.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	UnreadEvents(ctx context.Context) ([]alerting.Event, error)
	MarkEventsRead(ctx context.Context) error
}

// Injector pushes a news item through the ingestion pipeline.
type Injector interface {
	Inject(ctx context.Context, item news.News) int
}

// PeerHub tracks downstream websocket peers.
type PeerHub interface {
	Register(peer broadcast.Peer)
	Unregister(peer broadcast.Peer)
	ConnectedPeers() int
}

// Deps bundles everything the router serves.
type Deps struct {
	News     NewsLister
	Rules    RuleManager
	Injector Injector
	Hub      PeerHub

	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// Health backs /healthz when set.
	Health func(ctx context.Context) error

	// DevRoutes enables /api/_dev endpoints.
	DevRoutes      bool
	AllowedOrigins []string
	Peer           broadcast.PeerOptions
	Logger         zerolog.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(deps Deps) http.Handler {
	logger := logging.Component(deps.Logger, "api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(deps))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	ws := &wsHandler{
		hub:      deps.Hub,
		opts:     deps.Peer,
		upgrader: newUpgrader(deps.AllowedOrigins),
		logger:   logger,
	}
	r.Get("/ws", ws.ServeHTTP)
	r.Get("/_ws", ws.ServeHTTP)

	h := &handlers{news: deps.News, rules: deps.Rules, logger: logger}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/news", h.listNews)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Get("/events", h.unreadEvents)
			r.Post("/events/read", h.markEventsRead)
			r.Patch("/{id}", h.updateRule)
			r.Delete("/{id}", h.deleteRule)
		})

		dev := &devHandler{injector: deps.Injector, hub: deps.Hub, enabled: deps.DevRoutes}
		r.Post("/_dev/seed-news", dev.seedNews)
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peers := 0
		if deps.Hub != nil {
			peers = deps.Hub.ConnectedPeers()
		}
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error(), "peers": peers})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "peers": peers})
	}
}
