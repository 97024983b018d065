package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alphafeed/internal/alerting"
	"alphafeed/internal/api"
	"alphafeed/internal/broadcast"
	"alphafeed/internal/config"
	"alphafeed/internal/feed"
	"alphafeed/internal/logging"
	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
	"alphafeed/internal/scheduler"
	"alphafeed/internal/service"
	"alphafeed/internal/storage"
)

// Backend is the persistence surface the commands need. Both the
// PostgreSQL store and the in-memory store satisfy it.
type Backend interface {
	alerting.Store
	InsertNewsItem(ctx context.Context, item news.News) error
	ListNews(ctx context.Context, page, pageSize int) ([]news.News, int64, error)
	ListNewsBetween(ctx context.Context, from, to time.Time) ([]news.News, error)
	DeleteNewsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ Backend = (*storage.Store)(nil)
	_ Backend = (*storage.Memory)(nil)
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// base is untagged; components derive their own component field from it.
	base zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), base: logger}
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting.Telegram
	if !cfg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.base)
}

// openStore connects to PostgreSQL. With no DSN configured it returns a
// nil store and a nil closer.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// openBackend falls back to the in-memory store when no database is configured.
func (a *App) openBackend(ctx context.Context) (Backend, func(ctx context.Context) error, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		return storage.NewMemory(), nil, func() {}, nil
	}
	return store, store.Ping, closeStore, nil
}

// components is the wired ingestion graph shared by Run and Simulate.
type components struct {
	backend Backend
	alerts  *alerting.Service
	hub     *broadcast.Hub
	service *service.Service
}

func (a *App) wire(backend Backend, recorder metrics.Recorder) components {
	alerts := alerting.NewService(backend, alerting.NewRulesCache(), a.base)
	hub := broadcast.NewHub(a.base, recorder)
	svc := service.New(backend, alerts, hub, service.Options{
		Notifier: a.newNotifier(),
		Metrics:  recorder,
		Logger:   a.base,
	})
	return components{backend: backend, alerts: alerts, hub: hub, service: svc}
}

// Run executes the long-running relay: upstream feed, broadcast hub, HTTP
// surface and periodic jobs. It returns once every part has shut down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, health, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	c := a.wire(backend, recorder)
	c.service.Start(ctx)

	client := feed.NewClient(
		feed.WebsocketDialer(a.Config.Feed.URL, feed.DialerOptions{HandshakeTimeout: a.Config.Feed.HandshakeTimeout}),
		feed.Options{
			Backoff: feed.Backoff{Base: a.Config.Feed.BaseBackoff, Max: a.Config.Feed.MaxBackoff},
			Logger:  a.base,
			Metrics: recorder,
		},
	)
	c.service.Attach(client)

	sched, err := a.newScheduler(c)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		News:           backend,
		Rules:          c.alerts,
		Injector:       c.service,
		Hub:            c.hub,
		Metrics:        metrics.Handler(registry),
		Health:         health,
		DevRoutes:      !a.Config.App.IsProduction(),
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Peer: broadcast.PeerOptions{
			Buffer:    a.Config.Server.PeerBuffer,
			WriteWait: a.Config.Server.WriteWait,
			PongWait:  a.Config.Server.PongWait,
		},
		Logger: a.base,
	})
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start feed client: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("addr", srv.Addr).Str("feed", a.Config.Feed.URL).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()

		client.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	err = g.Wait()
	c.service.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("relay terminated with error")
		return err
	}

	a.Logger.Info().Msg("relay stopped")
	return nil
}

func (a *App) newScheduler(c components) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.base)

	if err := sched.Add(scheduler.Job{
		Name:     "rules-refresh",
		Interval: a.Config.Rules.RefreshInterval,
		Tick: func(ctx context.Context, _ time.Time) error {
			return c.alerts.RefreshCache(ctx)
		},
	}); err != nil {
		return nil, err
	}

	maxAge := a.Config.Retention.NewsMaxAge
	if maxAge > 0 {
		if err := sched.Add(scheduler.Job{
			Name:      "news-retention",
			Interval:  a.Config.Retention.Interval,
			Align:     true,
			Immediate: true,
			Tick: func(ctx context.Context, at time.Time) error {
				return a.pruneNews(ctx, c.backend, at.Add(-maxAge))
			},
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func (a *App) pruneNews(ctx context.Context, backend Backend, cutoff time.Time) error {
	removed, err := backend.DeleteNewsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune news: %w", err)
	}
	if removed > 0 {
		a.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned stored news")
	}
	return nil
}

// ExportOptions hold parameters for exporting news volume.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	Bucket    time.Duration
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the simulate command. Exactly one of Frame
// and Path is set.
type SimulateOptions struct {
	Frame string
	Path  string
}
