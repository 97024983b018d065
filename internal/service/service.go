package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphafeed/internal/alerting"
	"alphafeed/internal/broadcast"
	"alphafeed/internal/feed"
	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
)

const notifyTimeout = 15 * time.Second

// NewsStore persists canonical news items.
type NewsStore interface {
	InsertNewsItem(ctx context.Context, item news.News) error
}

// Alerts exposes the active-rules snapshot and alert event persistence.
type Alerts interface {
	RefreshCache(ctx context.Context) error
	ActiveRules() []alerting.Rule
	InsertEvent(ctx context.Context, match alerting.Match) (alerting.Event, error)
}

// Broadcaster pushes events to downstream peers.
type Broadcaster interface {
	Broadcast(event broadcast.Event) error
}

// FeedSource is the upstream client the orchestrator subscribes to.
type FeedSource interface {
	OnNews(handler feed.NewsHandler)
	OnStatusChange(handler feed.StatusHandler)
}

// Options carries optional collaborators.
type Options struct {
	Notifier alerting.Notifier
	Metrics  metrics.Recorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Service wires feed messages through normalization, broadcast,
// persistence and alert evaluation.
type Service struct {
	store    NewsStore
	alerts   Alerts
	hub      Broadcaster
	notifier alerting.Notifier
	metrics  metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time

	// ingest serializes Inject across the feed goroutine and HTTP callers.
	ingest        sync.Mutex
	notifications sync.WaitGroup
}

// New constructs the ingestion orchestrator.
func New(store NewsStore, alerts Alerts, hub Broadcaster, opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    store,
		alerts:   alerts,
		hub:      hub,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "service").Logger(),
		now:      opts.Now,
	}
}

// Start loads the initial rules snapshot. A failure leaves the snapshot
// empty and is not fatal.
func (s *Service) Start(ctx context.Context) {
	if err := s.alerts.RefreshCache(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial rules refresh failed, starting with no active rules")
		return
	}
	s.logger.Info().Int("rules", len(s.alerts.ActiveRules())).Msg("active rules loaded")
}

// Attach subscribes the orchestrator to the feed.
func (s *Service) Attach(source FeedSource) {
	source.OnNews(s.HandleMessage)
	source.OnStatusChange(s.HandleStatus)
}

// HandleMessage normalizes an accepted upstream frame and injects it.
func (s *Service) HandleMessage(ctx context.Context, msg news.RawMessage) {
	s.Inject(ctx, news.Normalize(msg, s.now()))
}

// HandleStatus relays an upstream connection status to every peer.
func (s *Service) HandleStatus(status news.ConnectionStatus) {
	if err := s.hub.Broadcast(broadcast.StatusEvent(status)); err != nil {
		s.logger.Error().Err(err).Str("status", string(status)).Msg("failed to broadcast status")
	}
}

// Inject runs one news item through the pipeline: broadcast, persist,
// evaluate, then persist and broadcast each match. It returns how many
// alert events were broadcast. Concurrent calls run one at a time.
func (s *Service) Inject(ctx context.Context, item news.News) int {
	s.ingest.Lock()
	defer s.ingest.Unlock()

	if err := s.hub.Broadcast(broadcast.NewsEvent(item)); err != nil {
		s.logger.Error().Err(err).Str("news_id", item.ID).Msg("failed to broadcast news")
	} else {
		s.metrics.NewsBroadcast()
	}

	if err := s.store.InsertNewsItem(ctx, item); err != nil {
		s.metrics.NewsPersistFailed()
		s.logger.Error().Err(err).Str("news_id", item.ID).Msg("failed to persist news")
	}

	matches, err := s.evaluate(item)
	if err != nil {
		s.logger.Error().Err(err).Str("news_id", item.ID).Msg("alert evaluation failed")
		return 0
	}

	sent := 0
	for _, match := range matches {
		ev, err := s.alerts.InsertEvent(ctx, match)
		if err != nil {
			s.metrics.AlertPersistFailed()
			s.logger.Error().Err(err).
				Str("news_id", item.ID).
				Str("rule_id", match.RuleID).
				Msg("failed to persist alert event")
			continue
		}

		if err := s.hub.Broadcast(broadcast.AlertEvent(ev)); err != nil {
			s.logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to broadcast alert")
			continue
		}
		s.metrics.AlertTriggered()
		sent++

		s.logger.Info().
			Str("news_id", item.ID).
			Str("rule_id", match.RuleID).
			Str("rule", match.RuleName).
			Msg("alert triggered")
		s.notify(ctx, ev, item)
	}
	return sent
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.notifications.Wait()
}

func (s *Service) evaluate(item news.News) (matches []alerting.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches = nil
			err = fmt.Errorf("evaluate rules: %v", r)
		}
	}()
	return alerting.EvaluateAt(item, s.alerts.ActiveRules(), s.now()), nil
}

// notify dispatches in the background; Wait joins outstanding sends.
func (s *Service) notify(ctx context.Context, ev alerting.Event, item news.News) {
	if s.notifier == nil {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(notifyCtx, alerting.Notification{Event: ev, News: item}); err != nil {
			s.logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to dispatch alert notification")
		}
	}()
}
