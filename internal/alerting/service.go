package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store persists rules and alert events.
type Store interface {
	ListRules(ctx context.Context) ([]Rule, error)
	ListActiveRules(ctx context.Context) ([]Rule, error)
	InsertRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, id string, patch RulePatch) (Rule, error)
	DeleteRule(ctx context.Context, id string) error
	InsertAlertEvent(ctx context.Context, match Match) (Event, error)
	ListUnreadEvents(ctx context.Context) ([]Event, error)
	MarkEventsRead(ctx context.Context, at time.Time) (int64, error)
}

// Service manages alert rules and keeps the active-rules snapshot current.
type Service struct {
	store  Store
	cache  *RulesCache
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires a rule store and snapshot cache together.
func NewService(store Store, cache *RulesCache, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NewRulesCache()
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "alert_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Rules lists every rule ordered by creation time.
func (s *Service) Rules(ctx context.Context) ([]Rule, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// CreateRule validates and stores a new enabled rule.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (Rule, error) {
	name := strings.TrimSpace(in.Name)
	value := strings.TrimSpace(in.Value)
	if name == "" {
		return Rule{}, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !in.Type.Valid() {
		return Rule{}, fmt.Errorf("%w: type must be %q or %q", ErrInvalidRule, RuleTicker, RuleSource)
	}
	if value == "" {
		return Rule{}, fmt.Errorf("%w: value is required", ErrInvalidRule)
	}

	rule, err := s.store.InsertRule(ctx, Rule{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      in.Type,
		Value:     value,
		Enabled:   true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}

	s.refreshAfterMutation(ctx, "create")
	return rule, nil
}

// UpdateRule applies a partial update to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, id string, patch RulePatch) (Rule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Rule{}, ErrRuleNotFound
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return Rule{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidRule)
		}
		patch.Name = &trimmed
	}
	if patch.Value != nil {
		trimmed := strings.TrimSpace(*patch.Value)
		if trimmed == "" {
			return Rule{}, fmt.Errorf("%w: value cannot be empty", ErrInvalidRule)
		}
		patch.Value = &trimmed
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return Rule{}, fmt.Errorf("%w: type must be %q or %q", ErrInvalidRule, RuleTicker, RuleSource)
	}

	rule, err := s.store.UpdateRule(ctx, id, patch)
	if err != nil {
		return Rule{}, fmt.Errorf("update rule %s: %w", id, err)
	}

	s.refreshAfterMutation(ctx, "update")
	return rule, nil
}

// DeleteRule removes a rule. Deleting an unknown rule is not an error.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}

	s.refreshAfterMutation(ctx, "delete")
	return nil
}

// UnreadEvents lists alert events that were not acknowledged yet.
func (s *Service) UnreadEvents(ctx context.Context) ([]Event, error) {
	events, err := s.store.ListUnreadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unread events: %w", err)
	}
	return events, nil
}

// MarkEventsRead acknowledges every unread event.
func (s *Service) MarkEventsRead(ctx context.Context) error {
	n, err := s.store.MarkEventsRead(ctx, s.now())
	if err != nil {
		return fmt.Errorf("mark events read: %w", err)
	}
	s.logger.Debug().Int64("events", n).Msg("alert events marked read")
	return nil
}

// InsertEvent persists a match as an unread alert event.
func (s *Service) InsertEvent(ctx context.Context, match Match) (Event, error) {
	event, err := s.store.InsertAlertEvent(ctx, match)
	if err != nil {
		return Event{}, fmt.Errorf("insert alert event: %w", err)
	}
	return event, nil
}

// RefreshCache reloads the active-rules snapshot from the store.
func (s *Service) RefreshCache(ctx context.Context) error {
	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("load active rules: %w", err)
	}
	s.cache.Replace(rules)
	s.logger.Debug().Int("active_rules", s.cache.Len()).Msg("rules cache refreshed")
	return nil
}

// ActiveRules returns the current snapshot.
func (s *Service) ActiveRules() []Rule {
	return s.cache.Get()
}

// A failed refresh after a successful mutation is logged; the periodic
// refresh job repairs the snapshot.
func (s *Service) refreshAfterMutation(ctx context.Context, op string) {
	if err := s.RefreshCache(ctx); err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("failed to refresh rules cache")
	}
}
