package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alphafeed/internal/alerting"
	"alphafeed/internal/news"
)

// Memory is an in-process store used when no database is configured.
// Contents are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	news   map[string]news.News
	rules  []alerting.Rule
	events []alerting.Event
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{news: make(map[string]news.News)}
}

// InsertNewsItem stores a news item; an existing id is left untouched.
func (m *Memory) InsertNewsItem(_ context.Context, item news.News) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.news[item.ID]; exists {
		return nil
	}
	item.Tickers = append([]string{}, item.Tickers...)
	m.news[item.ID] = item
	return nil
}

// ListNews returns one page of news, newest first, plus the total count.
func (m *Memory) ListNews(_ context.Context, page, pageSize int) ([]news.News, int64, error) {
	m.mu.RLock()
	all := m.sortedNews()
	m.mu.RUnlock()

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(all) {
		return []news.News{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// ListNewsBetween lists news whose event time falls in [from, to), oldest first.
func (m *Memory) ListNewsBetween(_ context.Context, from, to time.Time) ([]news.News, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]news.News, 0)
	for _, item := range m.news {
		if !item.Time.Before(from) && item.Time.Before(to) {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Time.Before(items[j].Time) })
	return items, nil
}

// DeleteNewsBefore removes news received before the cutoff.
func (m *Memory) DeleteNewsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, item := range m.news {
		if item.ReceivedAt.Before(cutoff) {
			delete(m.news, id)
			removed++
		}
	}
	return removed, nil
}

// ListRules lists every rule ordered by creation time.
func (m *Memory) ListRules(_ context.Context) ([]alerting.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedRules(false), nil
}

// ListActiveRules lists enabled rules ordered by creation time.
func (m *Memory) ListActiveRules(_ context.Context) ([]alerting.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedRules(true), nil
}

// InsertRule persists a rule.
func (m *Memory) InsertRule(_ context.Context, rule alerting.Rule) (alerting.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return rule, nil
}

// UpdateRule applies a partial update; a missing rule yields alerting.ErrRuleNotFound.
func (m *Memory) UpdateRule(_ context.Context, id string, patch alerting.RulePatch) (alerting.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rule := range m.rules {
		if rule.ID == id {
			m.rules[i] = patch.Apply(rule)
			return m.rules[i], nil
		}
	}
	return alerting.Rule{}, alerting.ErrRuleNotFound
}

// DeleteRule removes a rule and its alert events.
func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := m.rules[:0]
	for _, rule := range m.rules {
		if rule.ID != id {
			rules = append(rules, rule)
		}
	}
	m.rules = rules

	events := m.events[:0]
	for _, ev := range m.events {
		if ev.RuleID != id {
			events = append(events, ev)
		}
	}
	m.events = events
	return nil
}

// InsertAlertEvent persists a match as an unread alert event.
func (m *Memory) InsertAlertEvent(_ context.Context, match alerting.Match) (alerting.Event, error) {
	ev := alerting.Event{
		ID:          uuid.NewString(),
		RuleID:      match.RuleID,
		RuleName:    match.RuleName,
		NewsID:      match.NewsID,
		NewsTitle:   match.NewsTitle,
		TriggeredAt: match.TriggeredAt,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev, nil
}

// ListUnreadEvents lists unread alert events, oldest first.
func (m *Memory) ListUnreadEvents(_ context.Context) ([]alerting.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]alerting.Event, 0)
	for _, ev := range m.events {
		if ev.ReadAt == nil {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TriggeredAt.Before(events[j].TriggeredAt) })
	return events, nil
}

// MarkEventsRead stamps every unread event with at.
func (m *Memory) MarkEventsRead(_ context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var marked int64
	for i := range m.events {
		if m.events[i].ReadAt == nil {
			stamp := at
			m.events[i].ReadAt = &stamp
			marked++
		}
	}
	return marked, nil
}

// Len reports how many news items are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.news)
}

func (m *Memory) sortedNews() []news.News {
	items := make([]news.News, 0, len(m.news))
	for _, item := range m.news {
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Time.Equal(items[j].Time) {
			return items[i].Time.After(items[j].Time)
		}
		return items[i].ReceivedAt.After(items[j].ReceivedAt)
	})
	return items
}

func (m *Memory) sortedRules(activeOnly bool) []alerting.Rule {
	rules := make([]alerting.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		if activeOnly && !rule.Enabled {
			continue
		}
		rules = append(rules, rule)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules
}

var (
	_ alerting.Store = (*Memory)(nil)
)
