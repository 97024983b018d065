package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alphafeed/internal/alerting"
	"alphafeed/internal/news"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	newsColumns = `id, title, body, source, source_name, url, tickers, "time", received_at, raw_data`

	insertNewsSQL = `INSERT INTO news_items (
        id,
        title,
        body,
        source,
        source_name,
        url,
        tickers,
        "time",
        received_at,
        raw_data
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (id) DO NOTHING;`

	listNewsSQL = `SELECT ` + newsColumns + `
    FROM news_items
    ORDER BY "time" DESC, received_at DESC
    LIMIT $1 OFFSET $2;`

	countNewsSQL = `SELECT COUNT(*) FROM news_items;`

	listNewsBetweenSQL = `SELECT ` + newsColumns + `
    FROM news_items
    WHERE "time" >= $1
      AND "time" < $2
    ORDER BY "time";`

	deleteNewsBeforeSQL = `DELETE FROM news_items WHERE received_at < $1;`

	ruleColumns = `id::text, name, type, value, enabled, created_at`

	listRulesSQL = `SELECT ` + ruleColumns + `
    FROM alert_rules
    ORDER BY created_at;`

	listActiveRulesSQL = `SELECT ` + ruleColumns + `
    FROM alert_rules
    WHERE enabled = TRUE
    ORDER BY created_at;`

	insertRuleSQL = `INSERT INTO alert_rules (
        id,
        name,
        type,
        value,
        enabled,
        created_at
    ) VALUES (
        $1::uuid,$2,$3,$4,$5,$6
    )
    RETURNING ` + ruleColumns + `;`

	updateRuleSQL = `UPDATE alert_rules
    SET name    = COALESCE($2, name),
        type    = COALESCE($3, type),
        value   = COALESCE($4, value),
        enabled = COALESCE($5, enabled)
    WHERE id = $1::uuid
    RETURNING ` + ruleColumns + `;`

	deleteRuleSQL = `DELETE FROM alert_rules WHERE id = $1::uuid;`

	eventColumns = `id::text, rule_id::text, rule_name, news_id, news_title, triggered_at, read_at`

	insertAlertEventSQL = `INSERT INTO alert_events (
        id,
        rule_id,
        rule_name,
        news_id,
        news_title,
        triggered_at
    ) VALUES (
        gen_random_uuid(),$1::uuid,$2,$3,$4,$5
    )
    RETURNING ` + eventColumns + `;`

	listUnreadEventsSQL = `SELECT ` + eventColumns + `
    FROM alert_events
    WHERE read_at IS NULL
    ORDER BY triggered_at;`

	markEventsReadSQL = `UPDATE alert_events SET read_at = $1 WHERE read_at IS NULL;`
)

// Store is the PostgreSQL implementation of every persistence port.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertNewsItem stores a news item; an existing id is left untouched.
func (s *Store) InsertNewsItem(ctx context.Context, item news.News) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tickers, err := json.Marshal(nonNilTickers(item.Tickers))
	if err != nil {
		return fmt.Errorf("marshal tickers: %w", err)
	}

	_, execErr := pool.Exec(ctx, insertNewsSQL,
		item.ID,
		item.Title,
		item.Body,
		item.Source,
		item.SourceName,
		item.URL,
		tickers,
		item.Time,
		item.ReceivedAt,
		rawOrNull(item.RawData),
	)
	if execErr != nil {
		return fmt.Errorf("insert news item: %w", execErr)
	}
	return nil
}

// ListNews returns one page of news, newest first, plus the total count.
func (s *Store) ListNews(ctx context.Context, page, pageSize int) ([]news.News, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if scanErr := pool.QueryRow(ctx, countNewsSQL).Scan(&total); scanErr != nil {
		return nil, 0, fmt.Errorf("count news: %w", scanErr)
	}

	offset := (page - 1) * pageSize
	rows, queryErr := pool.Query(ctx, listNewsSQL, pageSize, offset)
	if queryErr != nil {
		return nil, 0, fmt.Errorf("list news: %w", queryErr)
	}
	defer rows.Close()

	items, err := collectNews(rows, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListNewsBetween lists news whose event time falls in [from, to).
func (s *Store) ListNewsBetween(ctx context.Context, from, to time.Time) ([]news.News, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNewsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list news between: %w", queryErr)
	}
	defer rows.Close()

	return collectNews(rows, 0)
}

// DeleteNewsBefore removes news received before the cutoff.
func (s *Store) DeleteNewsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteNewsBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete news before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListRules lists every rule ordered by creation time.
func (s *Store) ListRules(ctx context.Context) ([]alerting.Rule, error) {
	return s.queryRules(ctx, listRulesSQL)
}

// ListActiveRules lists enabled rules ordered by creation time.
func (s *Store) ListActiveRules(ctx context.Context) ([]alerting.Rule, error) {
	return s.queryRules(ctx, listActiveRulesSQL)
}

// InsertRule persists a rule.
func (s *Store) InsertRule(ctx context.Context, rule alerting.Rule) (alerting.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return alerting.Rule{}, err
	}

	row := pool.QueryRow(ctx, insertRuleSQL,
		rule.ID,
		rule.Name,
		string(rule.Type),
		rule.Value,
		rule.Enabled,
		rule.CreatedAt,
	)
	created, scanErr := scanRule(row)
	if scanErr != nil {
		return alerting.Rule{}, fmt.Errorf("insert rule: %w", scanErr)
	}
	return created, nil
}

// UpdateRule applies a partial update; a missing rule yields alerting.ErrRuleNotFound.
func (s *Store) UpdateRule(ctx context.Context, id string, patch alerting.RulePatch) (alerting.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return alerting.Rule{}, err
	}

	var ruleType *string
	if patch.Type != nil {
		t := string(*patch.Type)
		ruleType = &t
	}

	row := pool.QueryRow(ctx, updateRuleSQL, id, patch.Name, ruleType, patch.Value, patch.Enabled)
	updated, scanErr := scanRule(row)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return alerting.Rule{}, alerting.ErrRuleNotFound
	}
	if scanErr != nil {
		return alerting.Rule{}, fmt.Errorf("update rule: %w", scanErr)
	}
	return updated, nil
}

// DeleteRule removes a rule and, by cascade, its alert events.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRuleSQL, id); execErr != nil {
		return fmt.Errorf("delete rule: %w", execErr)
	}
	return nil
}

// InsertAlertEvent persists a match as an unread alert event.
func (s *Store) InsertAlertEvent(ctx context.Context, match alerting.Match) (alerting.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return alerting.Event{}, err
	}

	row := pool.QueryRow(ctx, insertAlertEventSQL,
		match.RuleID,
		match.RuleName,
		match.NewsID,
		match.NewsTitle,
		match.TriggeredAt,
	)

	var ev alerting.Event
	if scanErr := row.Scan(
		&ev.ID,
		&ev.RuleID,
		&ev.RuleName,
		&ev.NewsID,
		&ev.NewsTitle,
		&ev.TriggeredAt,
		&ev.ReadAt,
	); scanErr != nil {
		return alerting.Event{}, fmt.Errorf("insert alert event: %w", scanErr)
	}
	return ev, nil
}

// ListUnreadEvents lists unread alert events, oldest first.
func (s *Store) ListUnreadEvents(ctx context.Context) ([]alerting.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUnreadEventsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list unread events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]alerting.Event, 0)
	for rows.Next() {
		var ev alerting.Event
		if err := rows.Scan(
			&ev.ID,
			&ev.RuleID,
			&ev.RuleName,
			&ev.NewsID,
			&ev.NewsTitle,
			&ev.TriggeredAt,
			&ev.ReadAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// MarkEventsRead stamps every unread event with at.
func (s *Store) MarkEventsRead(ctx context.Context, at time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, markEventsReadSQL, at)
	if execErr != nil {
		return 0, fmt.Errorf("mark events read: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryRules(ctx context.Context, query string) ([]alerting.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]alerting.Rule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func scanRule(row pgx.Row) (alerting.Rule, error) {
	var (
		rule     alerting.Rule
		ruleType string
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&ruleType,
		&rule.Value,
		&rule.Enabled,
		&rule.CreatedAt,
	); err != nil {
		return alerting.Rule{}, err
	}
	rule.Type = alerting.RuleType(ruleType)
	return rule, nil
}

func collectNews(rows pgx.Rows, capacity int) ([]news.News, error) {
	items := make([]news.News, 0, capacity)
	for rows.Next() {
		item, err := scanNews(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanNews(rows pgx.Rows) (news.News, error) {
	var (
		item    news.News
		tickers []byte
		raw     []byte
	)
	if err := rows.Scan(
		&item.ID,
		&item.Title,
		&item.Body,
		&item.Source,
		&item.SourceName,
		&item.URL,
		&tickers,
		&item.Time,
		&item.ReceivedAt,
		&raw,
	); err != nil {
		return news.News{}, err
	}

	if err := json.Unmarshal(tickers, &item.Tickers); err != nil {
		return news.News{}, fmt.Errorf("parse tickers for %s: %w", item.ID, err)
	}
	item.Tickers = nonNilTickers(item.Tickers)
	if len(raw) > 0 && string(raw) != "null" {
		item.RawData = json.RawMessage(raw)
	}
	return item, nil
}

func nonNilTickers(tickers []string) []string {
	if tickers == nil {
		return []string{}
	}
	return tickers
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

var (
	_ alerting.Store = (*Store)(nil)
)
