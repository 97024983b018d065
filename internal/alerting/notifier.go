package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"alphafeed/internal/news"
)

// Notification 封装一次告警事件及触发它的新闻。
type Notification struct {
	Event Event
	News  news.News
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送告警。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify 调用 sendMessage 将告警文本推送到配置的会话。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.sendMessage(ctx, renderMessage(note)); err != nil {
		return fmt.Errorf("notify rule %s: %w", note.Event.RuleID, err)
	}

	n.logger.Info().
		Str("rule_id", note.Event.RuleID).
		Str("news_id", note.Event.NewsID).
		Msg("alert delivered to telegram")
	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	endpoint := n.baseURL + "/bot" + n.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// 请求 URL 含 bot token，不写入错误信息。
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("call sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("sendMessage status %d: %s", resp.StatusCode, result.Description)
	case decodeErr == nil && !result.OK:
		return fmt.Errorf("sendMessage rejected: %s", result.Description)
	}
	return nil
}

func renderMessage(note Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Alert] %s\n", note.Event.RuleName)
	fmt.Fprintf(&b, "%s\n", note.Event.NewsTitle)
	if note.News.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", note.News.SourceName)
	}
	if len(note.News.Tickers) > 0 {
		fmt.Fprintf(&b, "Tickers: %s\n", strings.Join(note.News.Tickers, ", "))
	}
	for _, q := range news.QuotesOf(note.News) {
		fmt.Fprintf(&b, "First print: %s %s", q.Symbol, q.Price.String())
		if mcap, ok := q.MarketCap(); ok {
			fmt.Fprintf(&b, " (mcap %s)", mcap.StringFixed(0))
		}
		b.WriteString("\n")
	}
	if !note.News.Time.IsZero() {
		fmt.Fprintf(&b, "Time: %s UTC\n", note.News.Time.UTC().Format(time.RFC3339))
	}
	if note.News.URL != "" {
		b.WriteString(note.News.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ Notifier = (*TelegramNotifier)(nil)
