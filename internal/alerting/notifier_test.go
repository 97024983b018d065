package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"alphafeed/internal/news"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("路径应以 /bottoken/sendMessage 结尾, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "BTC watch") || !strings.Contains(text, "BTC ATH") {
		t.Fatalf("text should mention rule and headline, got %q", text)
	}
	if !strings.Contains(text, "Tickers: BTC") {
		t.Fatalf("text should list tickers, got %q", text)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("非 2xx 状态应报错")
	}
}

func TestRenderMessageIncludesFirstPrint(t *testing.T) {
	text := renderMessage(testNotification())
	if !strings.Contains(text, "First print: BTCUSDT 37000.5 (mcap 777010500000)") {
		t.Fatalf("消息应包含首笔价格与市值, 实际 %q", text)
	}

	note := testNotification()
	note.News.RawData = nil
	if strings.Contains(renderMessage(note), "First print") {
		t.Fatal("无原始帧时不应输出价格")
	}
}

func testNotification() Notification {
	at := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	return Notification{
		Event: Event{ID: "e1", RuleID: "r1", RuleName: "BTC watch", NewsID: "n1", NewsTitle: "BTC ATH", TriggeredAt: at},
		News: news.News{
			ID:         "n1",
			Title:      "BTC ATH",
			SourceName: "Binance",
			Tickers:    []string{"BTC"},
			Time:       at,
			URL:        "https://example.com/n1",
			RawData:    json.RawMessage(`{"_id":"n1","title":"BTC ATH","firstPrice":{"BTCUSDT":37000.5,"BTCEUR":34000},"suggestions":[{"coin":"BTC","supply":21000000}]}`),
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
