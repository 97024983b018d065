package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"alphafeed/internal/alerting"
	"alphafeed/internal/broadcast"
	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
	"alphafeed/internal/storage"
)

type recordingInjector struct {
	mu    sync.Mutex
	items []news.News
	fired int
}

func (r *recordingInjector) Inject(_ context.Context, item news.News) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return r.fired
}

type fixture struct {
	server   *httptest.Server
	store    *storage.Memory
	hub      *broadcast.Hub
	injector *recordingInjector
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	store := storage.NewMemory()
	hub := broadcast.NewHub(zerolog.Nop(), metrics.Nop{})
	injector := &recordingInjector{}

	deps := Deps{
		News:      store,
		Rules:     alerting.NewService(store, nil, zerolog.Nop()),
		Injector:  injector,
		Hub:       hub,
		DevRoutes: true,
		Logger:    zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, store: store, hub: hub, injector: injector}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestListNewsPagination(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		item := news.News{
			ID:         "n" + string(rune('a'+i)),
			Title:      "headline",
			Tickers:    []string{},
			Time:       base.Add(time.Duration(i) * time.Minute),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := f.store.InsertNewsItem(context.Background(), item); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resp, body := f.do(t, http.MethodGet, "/api/news?page=1&pageSize=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Data []news.News `json:"data"`
		Meta newsMeta    `json:"meta"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Meta.Total != 3 || payload.Meta.Page != 1 || payload.Meta.PageSize != 2 {
		t.Fatalf("unexpected meta: %+v", payload.Meta)
	}
	if len(payload.Data) != 2 || payload.Data[0].ID != "nc" {
		t.Fatalf("expected newest first, got %+v", payload.Data)
	}
}

func TestListNewsDefaults(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/news", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"pageSize":50`) || !strings.Contains(string(body), `"data":[]`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestListNewsRejectsBadPaging(t *testing.T) {
	f := newFixture(t, nil)

	for _, query := range []string{"page=0", "page=abc", "pageSize=0", "pageSize=101"} {
		resp, body := f.do(t, http.MethodGet, "/api/news?"+query, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, resp.StatusCode)
		}
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Code != "BAD_REQUEST" {
			t.Fatalf("%s: unexpected error body %s", query, body)
		}
	}
}

func TestRuleLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/alerts", `{"name":" BTC ","type":"ticker","value":"btc"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		Data alerting.Rule `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Data.Name != "BTC" || !created.Data.Enabled || created.Data.ID == "" {
		t.Fatalf("unexpected rule: %+v", created.Data)
	}

	resp, body = f.do(t, http.MethodPatch, "/api/alerts/"+created.Data.ID, `{"enabled":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"enabled":false`) {
		t.Fatalf("patch not applied: %s", body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/alerts", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), created.Data.ID) {
		t.Fatalf("list failed: %d %s", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodDelete, "/api/alerts/"+created.Data.ID, "")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"data":null}` {
		t.Fatalf("delete failed: %d %s", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/alerts", "")
	if strings.TrimSpace(string(body)) != `{"data":[]}` {
		t.Fatalf("expected empty list, got %d %s", resp.StatusCode, body)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := map[string]string{
		"missing name": `{"type":"ticker","value":"BTC"}`,
		"bad type":     `{"name":"x","type":"keyword","value":"BTC"}`,
		"not json":     `{`,
	}
	for name, body := range cases {
		resp, raw := f.do(t, http.MethodPost, "/api/alerts", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", name, resp.StatusCode, raw)
		}
	}
}

func TestUpdateUnknownRule(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPatch, "/api/alerts/6f1c2b1e-8c39-4d5c-9b7e-2d3f4a5b6c7d", `{"name":"x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
}

func TestEventsEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rule, err := f.store.InsertRule(ctx, alerting.Rule{ID: "6f1c2b1e-8c39-4d5c-9b7e-2d3f4a5b6c7d", Name: "btc", Type: alerting.RuleTicker, Value: "BTC", Enabled: true})
	if err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	if _, err := f.store.InsertAlertEvent(ctx, alerting.Match{RuleID: rule.ID, RuleName: rule.Name, NewsID: "n1", NewsTitle: "t", TriggeredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	_, body := f.do(t, http.MethodGet, "/api/alerts/events", "")
	var unread struct {
		Data []alerting.Event `json:"data"`
	}
	if err := json.Unmarshal(body, &unread); err != nil || len(unread.Data) != 1 {
		t.Fatalf("expected one unread event, got %s", body)
	}

	resp, body := f.do(t, http.MethodPost, "/api/alerts/events/read", "")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"data":null}` {
		t.Fatalf("mark read failed: %d %s", resp.StatusCode, body)
	}

	_, body = f.do(t, http.MethodGet, "/api/alerts/events", "")
	if strings.TrimSpace(string(body)) != `{"data":[]}` {
		t.Fatalf("expected no unread events, got %s", body)
	}
}

func TestSeedNews(t *testing.T) {
	f := newFixture(t, nil)
	f.injector.fired = 2

	resp, body := f.do(t, http.MethodPost, "/api/_dev/seed-news", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var out seedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || out.Alerts != 2 || !strings.HasPrefix(out.ID, "dev-") || out.Title == "" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(f.injector.items) != 1 || len(f.injector.items[0].Tickers) == 0 {
		t.Fatalf("expected one injected item with tickers, got %+v", f.injector.items)
	}
}

func TestSeedNewsDisabled(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.DevRoutes = false })

	resp, _ := f.do(t, http.MethodPost, "/api/_dev/seed-news", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if len(f.injector.items) != 0 {
		t.Fatal("nothing should be injected")
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Health = func(context.Context) error { return errors.New("db down") }
	})

	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), "db down") {
		t.Fatalf("unexpected health response: %d %s", resp.StatusCode, body)
	}
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
	})

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || string(body) != "# metrics" {
		t.Fatalf("unexpected metrics response: %d %s", resp.StatusCode, body)
	}
}

func TestWebsocketLegacyPath(t *testing.T) {
	f := newFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/_ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /_ws: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil || string(first) != `{"type":"status","status":"connected"}` {
		t.Fatalf("unexpected first frame %q err=%v", first, err)
	}
}

func TestWebsocketReceivesConnectedThenBroadcast(t *testing.T) {
	f := newFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connected: %v", err)
	}
	if string(first) != `{"type":"status","status":"connected"}` {
		t.Fatalf("unexpected first frame: %s", first)
	}

	deadline := time.Now().Add(time.Second)
	for f.hub.ConnectedPeers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("peer was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.hub.Broadcast(broadcast.StatusEvent(news.StatusDisconnected)); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	_, next, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if string(next) != `{"type":"status","status":"disconnected"}` {
		t.Fatalf("unexpected frame: %s", next)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for f.hub.ConnectedPeers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("peer was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUpgraderOrigins(t *testing.T) {
	up := newUpgrader([]string{"https://app.example.com"})

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://APP.example.com")
	if !up.CheckOrigin(allowed) {
		t.Fatal("expected listed origin to pass")
	}

	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	if up.CheckOrigin(denied) {
		t.Fatal("expected unlisted origin to be rejected")
	}

	open := newUpgrader(nil)
	if !open.CheckOrigin(denied) {
		t.Fatal("empty allow-list should accept any origin")
	}
}
