package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"alphafeed/internal/alerting"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	maxBodyBytes    = 1 << 16
)

type handlers struct {
	news   NewsLister
	rules  RuleManager
	logger zerolog.Logger
}

type newsMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// GET /api/news?page=&pageSize=
func (h *handlers) listNews(w http.ResponseWriter, r *http.Request) {
	page, ok := intParam(r, "page", 1)
	if !ok || page < 1 {
		badRequest(w, "page must be >= 1")
		return
	}
	pageSize, ok := intParam(r, "pageSize", defaultPageSize)
	if !ok || pageSize < 1 || pageSize > maxPageSize {
		badRequest(w, "pageSize must be between 1 and 100")
		return
	}

	items, total, err := h.news.ListNews(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": newsMeta{Total: total, Page: page, PageSize: pageSize},
	})
}

// GET /api/alerts
func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.Rules(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, rules)
}

// POST /api/alerts
func (h *handlers) createRule(w http.ResponseWriter, r *http.Request) {
	var in alerting.RuleInput
	if !decodeBody(w, r, &in) {
		return
	}

	rule, err := h.rules.CreateRule(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, rule)
}

// PATCH /api/alerts/{id}
func (h *handlers) updateRule(w http.ResponseWriter, r *http.Request) {
	var patch alerting.RulePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	rule, err := h.rules.UpdateRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, rule)
}

// DELETE /api/alerts/{id}
func (h *handlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// GET /api/alerts/events
func (h *handlers) unreadEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.rules.UnreadEvents(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, events)
}

// POST /api/alerts/events/read
func (h *handlers) markEventsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.MarkEventsRead(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func intParam(r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "request body must be valid JSON")
		return false
	}
	return true
}
