package broadcast

import (
	"alphafeed/internal/alerting"
	"alphafeed/internal/news"
)

// EventType discriminates messages pushed to downstream peers.
type EventType string

const (
	EventNews   EventType = "news"
	EventStatus EventType = "status"
	EventAlert  EventType = "alert"
)

// Event is the wire envelope sent to peers.
type Event struct {
	Type   EventType             `json:"type"`
	Data   any                   `json:"data,omitempty"`
	Status news.ConnectionStatus `json:"status,omitempty"`
}

// NewsEvent wraps a canonical news item.
func NewsEvent(item news.News) Event {
	return Event{Type: EventNews, Data: item}
}

// StatusEvent wraps an upstream connection status.
func StatusEvent(status news.ConnectionStatus) Event {
	return Event{Type: EventStatus, Status: status}
}

// AlertEvent wraps a persisted alert event.
func AlertEvent(ev alerting.Event) Event {
	return Event{Type: EventAlert, Data: ev}
}
