package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
)

// Peer is one downstream client. Send must not block for long.
type Peer interface {
	Send(payload []byte) error
}

// Hub fans events out to every registered peer.
type Hub struct {
	logger  zerolog.Logger
	metrics metrics.Recorder

	mu    sync.RWMutex
	peers map[Peer]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Hub{
		logger:  logger.With().Str("component", "broadcast").Logger(),
		metrics: recorder,
		peers:   make(map[Peer]struct{}),
	}
}

var connectedPayload = mustMarshal(StatusEvent(news.StatusConnected))

// Register adds peer and sends it the connected status before anything
// else. Registering a known peer is a no-op.
func (h *Hub) Register(peer Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[peer]; ok {
		return
	}
	if err := peer.Send(connectedPayload); err != nil {
		h.logger.Debug().Err(err).Msg("initial status send failed")
	}
	h.peers[peer] = struct{}{}
	h.metrics.PeersConnected(len(h.peers))
}

// Unregister removes peer; unknown peers are ignored.
func (h *Hub) Unregister(peer Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[peer]; !ok {
		return
	}
	delete(h.peers, peer)
	h.metrics.PeersConnected(len(h.peers))
}

// Broadcast serializes event once and delivers the same bytes to every
// current peer. Per-peer failures are logged and never returned.
func (h *Hub) Broadcast(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for peer := range h.peers {
		if sendErr := peer.Send(payload); sendErr != nil {
			h.logger.Debug().Err(sendErr).Str("type", string(event.Type)).Msg("peer send failed")
		}
	}
	return nil
}

// ConnectedPeers reports how many peers are registered.
func (h *Hub) ConnectedPeers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
