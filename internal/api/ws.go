package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"alphafeed/internal/broadcast"
)

type wsHandler struct {
	hub      PeerHub
	opts     broadcast.PeerOptions
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// newUpgrader accepts any origin when allowed is empty.
func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			origins[strings.ToLower(o)] = struct{}{}
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[strings.ToLower(origin)]
			return ok
		},
	}
}

// ServeHTTP upgrades the request and keeps the peer registered until it disconnects.
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	peer := broadcast.NewWSPeer(conn, h.opts)
	h.hub.Register(peer)
	h.logger.Debug().Str("remote", r.RemoteAddr).Int("peers", h.hub.ConnectedPeers()).Msg("peer connected")

	peer.Run()

	h.hub.Unregister(peer)
	h.logger.Debug().Str("remote", r.RemoteAddr).Int("peers", h.hub.ConnectedPeers()).Msg("peer disconnected")
}
