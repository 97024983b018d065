package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one upstream connection. ReadMessage blocks until a frame arrives
// or the connection fails; Close unblocks a pending read.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// DialFunc opens a new upstream connection.
type DialFunc func(ctx context.Context) (Conn, error)

// DialerOptions tunes the websocket handshake.
type DialerOptions struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// WebsocketDialer returns a DialFunc connecting to url over gorilla/websocket.
func WebsocketDialer(url string, opts DialerOptions) DialFunc {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	return func(ctx context.Context) (Conn, error) {
		ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial feed %s: status %d: %w", url, resp.StatusCode, err)
			}
			return nil, fmt.Errorf("dial feed %s: %w", url, err)
		}
		return &wsConn{conn: ws}, nil
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
