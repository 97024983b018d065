package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrPeerSlow is returned when a peer's send buffer is full; the frame is dropped.
	ErrPeerSlow = errors.New("broadcast: peer send buffer full")
	// ErrPeerClosed is returned after the peer connection has gone away.
	ErrPeerClosed = errors.New("broadcast: peer closed")
)

// PeerOptions tunes a websocket peer.
type PeerOptions struct {
	Buffer    int
	WriteWait time.Duration
	PongWait  time.Duration
}

func (o PeerOptions) withDefaults() PeerOptions {
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

// WSPeer is a Peer backed by a server-side websocket connection.
type WSPeer struct {
	conn *websocket.Conn
	opts PeerOptions

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWSPeer wraps conn. Call Run to start pumping frames.
func NewWSPeer(conn *websocket.Conn, opts PeerOptions) *WSPeer {
	opts = opts.withDefaults()
	return &WSPeer{
		conn:   conn,
		opts:   opts,
		send:   make(chan []byte, opts.Buffer),
		closed: make(chan struct{}),
	}
}

// Send queues payload without blocking.
func (p *WSPeer) Send(payload []byte) error {
	select {
	case <-p.closed:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- payload:
		return nil
	case <-p.closed:
		return ErrPeerClosed
	default:
		return ErrPeerSlow
	}
}

// Run pumps queued frames to the connection and discards inbound frames
// until either side fails or Close is called. It blocks and closes the
// connection on return.
func (p *WSPeer) Run() {
	go p.readPump()
	p.writePump()
}

// Close asks the peer to shut down; it is safe to call more than once.
// The write pump sends a close frame and releases the connection.
func (p *WSPeer) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Done is closed once the peer has shut down.
func (p *WSPeer) Done() <-chan struct{} {
	return p.closed
}

func (p *WSPeer) readPump() {
	defer p.Close()

	p.conn.SetReadLimit(4096)
	_ = p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
	})

	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *WSPeer) writePump() {
	ticker := time.NewTicker(p.pingPeriod())
	defer func() {
		ticker.Stop()
		p.Close()
		_ = p.conn.Close()
	}()

	for {
		select {
		case <-p.closed:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(p.opts.WriteWait))
			return
		case payload := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (p *WSPeer) pingPeriod() time.Duration {
	return p.opts.PongWait * 9 / 10
}

var _ Peer = (*WSPeer)(nil)
