package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphafeed/internal/metrics"
	"alphafeed/internal/news"
)

// ErrAlreadyRunning is returned by Start while the client is running.
var ErrAlreadyRunning = errors.New("feed: client already running")

// State is the client lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// NewsHandler receives every frame that passes ParseMessage.
type NewsHandler func(ctx context.Context, msg news.RawMessage)

// StatusHandler receives connection status transitions.
type StatusHandler func(status news.ConnectionStatus)

// timerFunc schedules a single wakeup and returns a cancel handle.
type timerFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Options configures a Client.
type Options struct {
	Backoff Backoff
	Logger  zerolog.Logger
	Metrics metrics.Recorder
}

// Client maintains one logical connection to the upstream feed and
// reconnects with exponential backoff until stopped. Handlers run on the
// client goroutine, in registration order, and must not call Stop.
type Client struct {
	dial    DialFunc
	backoff Backoff
	logger  zerolog.Logger
	metrics metrics.Recorder
	after   timerFunc

	mu             sync.Mutex
	state          State
	attempts       int
	currentBackoff time.Duration
	conn           Conn
	cancel         context.CancelFunc
	done           chan struct{}
	newsHandlers   []NewsHandler
	statusHandlers []StatusHandler
}

// NewClient builds an idle client around dial.
func NewClient(dial DialFunc, opts Options) *Client {
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Client{
		dial:    dial,
		backoff: opts.Backoff,
		logger:  opts.Logger.With().Str("component", "feed").Logger(),
		metrics: opts.Metrics,
		after:   realTimer,
		state:   StateIdle,
	}
}

// OnNews registers a handler for accepted frames.
func (c *Client) OnNews(handler NewsHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newsHandlers = append(c.newsHandlers, handler)
}

// OnStatusChange registers a handler for status transitions.
func (c *Client) OnStatusChange(handler StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandlers = append(c.statusHandlers, handler)
}

// Start begins connecting in the background. It may be called again after Stop.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	return nil
}

// Stop cancels any pending reconnect, closes the active connection and
// waits for the client goroutine to exit. No reconnect happens after Stop
// returns. Stopping an idle or stopped client is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	cancel()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	<-done

	c.mu.Lock()
	c.conn = nil
	c.state = StateStopped
	c.mu.Unlock()

	c.logger.Info().Msg("feed client stopped")
	c.emitStatus(news.StatusDisconnected)
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts reports consecutive failed connection attempts since the last open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// CurrentBackoff reports the delay used for the pending or last reconnect.
func (c *Client) CurrentBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBackoff
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Int("attempt", c.Attempts()).Msg("feed dial failed")
		} else {
			if !c.attach(ctx, conn) {
				_ = conn.Close()
				return
			}
			c.opened()
			c.readLoop(ctx, conn)
			c.detach()
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
		}

		delay := c.scheduleReconnect()
		wake, cancelTimer := c.after(delay)
		select {
		case <-ctx.Done():
			cancelTimer()
			return
		case <-wake:
		}
	}
}

// attach publishes conn so Stop can close it; it refuses once Stop has begun.
func (c *Client) attach(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) opened() {
	c.mu.Lock()
	c.attempts = 0
	c.currentBackoff = 0
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info().Msg("feed connected")
	c.emitStatus(news.StatusConnected)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("feed connection closed")
			}
			return
		}

		c.metrics.FrameReceived()
		msg, ok := ParseMessage(data)
		if !ok {
			c.metrics.FrameDropped()
			c.logger.Debug().Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		for _, handler := range c.snapshotNewsHandlers() {
			handler(ctx, msg)
		}
	}
}

func (c *Client) scheduleReconnect() time.Duration {
	c.mu.Lock()
	delay := c.backoff.Delay(c.attempts)
	c.attempts++
	c.currentBackoff = delay
	attempt := c.attempts
	c.state = StateReconnecting
	c.mu.Unlock()

	c.metrics.Reconnect(delay)
	c.logger.Warn().Dur("delay", delay).Int("attempt", attempt).Msg("feed reconnect scheduled")
	c.emitStatus(news.StatusReconnecting)
	return delay
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) emitStatus(status news.ConnectionStatus) {
	c.metrics.FeedStatus(status)

	c.mu.Lock()
	handlers := append([]StatusHandler(nil), c.statusHandlers...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(status)
	}
}

func (c *Client) snapshotNewsHandlers() []NewsHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NewsHandler(nil), c.newsHandlers...)
}
