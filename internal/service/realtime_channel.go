package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"github.com/prperemyshlev/shop-session/pkg/socket"
	"go.uber.org/zap"
)

// PushHandler receives every well-formed notification pushed over the channel.
type PushHandler interface {
	HandlePush(ctx context.Context, n domain.Notification)
}

// ChannelConfig configures the real-time channel.
type ChannelConfig struct {
	URL string
	// ReconnectDelay is the backoff before the single reconnect after a drop.
	ReconnectDelay time.Duration
	// RefreshReconnectDelay is the pause between tearing down and reopening
	// the connection after a credential renewal.
	RefreshReconnectDelay time.Duration
	// AckTimeout bounds the wait for the server's "connected" event after the
	// upgrade. Zero disables the deadline.
	AckTimeout time.Duration
}

// RealtimeChannel keeps at most one authenticated socket to the notification
// service and at most one pending reconnect timer.
type RealtimeChannel struct {
	mu      sync.Mutex
	cfg     ChannelConfig
	dialer  socket.Dialer
	creds   *CredentialStore
	handler PushHandler

	state   domain.ConnectionState
	lastErr string
	conn    socket.Conn
	acked   bool
	ackWait *time.Timer

	// generation invalidates dials and read loops that belong to a torn down connection.
	generation uint64
	cancelDial context.CancelFunc

	timer    *time.Timer
	timerSeq uint64

	connTopic  *Topic[domain.ConnectionStatus]
	notifTopic *Topic[domain.Notification]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewRealtimeChannel creates a disconnected channel
func NewRealtimeChannel(
	cfg ChannelConfig,
	dialer socket.Dialer,
	creds *CredentialStore,
	handler PushHandler,
	events *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RealtimeChannel {
	return &RealtimeChannel{
		cfg:        cfg,
		dialer:     dialer,
		creds:      creds,
		handler:    handler,
		state:      domain.Disconnected,
		connTopic:  events.Connection,
		notifTopic: events.Notification,
		metrics:    metrics,
		logger:     logger.Named("realtime"),
	}
}

// Status returns the connection state and last error
func (c *RealtimeChannel) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ConnectionStatus{State: c.state, Error: c.lastErr}
}

// Connect opens the channel with the access credential, falling back to the
// refresh credential. It is a no-op while connecting or connected and returns
// ErrCredentialAbsent without changing state when no credential is stored.
// The handshake completes asynchronously; observe it through Status or the
// connection topic.
func (c *RealtimeChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.Disconnected {
		c.mu.Unlock()
		return nil
	}
	observed := c.generation
	c.mu.Unlock()

	// The store may be remote; Status and Ping must not wait on it.
	token := c.creds.Tokens(ctx).HandshakeToken()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A Disconnect or another Connect got in while the credential was read.
	if c.state != domain.Disconnected || c.generation != observed {
		return nil
	}

	if token == "" {
		c.logger.Debug("Connect skipped without credential")
		return fmt.Errorf("cannot open real-time channel: %w", domain.ErrCredentialAbsent)
	}

	stale := c.teardownLocked()
	if stale != nil {
		go closeQuietly(stale)
	}

	dialCtx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	gen := c.generation

	c.setStateLocked(domain.Connecting, "")
	c.logger.Info("Connecting", zap.String("url", c.cfg.URL))

	go c.run(dialCtx, gen, token)
	return nil
}

// Disconnect cancels any pending reconnect, closes the connection and clears
// the last error. Safe to call in any state.
func (c *RealtimeChannel) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	conn := c.teardownLocked()
	c.setStateLocked(domain.Disconnected, "")
	c.mu.Unlock()

	if conn != nil {
		closeQuietly(conn)
		c.logger.Info("Disconnected")
	}
}

// ReconnectWithNewCredential drops the current connection and reconnects after
// a short delay, since the handshake credential cannot be swapped in place.
func (c *RealtimeChannel) ReconnectWithNewCredential() {
	c.Disconnect()

	c.mu.Lock()
	c.scheduleLocked(c.cfg.RefreshReconnectDelay)
	c.mu.Unlock()

	c.logger.Info("Reconnecting with renewed credential")
}

// Ping sends a keepalive ping. The channel never pings on its own.
func (c *RealtimeChannel) Ping() error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == domain.Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return domain.ErrNotConnected
	}
	if err := conn.WriteEvent(socket.Event{Name: socket.EventPing}); err != nil {
		return fmt.Errorf("failed to send ping: %w: %v", domain.ErrTransport, err)
	}
	return nil
}

// ReconnectPending reports whether a reconnect timer is armed.
func (c *RealtimeChannel) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *RealtimeChannel) run(ctx context.Context, gen uint64, token string) {
	conn, err := c.dialer.Dial(ctx, c.cfg.URL, token)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if conn != nil {
			closeQuietly(conn)
		}
		return
	}
	if err != nil {
		// No retry from here: an invalid credential would spin. A renewal retriggers Connect.
		c.metrics.Connect("failed")
		c.setStateLocked(domain.Disconnected, fmt.Sprintf("%v: %v", domain.ErrTransport, err))
		c.mu.Unlock()
		c.logger.Warn("Handshake failed", zap.Error(err))
		return
	}
	c.conn = conn
	if c.cfg.AckTimeout > 0 {
		c.ackWait = time.AfterFunc(c.cfg.AckTimeout, func() { c.ackExpired(gen, conn) })
	}
	c.mu.Unlock()

	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			if socket.IsDecodeError(err) {
				c.logger.Warn("Dropping undecodable frame", zap.Error(err))
				continue
			}
			c.handleDrop(gen, conn, err)
			return
		}

		switch ev.Name {
		case socket.EventConnected:
			c.handleAck(gen)
		case socket.EventNotification:
			c.handleNotification(gen, ev.Payload)
		case socket.EventPong:
			c.logger.Debug("Pong received")
		default:
			c.logger.Debug("Ignoring event", zap.String("event", ev.Name))
		}
	}
}

func (c *RealtimeChannel) handleAck(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.acked = true
	c.stopAckWaitLocked()
	c.stopTimerLocked()
	c.setStateLocked(domain.Connected, "")
	c.metrics.Connect("success")
	c.logger.Info("Connected")
}

func (c *RealtimeChannel) handleNotification(gen uint64, payload json.RawMessage) {
	c.mu.Lock()
	current := gen == c.generation
	c.mu.Unlock()
	if !current {
		return
	}

	var push struct {
		Data *domain.Notification `json:"data"`
	}
	if err := json.Unmarshal(payload, &push); err != nil || push.Data == nil {
		c.metrics.NotificationReceived("malformed")
		c.logger.Warn("Dropping notification without data", zap.Error(domain.ErrMalformedPayload))
		return
	}

	n := *push.Data
	n.Normalize()
	if err := n.Validate(); err != nil {
		c.metrics.NotificationReceived("malformed")
		c.logger.Warn("Dropping malformed notification", zap.Error(err))
		return
	}

	if c.handler != nil {
		c.handler.HandlePush(context.Background(), n)
	}
	c.notifTopic.Publish(n)
}

func (c *RealtimeChannel) handleDrop(gen uint64, conn socket.Conn, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	acked := c.acked
	c.teardownLocked()

	if !acked {
		c.metrics.Connect("failed")
		c.setStateLocked(domain.Disconnected, fmt.Sprintf("%v: handshake not acknowledged: %v", domain.ErrTransport, cause))
		c.mu.Unlock()
		closeQuietly(conn)
		c.logger.Warn("Connection dropped before acknowledgement", zap.Error(cause))
		return
	}

	reason := socket.Classify(cause)
	c.setStateLocked(domain.Disconnected, fmt.Sprintf("%v: %s: %v", domain.ErrTransport, reason, cause))
	if reason.Retryable() {
		c.scheduleLocked(c.cfg.ReconnectDelay)
	}
	c.mu.Unlock()

	closeQuietly(conn)
	c.logger.Warn("Connection dropped",
		zap.String("reason", reason.String()),
		zap.Bool("reconnect", reason.Retryable()),
		zap.Error(cause),
	)
}

// ackExpired ends a connection the server upgraded but never acknowledged.
// Like any drop before the acknowledgement it is not retried.
func (c *RealtimeChannel) ackExpired(gen uint64, conn socket.Conn) {
	c.mu.Lock()
	if gen != c.generation || c.acked {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.metrics.Connect("failed")
	c.setStateLocked(domain.Disconnected, fmt.Sprintf("%v: handshake not acknowledged within %s", domain.ErrTransport, c.cfg.AckTimeout))
	c.mu.Unlock()

	closeQuietly(conn)
	c.logger.Warn("Connection not acknowledged", zap.Duration("timeout", c.cfg.AckTimeout))
}

// scheduleLocked arms the single reconnect timer, replacing any pending one.
func (c *RealtimeChannel) scheduleLocked(delay time.Duration) {
	c.stopTimerLocked()

	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(delay, func() { c.fire(seq) })
	c.metrics.ReconnectScheduled()
}

func (c *RealtimeChannel) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || c.timer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		c.logger.Warn("Scheduled reconnect skipped", zap.Error(err))
	}
}

func (c *RealtimeChannel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// A timer that already fired but has not taken the lock yet sees a new seq.
	c.timerSeq++
}

func (c *RealtimeChannel) stopAckWaitLocked() {
	if c.ackWait != nil {
		c.ackWait.Stop()
		c.ackWait = nil
	}
}

// teardownLocked invalidates the current connection and returns it for closing.
func (c *RealtimeChannel) teardownLocked() socket.Conn {
	c.generation++
	c.stopAckWaitLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.acked = false
	return conn
}

func (c *RealtimeChannel) setStateLocked(state domain.ConnectionState, errMsg string) {
	if c.state == state && c.lastErr == errMsg {
		return
	}
	c.state = state
	c.lastErr = errMsg
	c.connTopic.Publish(domain.ConnectionStatus{State: state, Error: errMsg})
}

func closeQuietly(conn socket.Conn) {
	_ = conn.Close()
}
