// Package socket is the WebSocket transport of the real-time channel: a
// dialer that presents the credential at upgrade time, a JSON event codec and
// the classification of why a connection ended.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names on the wire.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventPing         = "ping"
	EventPong         = "pong"
)

const writeTimeout = 5 * time.Second

// Event is one JSON frame: {"event": "...", "payload": ...}.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is an open event stream.
type Conn interface {
	// ReadEvent blocks until the next event or the end of the connection.
	ReadEvent() (Event, error)
	WriteEvent(Event) error
	Close() error
}

// Dialer opens authenticated connections.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// HandshakeError is returned when the far end refuses the upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("handshake rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer with the given handshake timeout
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial opens url with the token in the upgrade request's Authorization header.
func (d *WebsocketDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		herr := &HandshakeError{Err: err}
		if resp != nil {
			herr.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, herr
	}

	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadEvent() (Event, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Event{}, &DecodeError{Err: err}
		}
		return ev, nil
	}
}

func (c *wsConn) WriteEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// DecodeError is a frame that is not a valid event. The connection stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "invalid event frame: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is a recoverable frame decoding error.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
