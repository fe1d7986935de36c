// Package engineio implements the Engine.IO/Socket.IO framing subset the
// EverText service speaks: the open handshake, namespace join, heartbeat
// frames, and JSON event frames. It is deliberately not a general-purpose
// socket.io client; only the frames this system exchanges are supported.
package engineio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultPingInterval is used when the open packet omits pingInterval.
	DefaultPingInterval = 25 * time.Second

	// DefaultHandshakeTimeout bounds the wait for the server open packet.
	DefaultHandshakeTimeout = 10 * time.Second

	// userAgent is required by the remote service to accept the upgrade.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Frame prefixes for the subprotocol.
const (
	FrameOpen          = "0"
	FramePing          = "2"
	FramePong          = "3"
	FrameNamespaceJoin = "40"
	FrameEvent         = "42"
)

var (
	// ErrHandshakeTimeout indicates no open packet arrived within the bound.
	ErrHandshakeTimeout = errors.New("engineio: handshake timed out")
	// ErrHandshakeFailed indicates a malformed or unexpected open packet.
	ErrHandshakeFailed = errors.New("engineio: handshake failed")
	// ErrStreamClosed indicates the transport closed before the handshake completed.
	ErrStreamClosed = errors.New("engineio: stream closed")
)

// OpenPacket is the JSON body of the server open frame.
type OpenPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
}

// Option configures Dial behavior.
type Option func(*dialOptions)

type dialOptions struct {
	handshakeTimeout time.Duration
	dialer           *websocket.Dialer
}

// WithHandshakeTimeout overrides the open-packet wait bound.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(opts *dialOptions) {
		if timeout > 0 {
			opts.handshakeTimeout = timeout
		}
	}
}

// WithDialer overrides the underlying websocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(opts *dialOptions) {
		if dialer != nil {
			opts.dialer = dialer
		}
	}
}

// Conn is a connected, namespace-joined duplex frame channel.
type Conn struct {
	ws           *websocket.Conn
	sid          string
	pingInterval time.Duration
}

// Dial connects to the endpoint, authenticating with the session cookie,
// waits for the server open packet, and joins the default namespace.
func Dial(endpoint, cookie string, options ...Option) (*Conn, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("engineio: endpoint must not be empty")
	}

	opts := dialOptions{
		handshakeTimeout: DefaultHandshakeTimeout,
		dialer:           websocket.DefaultDialer,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&opts)
	}

	header := http.Header{}
	header.Set("Cookie", "session="+cookie)
	header.Set("User-Agent", userAgent)

	ws, _, err := opts.dialer.Dial(endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("engineio: dial %q: %w", endpoint, err)
	}

	conn, err := handshake(ws, opts.handshakeTimeout)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return conn, nil
}

func handshake(ws *websocket.Conn, timeout time.Duration) (*Conn, error) {
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("engineio: set handshake deadline: %w", err)
	}

	_, payload, err := ws.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrHandshakeTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("engineio: clear handshake deadline: %w", err)
	}

	frame := string(payload)
	if !strings.HasPrefix(frame, FrameOpen) {
		return nil, fmt.Errorf("%w: unexpected first frame %q", ErrHandshakeFailed, truncateFrame(frame))
	}

	var open OpenPacket
	if err := json.Unmarshal([]byte(frame[len(FrameOpen):]), &open); err != nil {
		return nil, fmt.Errorf("%w: decode open packet: %v", ErrHandshakeFailed, err)
	}
	if strings.TrimSpace(open.SID) == "" {
		return nil, fmt.Errorf("%w: open packet has no sid", ErrHandshakeFailed)
	}

	pingInterval := DefaultPingInterval
	if open.PingInterval > 0 {
		pingInterval = time.Duration(open.PingInterval) * time.Millisecond
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(FrameNamespaceJoin)); err != nil {
		return nil, fmt.Errorf("engineio: send namespace join: %w", err)
	}

	return &Conn{
		ws:           ws,
		sid:          open.SID,
		pingInterval: pingInterval,
	}, nil
}

// SID returns the session id negotiated during the handshake.
func (c *Conn) SID() string {
	if c == nil {
		return ""
	}
	return c.sid
}

// PingInterval returns the heartbeat interval negotiated during the handshake.
func (c *Conn) PingInterval() time.Duration {
	if c == nil {
		return DefaultPingInterval
	}
	return c.pingInterval
}

// ReadFrame blocks until the next inbound frame arrives.
func (c *Conn) ReadFrame() (string, error) {
	if c == nil || c.ws == nil {
		return "", errors.New("engineio: conn is nil")
	}
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("engineio: read frame: %w", err)
	}
	return string(payload), nil
}

// WriteFrame writes one raw frame to the transport.
func (c *Conn) WriteFrame(frame string) error {
	if c == nil || c.ws == nil {
		return errors.New("engineio: conn is nil")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("engineio: write frame: %w", err)
	}
	return nil
}

// SendEvent writes an event frame: 42["name",payload].
func (c *Conn) SendEvent(name string, payload any) error {
	encoded, err := json.Marshal([]any{name, payload})
	if err != nil {
		return fmt.Errorf("engineio: encode event %q: %w", name, err)
	}
	return c.WriteFrame(FrameEvent + string(encoded))
}

// Pong replies to a server heartbeat ping.
func (c *Conn) Pong() error {
	return c.WriteFrame(FramePong)
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	if c == nil || c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func truncateFrame(frame string) string {
	const max = 64
	if len(frame) <= max {
		return frame
	}
	return frame[:max] + "..."
}
