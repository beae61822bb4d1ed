package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout = 10 * time.Second
	writeWait   = 5 * time.Second

	// maxInboundMessageBytes bounds a single control message. SDP bodies are
	// the largest payloads and stay well under this.
	maxInboundMessageBytes = 256 * 1024
)

// ChannelCallbacks receives control-channel events. OnMessage is invoked for
// every valid, known message; malformed or unknown-type messages are logged
// and skipped. OnError fires on transport failures, OnClosed when the peer
// closes the connection. Neither fires after a caller-initiated Close.
type ChannelCallbacks struct {
	OnMessage func(Message)
	OnError   func(error)
	OnClosed  func()
}

// Channel is a client-side control-channel connection to the signaling
// relay. Writes are serialized; reads run on a dedicated goroutine that
// delivers events through the callbacks one at a time.
type Channel struct {
	conn   *websocket.Conn
	cb     ChannelCallbacks
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// Dial connects to the relay and starts the read loop. The context scopes
// the WebSocket handshake only; the established channel outlives it.
func Dial(ctx context.Context, relayURL string, cb ChannelCallbacks, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, relayURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}
	conn.SetReadLimit(maxInboundMessageBytes)

	c := &Channel{
		conn:   conn,
		cb:     cb,
		logger: logger,
	}
	go c.readLoop()
	return c, nil
}

func (c *Channel) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if isExpectedClose(err) {
				if c.cb.OnClosed != nil {
					c.cb.OnClosed()
				}
				return
			}
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("read control channel: %w", err))
			}
			if c.cb.OnClosed != nil {
				c.cb.OnClosed()
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Warn("ignoring non-text control message", "ws_message_type", msgType)
			continue
		}

		msg, err := Parse(data)
		if err != nil {
			if errors.Is(err, ErrUnknownMessageType) {
				c.logger.Debug("ignoring unknown control message", "err", err)
			} else {
				c.logger.Warn("ignoring malformed control message", "err", err)
			}
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(msg)
		}
	}
}

// Send encodes and writes a single control message.
func (c *Channel) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write control message: %w", err)
	}
	return nil
}

// Close tears the connection down. Idempotent; once it has been called no
// further callbacks are delivered.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
