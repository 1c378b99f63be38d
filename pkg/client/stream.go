package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Message is one frame of the pool stream. The first frame after connecting
// carries the pool State, later frames carry an Update.
type Message struct {
	State  *PoolState
	Update *Update
}

// StreamClient follows the pool's reserve updates over websocket.
type StreamClient struct {
	url  string
	conn *websocket.Conn
	mu   sync.Mutex

	msgCh chan Message
	done  chan struct{}
	once  sync.Once

	connected atomic.Bool
}

// NewStreamClient creates a stream client. baseURL may use http(s) or ws(s);
// the /ws path is appended.
func NewStreamClient(baseURL string) *StreamClient {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	}
	return &StreamClient{
		url:   u + "/ws",
		msgCh: make(chan Message, 256),
		done:  make(chan struct{}),
	}
}

// Connect establishes the websocket connection.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing websocket: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	c.conn = conn
	c.connected.Store(true)

	log.Info().Str("url", c.url).Msg("Stream connected")
	return nil
}

// Close closes the connection. ReadMessages returns once it has.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.once.Do(func() { close(c.done) })
	c.connected.Store(false)

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *StreamClient) IsConnected() bool {
	return c.connected.Load()
}

// Messages returns the channel of decoded stream frames.
func (c *StreamClient) Messages() <-chan Message {
	return c.msgCh
}

// ReadMessages reads frames until the connection closes and sends them to
// the Messages channel. The channel is closed on return.
func (c *StreamClient) ReadMessages(ctx context.Context) error {
	defer close(c.msgCh)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			select {
			case <-c.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("message", string(data)).Msg("Failed to parse stream message")
			continue
		}

		select {
		case c.msgCh <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}
	}
}

// DecodeMessage decodes one stream frame.
func DecodeMessage(data []byte) (Message, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Message{}, err
	}

	if probe.Kind != "" {
		var u Update
		if err := json.Unmarshal(data, &u); err != nil {
			return Message{}, err
		}
		return Message{Update: &u}, nil
	}

	var s PoolState
	if err := json.Unmarshal(data, &s); err != nil {
		return Message{}, err
	}
	if s.Address == "" {
		return Message{}, fmt.Errorf("unrecognized stream message")
	}
	return Message{State: &s}, nil
}

// Ping sends a ping to keep the connection alive.
func (c *StreamClient) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// StartPingLoop sends periodic pings until ctx is canceled or the client is closed.
func (c *StreamClient) StartPingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				log.Warn().Err(err).Msg("Ping failed")
			}
		}
	}
}
