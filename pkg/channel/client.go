package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/pipeline"
)

// Handlers receive inbound server events. Unset handlers drop their events.
type Handlers struct {
	OnTextChunk        func(chunk string)
	OnTextComplete     func(fullText string)
	OnSessionCompleted func(message string, score float64)
	OnError            func(message string)
}

// envelope is the wire framing in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is the bidirectional event channel to the interview server.
// One read loop dispatches inbound events to the handlers; outbound sends
// are serialized.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers
	logger   pipeline.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Dial connects to the interview server and starts the read loop.
func Dial(ctx context.Context, serverURL string, handlers Handlers, logger pipeline.Logger) (*Client, error) {
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}

	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", pipeline.ErrConnection, serverURL, err)
	}
	conn.SetReadLimit(1 << 20)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		handlers: handlers,
		logger:   logger,
		ctx:      cctx,
		cancel:   cancel,
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) JoinSession(sessionID string) error {
	return c.send("join_session", map[string]string{"session_id": sessionID})
}

func (c *Client) StartSession() error {
	return c.send("start_session", struct{}{})
}

func (c *Client) SendUserResponse(text string) error {
	return c.send("user_response", map[string]string{"text": text})
}

// Close shuts the channel down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) send(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pipeline.ErrChannelClosed
	}
	env := map[string]interface{}{"event": event}
	if data != nil {
		env["data"] = data
	}
	return wsjson.Write(c.ctx, c.conn, env)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Warn("server channel read failed", "error", err)
				if c.handlers.OnError != nil {
					c.handlers.OnError(fmt.Sprintf("connection lost: %v", err))
				}
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch parses one inbound frame. A malformed envelope or payload is
// dropped with a warning; it never takes down the channel.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping malformed channel message", "error", err)
		return
	}
	payload := env.Data
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	switch env.Event {
	case "text_chunk":
		var p struct {
			Chunk string `json:"chunk"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			c.logger.Warn("dropping malformed text_chunk payload", "error", err)
			return
		}
		if c.handlers.OnTextChunk != nil {
			c.handlers.OnTextChunk(p.Chunk)
		}
	case "text_complete":
		var p struct {
			FullText string `json:"full_text"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			c.logger.Warn("dropping malformed text_complete payload", "error", err)
			return
		}
		if c.handlers.OnTextComplete != nil {
			c.handlers.OnTextComplete(p.FullText)
		}
	case "session_completed":
		var p struct {
			Message string  `json:"message"`
			Score   float64 `json:"score"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			c.logger.Warn("dropping malformed session_completed payload", "error", err)
			return
		}
		if c.handlers.OnSessionCompleted != nil {
			c.handlers.OnSessionCompleted(p.Message, p.Score)
		}
	case "error":
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			c.logger.Warn("dropping malformed error payload", "error", err)
			return
		}
		if c.handlers.OnError != nil {
			c.handlers.OnError(p.Message)
		}
	default:
		c.logger.Debug("ignoring channel event", "event", env.Event)
	}
}
