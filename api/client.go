package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handlers receive reporting-channel events. Calls arrive from a single
// reader goroutine, in frame order.
type Handlers struct {
	OnCollected  func([]File)
	OnTaskUpdate func([]File)
	OnFinished   func()
}

// Client is a persistent connection to the runner's reporting channel.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

const dialRetryInterval = 250 * time.Millisecond

// Dial connects to the reporting channel and starts dispatching frames to
// the handlers. The runner opens its channel a beat after the process
// starts, so the dial retries until the context expires.
func Dial(ctx context.Context, url string, h Handlers, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	var conn *websocket.Conn
	for {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", url, err)
		case <-time.After(dialRetryInterval):
		}
	}

	c := &Client{conn: conn, log: log, done: make(chan struct{})}
	go c.readLoop(h)
	return c, nil
}

func (c *Client) readLoop(h Handlers) {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("reporting channel closed", "err", err)
			return
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			c.log.Error("rejecting malformed frame", "err", err)
			continue
		}
		switch msg.Type {
		case MsgCollected:
			if h.OnCollected != nil {
				h.OnCollected(msg.Files)
			}
		case MsgTaskUpdate:
			if h.OnTaskUpdate != nil {
				h.OnTaskUpdate(msg.Files)
			}
		case MsgFinished:
			if h.OnFinished != nil {
				h.OnFinished()
			}
		}
	}
}

// Rerun asks the runner to re-execute the given file paths.
func (c *Client) Rerun(paths []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(Message{Type: MsgRerun, Paths: paths})
}

// Done is closed once the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}
