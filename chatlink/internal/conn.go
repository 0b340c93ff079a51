package internal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// Conn wraps websocket.Conn with per-operation timeouts.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConn(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Read returns the next data frame. Decoding is left to the caller so
// that malformed payloads can be told apart from transport failures.
func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	return c.ws.Read(ctx)
}

// Write sends v as one JSON text frame with no trailing newline.
func (c *Conn) Write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := c.writeContext(ctx)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Ping requires a concurrent Read to receive the pong.
func (c *Conn) Ping(ctx context.Context) error {
	ctx, cancel := c.writeContext(ctx)
	defer cancel()
	return c.ws.Ping(ctx)
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

func (c *Conn) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.writeTimeout > 0 {
		return context.WithTimeout(ctx, c.writeTimeout)
	}
	return context.WithCancel(ctx)
}
