package telephony

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Conn wraps a server-accepted WebSocket connection from the telephony edge.
// ReadFrame must be called from a single goroutine; SendMedia and Close are
// safe for concurrent use.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an accepted WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadFrame reads and parses the next inbound frame. Transport errors are
// returned as-is; parse failures wrap [ErrMalformedFrame] and leave the
// connection usable.
func (c *Conn) ReadFrame(ctx context.Context) (Frame, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return ParseFrame(data)
}

// SendMedia emits one playback frame addressed to streamSID. The payload is
// forwarded opaquely; the caller must guarantee streamSID is known.
func (c *Conn) SendMedia(ctx context.Context, streamSID, payload string) error {
	data, err := EncodeMedia(streamSID, payload)
	if err != nil {
		return err
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("telephony: send media: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Subsequent calls are no-ops and
// return nil.
func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
