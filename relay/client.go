package relay

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Client is one live websocket connection in a room.
type Client struct {
	Role Role
	Room string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, role Role, room string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		Role: role,
		Room: room,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// IsOpen reports whether the client still accepts messages.
func (c *Client) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send queues msg for the writer without blocking. A closed client or a full
// queue drops the message and returns false.
func (c *Client) Send(msg []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close marks the client closed. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. Any write failure tears the socket down, which in turn
// ends the read loop.
func (c *Client) writePump(ctx context.Context, writeTimeout, pingInterval time.Duration, log zerolog.Logger) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.withTimeout(ctx, writeTimeout, func(ctx context.Context) error {
				return c.conn.Write(ctx, websocket.MessageText, msg)
			}); err != nil {
				log.Debug().Err(err).Msg("write failed, dropping connection")
				c.Close()
				c.conn.CloseNow()
				return
			}
		case <-ping:
			if err := c.withTimeout(ctx, writeTimeout, c.conn.Ping); err != nil {
				log.Debug().Err(err).Msg("ping failed, dropping connection")
				c.Close()
				c.conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
