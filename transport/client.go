package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pthm-cable/fluid/params"
)

// Client sends parameter frames to a Server, redialling after a failed
// write. It is not safe for concurrent use.
type Client struct {
	Addr        string
	DialTimeout time.Duration // default 1s

	conn net.Conn
}

// Send encodes p and writes it as one frame. If the write fails the
// connection is dropped and a fresh one is dialled for the next call.
func (c *Client) Send(ctx context.Context, p params.Parameters) error {
	if c.conn == nil {
		if err := c.dial(ctx); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(params.Encode(p)); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("sending parameters to %s: %w", c.Addr, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("dialling %s: %w", c.Addr, err)
	}
	c.conn = conn
	return nil
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
