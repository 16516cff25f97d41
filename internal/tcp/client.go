package tcp

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type Client interface {
	Read() ([]byte, error)
	Write([]byte) error
	Remote() net.Addr
	// Close closes the connection. Only the first call has an effect, subsequent ones
	// return nil.
	Close() error
	// Closed reports whether Close was called.
	Closed() bool
}

type client struct {
	conn    net.Conn
	buff    []byte
	timeout time.Duration
	once    sync.Once
	closed  atomic.Bool
}

// NewClient wraps the connection. Zero timeout disables read deadlines.
func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		buff:    buff,
		conn:    conn,
		timeout: timeout,
	}
}

// Read reads a new portion of data into the internal buffer. The returned slice is valid
// until the next call only.
func (c *client) Read() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)

	return c.buff[:n], err
}

func (c *client) Write(b []byte) error {
	_, err := c.conn.Write(b)

	return err
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() (err error) {
	c.once.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})

	return err
}

func (c *client) Closed() bool {
	return c.closed.Load()
}
