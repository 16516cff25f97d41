package transport

import (
	"net"

	"github.com/indigo-web/asynchttp/config"
)

// Transport accepts connections and runs the callback for every one of them in its own
// goroutine.
type Transport interface {
	Bind(addr string) error
	// Addr returns the bound address. It's nil until Bind succeeded.
	Addr() net.Addr
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	// Stop stops accepting new connections, so Listen returns.
	Stop()
	// Drop closes all the connections, that are still alive.
	Drop()
	// Close releases the listener.
	Close()
	// Wait blocks until every callback returned.
	Wait()
}
