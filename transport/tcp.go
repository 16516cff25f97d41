package transport

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/config"
	"golang.org/x/net/netutil"
)

type TCP struct {
	l     net.Listener
	wrap  func(net.Listener) net.Listener
	wg    *sync.WaitGroup
	stop  *atomic.Bool
	mu    *sync.Mutex
	conns map[net.Conn]struct{}
}

func NewTCP() *TCP {
	tcp := newTCP(nil)
	return &tcp
}

func newTCP(wrap func(net.Listener) net.Listener) TCP {
	return TCP{
		wrap:  wrap,
		wg:    new(sync.WaitGroup),
		stop:  new(atomic.Bool),
		mu:    new(sync.Mutex),
		conns: make(map[net.Conn]struct{}),
	}
}

func (t *TCP) Bind(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "bind %s", addr)
	}

	if t.wrap != nil {
		l = t.wrap(l)
	}

	t.mu.Lock()
	t.l = l
	t.mu.Unlock()

	return nil
}

func (t *TCP) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.l == nil {
		return nil
	}

	return t.l.Addr()
}

// Listen accepts connections until stopped. If the number of connections is limited, the
// listener doesn't accept more until some of the live ones are over.
func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	t.mu.Lock()
	if t.l == nil {
		t.mu.Unlock()
		return errors.New("transport isn't bound")
	}

	if cfg.MaxConnections > 0 {
		t.l = netutil.LimitListener(t.l, cfg.MaxConnections)
	}

	l := t.l
	t.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if t.stop.Load() {
				return nil
			}

			return errors.Wrap(err, "accept")
		}

		t.track(conn)
		t.wg.Add(1)

		go func(conn net.Conn) {
			defer t.wg.Done()
			defer t.untrack(conn)

			cb(conn)
			_ = conn.Close()
		}(conn)
	}
}

// Stop closes the listener, which is the only way to interrupt a pending Accept.
func (t *TCP) Stop() {
	t.stop.Store(true)
	t.Close()
}

func (t *TCP) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.conns {
		_ = conn.Close()
	}
}

func (t *TCP) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.l != nil {
		_ = t.l.Close()
	}
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

func (t *TCP) track(conn net.Conn) {
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
}

func (t *TCP) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}
