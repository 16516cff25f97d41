package transport

import (
	"net"
	"sync/atomic"

	"github.com/indigo-web/asynchttp/config"
)

// Supervisor runs several bound transports together. The first one to fail stops all the
// others. A Supervisor can be run only once.
type Supervisor struct {
	stopped *atomic.Bool
	ts      []boundTransport
	stopch  chan bool
	done    chan struct{}
}

func NewSupervisor() Supervisor {
	return Supervisor{
		stopped: new(atomic.Bool),
		stopch:  make(chan bool),
		done:    make(chan struct{}),
	}
}

// Add binds the transport. All the transports added so far are released if binding fails.
func (s *Supervisor) Add(addr string, transport Transport, cb func(net.Conn)) error {
	err := transport.Bind(addr)
	if err != nil {
		s.close()
		return err
	}

	s.ts = append(s.ts, boundTransport{
		cb: cb,
		t:  transport,
	})

	return nil
}

// Addrs returns addresses of all the bound transports.
func (s *Supervisor) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.ts))
	for _, t := range s.ts {
		addrs = append(addrs, t.t.Addr())
	}

	return addrs
}

// Run blocks until either all the transports are stopped via Stop or one of them failed.
func (s *Supervisor) Run(cfg config.NET) error {
	defer close(s.done)

	if len(s.ts) == 0 {
		return nil
	}

	errch := make(chan error)

	for _, t := range s.ts {
		go func(t boundTransport, ch chan<- error) {
			ch <- t.t.Listen(cfg, t.cb)
		}(t, errch)
	}

	select {
	case err := <-errch:
		s.stop(false)
		drain(errch, len(s.ts)-1)

		return err
	case drop := <-s.stopch:
		s.stop(drop)
		drain(errch, len(s.ts))

		return nil
	}
}

// Stop stops accepting new connections and waits until the live ones are over. If drop is
// set, the live connections are closed instead of being waited for. Stop returns after Run
// did.
func (s *Supervisor) Stop(drop bool) {
	select {
	case s.stopch <- drop:
		<-s.done
	case <-s.done:
	}
}

func (s *Supervisor) stop(drop bool) {
	if s.stopped.Swap(true) {
		return
	}

	for _, t := range s.ts {
		t.t.Stop()
	}

	if drop {
		for _, t := range s.ts {
			t.t.Drop()
		}
	}

	for _, t := range s.ts {
		t.t.Wait()
		t.t.Close()
	}
}

func (s *Supervisor) close() {
	for _, t := range s.ts {
		t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}

func drain(ch <-chan error, n int) {
	for range n {
		<-ch
	}
}
