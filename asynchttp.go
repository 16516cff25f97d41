package asynchttp

import (
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/config"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/internal/server"
	"github.com/indigo-web/asynchttp/transport"
	"go.uber.org/zap"
)

var (
	ErrAlreadyListening = errors.New("application is already listening")
	ErrNotListening     = errors.New("application is not listening")
	ErrNoTransports     = errors.New("no addresses to listen on")
	ErrNoFactory        = errors.New("no request factory")
)

// App is the server. It binds every transport on Serve and runs them until either one of
// them fails or the App is stopped. Every accepted connection serves exactly one request.
type App struct {
	addr       string
	cfg        *config.Config
	log        *zap.Logger
	hook       http.ConnectionHook
	transports []Transport
	hooks      hooks

	mu        sync.Mutex
	sv        *transport.Supervisor
	listening bool
}

// New returns a new App, serving plain HTTP on the addr. Empty addr disables the plain
// listener, which makes sense only if other transports are added.
func New(addr string) *App {
	return &App{
		addr: addr,
		cfg:  config.Default(),
		log:  zap.NewNop(),
	}
}

// Tune replaces the default config. Its Addr field is ignored, as the address is passed
// to New.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger sets the logger. Nothing is logged by default.
func (a *App) Logger(log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}

	a.log = log
	return a
}

// OnConnection sets the hook, notified about every accepted connection.
func (a *App) OnConnection(hook http.ConnectionHook) *App {
	a.hook = hook
	return a
}

// NotifyOnStart calls the callback as soon as all the transports are bound, right before
// accepting connections.
//
// NOTE: stopping the App from within the callback blocks forever.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback after all the transports are down and all the connections
// are closed.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Bind adds the transport to be served along with the plain listener.
func (a *App) Bind(t Transport) *App {
	a.transports = append(a.transports, t)
	return a
}

// HTTPS adds a TLS listener on the addr, using the certificate pair from the files.
func (a *App) HTTPS(addr, cert, key string) *App {
	return a.Bind(TLS(addr, cert, key))
}

// AutoHTTPS adds a TLS listener on the addr with certificates obtained automatically via
// ACME. Loopback addresses get a self-signed certificate instead, as no certificate
// authority issues certificates for them.
func (a *App) AutoHTTPS(addr string, domains ...string) *App {
	if isLocalhost(addr) {
		return a.Bind(SelfSigned(addr))
	}

	return a.Bind(AutoTLS(addr, domains...))
}

// Serve binds all the transports and blocks until the App is stopped or any of the transports
// failed. Stopping the App isn't considered an error.
func (a *App) Serve(factory http.RequestFactory) error {
	if factory == nil {
		return ErrNoFactory
	}

	if err := a.cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}

	a.mu.Lock()
	if a.sv != nil {
		a.mu.Unlock()
		return ErrAlreadyListening
	}

	sv := transport.NewSupervisor()
	a.sv = &sv
	a.mu.Unlock()

	defer a.release()

	srv := server.NewServer(a.cfg, factory, a.hook, a.log)
	if err := a.bind(&sv, srv.Serve); err != nil {
		return err
	}

	a.mu.Lock()
	a.listening = true
	a.mu.Unlock()

	for _, addr := range sv.Addrs() {
		a.log.Info("listening", zap.Stringer("addr", addr))
	}

	callIfNotNil(a.hooks.OnStart)
	err := sv.Run(a.cfg.NET)
	callIfNotNil(a.hooks.OnStop)

	if err != nil {
		a.log.Error("transport failed", zap.Error(err))
	} else {
		a.log.Info("stopped")
	}

	return err
}

// bind spawns and binds every transport. Transports which have already been bound are released
// if any of them fails.
func (a *App) bind(sv *transport.Supervisor, cb func(net.Conn)) error {
	ts := a.transports
	if len(a.addr) > 0 {
		ts = append([]Transport{TCP(a.addr)}, ts...)
	}

	if len(ts) == 0 {
		return ErrNoTransports
	}

	spawned := make([]transport.Transport, len(ts))
	for i, t := range ts {
		inner, err := t.spawn()
		if err != nil {
			return errors.Wrapf(err, "transport %s", t.addr)
		}

		spawned[i] = inner
	}

	for i, inner := range spawned {
		if err := sv.Add(ts[i].addr, inner, cb); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) release() {
	a.mu.Lock()
	a.sv, a.listening = nil, false
	a.mu.Unlock()
}

// Listening reports whether the App accepts connections.
func (a *App) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.listening
}

// Addrs returns addresses of all the listeners, in the order they were added. The plain
// listener always comes first. Nil is returned if the App isn't listening.
func (a *App) Addrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.listening {
		return nil
	}

	return a.sv.Addrs()
}

// Stop closes all the listeners along with all the live connections. Requests in progress
// are aborted. It returns as soon as all the transports are down.
func (a *App) Stop() error {
	return a.stop(true)
}

// GracefulStop closes all the listeners and waits until the live connections are over.
func (a *App) GracefulStop() error {
	return a.stop(false)
}

func (a *App) stop(drop bool) error {
	a.mu.Lock()
	sv, listening := a.sv, a.listening
	a.mu.Unlock()

	if !listening {
		return ErrNotListening
	}

	sv.Stop(drop)
	return nil
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
