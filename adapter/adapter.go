package adapter

import (
	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/internal/response"
	"go.uber.org/zap"
)

// Conn is the transport side of a single connection.
type Conn interface {
	http.Sink
	ID() string
	// Close closes the underlying connection. The adapter calls it at most once per
	// request cycle, however transports must tolerate double close anyway.
	Close() error
}

type state uint8

const (
	eIdle state = iota
	eAwaitingHeaders
	eContent
	eBody
	eClosed
)

func (s state) String() string {
	switch s {
	case eIdle:
		return "idle"
	case eAwaitingHeaders:
		return "awaiting headers"
	case eContent:
		return "awaiting content"
	case eBody:
		return "receiving body"
	case eClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Adapter translates transport events of one connection into ordered calls on a
// http.Request and closes the connection exactly once, whatever happens to the request.
//
// Adapter isn't safe for concurrent use. Events of one connection must be delivered
// sequentially, which Run does by draining a channel from a single goroutine.
type Adapter struct {
	conn     Conn
	factory  http.RequestFactory
	hook     http.ConnectionHook
	log      *zap.Logger
	state    state
	opened   bool
	request  http.Request
	response *response.Writer
}

// New returns an adapter for the connection. Hook is optional and may be nil.
func New(conn Conn, factory http.RequestFactory, hook http.ConnectionHook, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		conn:    conn,
		factory: factory,
		hook:    hook,
		log:     log.Named("adapter").With(zap.String("conn", conn.ID())),
	}
}

// Run handles events in order of arrival until the channel is closed. Events, arrived after
// the connection was closed, are discarded.
func (a *Adapter) Run(events <-chan Event) {
	for ev := range events {
		a.Handle(ev)
	}
}

// Handle processes a single event. Nothing is ever propagated back: all the failures are
// logged and result in closing the connection.
func (a *Adapter) Handle(ev Event) {
	if a.state == eClosed {
		a.log.Warn("discarding event on closed connection", zap.Stringer("event", ev.Kind))
		return
	}

	a.log.Debug("event", zap.Stringer("event", ev.Kind), zap.Stringer("state", a.state))

	switch ev.Kind {
	case KindOpened:
		a.onOpened(ev)
	case KindRequestLine:
		a.onRequestLine(ev)
	case KindHead:
		a.onHead(ev)
	case KindContent:
		a.onContent(ev)
	case KindChunk:
		a.onChunk(ev)
	case KindLastChunk:
		a.onLastChunk(ev)
	case KindPeerClosed:
		// the peer is free to go whenever it wants, so that's not a bug
		a.log.Info("connection closed by peer", zap.Stringer("state", a.state), zap.Error(ev.Err))
		a.close()
	case KindFailure:
		a.log.Warn("transport failure", zap.Stringer("state", a.state), zap.Error(ev.Err))
		a.close()
	default:
		a.unexpected(ev)
	}
}

// Closed reports whether the connection was already closed by the adapter.
func (a *Adapter) Closed() bool {
	return a.state == eClosed
}

func (a *Adapter) onOpened(ev Event) {
	if a.opened || a.state != eIdle {
		a.unexpected(ev)
		return
	}

	a.opened = true
	a.log.Debug("connection opened")

	if a.hook == nil {
		return
	}

	if err := guard(func() error {
		a.hook.OnOpen()
		return nil
	}); err != nil {
		// the hook is just for accounting, so the connection is still fine
		a.log.Error("connection hook failed", zap.Error(err))
	}
}

func (a *Adapter) onRequestLine(ev Event) {
	if a.state != eIdle {
		a.unexpected(ev)
		return
	}

	var request http.Request
	err := guard(func() (err error) {
		request, err = a.factory.NewInstance()
		if err == nil && request == nil {
			err = errors.New("factory returned no request")
		}

		return err
	})
	if err != nil {
		a.log.Error("cannot obtain request", zap.Error(err))
		a.close()
		return
	}

	a.request = request
	a.response = response.NewWriter(a.conn)

	if !a.call("OnBegin", func() error {
		return a.request.OnBegin(a.response)
	}) {
		a.close()
		return
	}

	if !a.call("OnRequestLine", func() error {
		return a.request.OnRequestLine(ev.Method, ev.URI, ev.Version)
	}) {
		a.close()
		return
	}

	a.state = eAwaitingHeaders
}

func (a *Adapter) onHead(ev Event) {
	if a.state != eAwaitingHeaders {
		a.unexpected(ev)
		return
	}

	if !a.call("OnHeaders", func() error {
		return a.request.OnHeaders(ev.Headers)
	}) {
		a.close()
		return
	}

	if ev.Streamed {
		a.state = eBody
	} else {
		a.state = eContent
	}
}

func (a *Adapter) onContent(ev Event) {
	if a.state != eContent {
		a.unexpected(ev)
		return
	}

	defer a.close()

	body := ev.Data
	if body == nil {
		body = []byte{}
	}

	if !a.call("OnBody", func() error {
		return a.request.OnBody(body)
	}) {
		return
	}

	a.call("OnEnd", func() error {
		return a.request.OnEnd(nil)
	})
}

func (a *Adapter) onChunk(ev Event) {
	if a.state != eBody {
		a.unexpected(ev)
		return
	}

	if !a.call("OnBody", func() error {
		return a.request.OnBody(ev.Data)
	}) {
		a.close()
	}
}

func (a *Adapter) onLastChunk(ev Event) {
	if a.state != eBody {
		a.unexpected(ev)
		return
	}

	defer a.close()

	a.call("OnEnd", func() error {
		return a.request.OnEnd(ev.Headers)
	})
}

// unexpected handles events which aren't legal in the current state. This is a transport
// bug, so the connection is closed, as there's no way to tell what's going on anymore.
func (a *Adapter) unexpected(ev Event) {
	a.log.Warn(
		"unexpected event",
		zap.Stringer("event", ev.Kind),
		zap.Stringer("state", a.state),
	)
	a.close()
}

// call invokes the request callback and reports whether it succeeded.
func (a *Adapter) call(callback string, fn func() error) bool {
	if err := guard(fn); err != nil {
		a.log.Error("request callback failed", zap.String("callback", callback), zap.Error(err))
		return false
	}

	return true
}

func (a *Adapter) close() {
	if a.state == eClosed {
		return
	}

	if a.response != nil && !a.response.Ended() {
		a.log.Debug("closing connection with incomplete response")
	}

	a.state = eClosed
	a.request, a.response = nil, nil

	if err := a.conn.Close(); err != nil {
		a.log.Debug("error while closing connection", zap.Error(err))
	}
}

// guard turns panics into errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()

	return fn()
}
