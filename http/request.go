package http

import (
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
)

// Request is implemented by the application in order to process exactly one HTTP request.
// Callbacks are always called sequentially, in the following order:
//
//	OnBegin -> OnRequestLine -> OnHeaders -> OnBody* -> OnEnd
//
// Returning a non-nil error (or panicking) from any callback aborts the request: the
// connection is closed and no further callbacks are called. OnEnd is never called after
// a failed OnBody.
type Request interface {
	// OnBegin hands over the response, bound to the connection the request came from.
	OnBegin(response Response) error
	OnRequestLine(method, uri string, version proto.Version) error
	OnHeaders(hdrs headers.Headers) error
	// OnBody is called once per received body chunk. For non-streamed requests, it is called
	// exactly once with the whole body, even if it's empty. The slice is valid only during
	// the call and must be copied in order to be retained.
	OnBody(chunk []byte) error
	// OnEnd finalizes the request. Trailers are nil if none were sent.
	OnEnd(trailers headers.Headers) error
}

// RequestFactory supplies a Request implementation for each inbound request.
type RequestFactory interface {
	NewInstance() (Request, error)
}

// FactoryFunc adapts an ordinary function to the RequestFactory.
type FactoryFunc func() (Request, error)

func (f FactoryFunc) NewInstance() (Request, error) {
	return f()
}

// Singleton returns a factory, always returning the same instance. Useful mainly for
// tests, as the instance is shared among all the connections.
func Singleton(request Request) RequestFactory {
	return FactoryFunc(func() (Request, error) {
		return request, nil
	})
}

// ConnectionHook is notified about every newly opened connection. It has no protocol
// significance and is intended for accounting only.
type ConnectionHook interface {
	OnOpen()
}

// HookFunc adapts an ordinary function to the ConnectionHook.
type HookFunc func()

func (h HookFunc) OnOpen() {
	h()
}
