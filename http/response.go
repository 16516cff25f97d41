package http

import (
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
)

// Response is a stateful write API for exactly one HTTP response. The only legal sequence
// of calls is:
//
//	WriteStatusLine -> WriteHeaders -> WriteBody* -> WriteEnd
//
// Calls out of order result in ErrInvalidState, malformed arguments in ErrInvalidArgument.
// Neither of them produces any output.
type Response interface {
	// WriteStatusLine records the status line. Nothing is sent until WriteHeaders.
	WriteStatusLine(version proto.Version, code int, reason string) error
	// WriteHeaders sends the status line along with the headers.
	WriteHeaders(hdrs headers.Headers) error
	// WriteBody sends a single body fragment. May be called any number of times.
	WriteBody(fragment []byte) error
	// WriteEnd completes the response. Trailers may be nil, in which case no trailer
	// section is sent.
	WriteEnd(trailers headers.Headers) error
}

// Sink is the transport side of the Response. The transport decides on the framing (content
// length or chunked), depending on whether the length of the body is known.
type Sink interface {
	SendStatusAndHeaders(version proto.Version, code int, reason string, hdrs headers.Headers) error
	SendBodyFragment(fragment []byte) error
	// SendTrailers sends the trailer section, if trailers aren't nil, and completes the
	// response in any case.
	SendTrailers(trailers headers.Headers) error
}
