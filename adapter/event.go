package adapter

import (
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
)

// Kind enumerates transport events.
type Kind uint8

const (
	KindOpened Kind = iota + 1
	KindRequestLine
	KindHead
	KindContent
	KindChunk
	KindLastChunk
	KindPeerClosed
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindOpened:
		return "opened"
	case KindRequestLine:
		return "request line"
	case KindHead:
		return "headers"
	case KindContent:
		return "content"
	case KindChunk:
		return "chunk"
	case KindLastChunk:
		return "last chunk"
	case KindPeerClosed:
		return "closed by peer"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is a single transport event, scoped to one connection. Only the fields relevant
// to the Kind are set.
type Event struct {
	Kind    Kind
	Method  string
	URI     string
	Version proto.Version
	// Headers holds request headers for KindHead and trailers for KindLastChunk. Trailers
	// are nil if the request had none.
	Headers headers.Headers
	// Streamed is set by KindHead if the body arrives in chunks. Otherwise, the whole body
	// arrives in a single KindContent event.
	Streamed bool
	Data     []byte
	Err      error
}

func Opened() Event {
	return Event{Kind: KindOpened}
}

func RequestLine(method, uri string, version proto.Version) Event {
	return Event{Kind: KindRequestLine, Method: method, URI: uri, Version: version}
}

func Head(hdrs headers.Headers, streamed bool) Event {
	return Event{Kind: KindHead, Headers: hdrs, Streamed: streamed}
}

// Content carries the complete body of a non-streamed request.
func Content(body []byte) Event {
	return Event{Kind: KindContent, Data: body}
}

func Chunk(data []byte) Event {
	return Event{Kind: KindChunk, Data: data}
}

func LastChunk(trailers headers.Headers) Event {
	return Event{Kind: KindLastChunk, Headers: trailers}
}

// PeerClosed reports the connection being closed by the other side. The cause is optional.
func PeerClosed(cause error) Event {
	return Event{Kind: KindPeerClosed, Err: cause}
}

// Failure reports a transport-fatal error, e.g. malformed input or a timeout.
func Failure(err error) Event {
	return Event{Kind: KindFailure, Err: err}
}
