package response

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
)

type state uint8

const (
	eNew state = iota
	eStatusLine
	eHeaders
	eEnded
	eBroken
)

func (s state) String() string {
	switch s {
	case eNew:
		return "new"
	case eStatusLine:
		return "status line written"
	case eHeaders:
		return "headers written"
	case eEnded:
		return "ended"
	case eBroken:
		return "broken"
	default:
		return "unknown"
	}
}

var _ http.Response = new(Writer)

// Writer guards the http.Sink, letting through only the single legal sequence of writes.
// Not safe for concurrent use: all writes for one response must be ordered.
type Writer struct {
	sink    http.Sink
	state   state
	version proto.Version
	code    int
	reason  string
	// err is the sink error, which broke the response.
	err error
}

func NewWriter(sink http.Sink) *Writer {
	return &Writer{sink: sink}
}

func (w *Writer) WriteStatusLine(version proto.Version, code int, reason string) error {
	if err := w.expect(eNew, "status line"); err != nil {
		return err
	}

	switch {
	case version.IsZero():
		return http.InvalidArgument("protocol version is absent")
	case code <= 0:
		return http.InvalidArgument("status code must be positive, got %d", code)
	case len(strings.TrimSpace(reason)) == 0:
		return http.InvalidArgument("reason phrase is absent")
	case strings.ContainsAny(reason, "\r\n"):
		return http.InvalidArgument("reason phrase contains CR or LF")
	}

	w.version, w.code, w.reason = version, code, reason
	w.state = eStatusLine

	return nil
}

func (w *Writer) WriteHeaders(hdrs headers.Headers) error {
	if err := w.expect(eStatusLine, "headers"); err != nil {
		return err
	}

	if err := hdrs.Validate(); err != nil {
		return errors.Mark(err, http.ErrInvalidArgument)
	}

	if err := w.sink.SendStatusAndHeaders(w.version, w.code, w.reason, hdrs); err != nil {
		return w.broken(err, "send status line and headers")
	}

	w.state = eHeaders
	return nil
}

func (w *Writer) WriteBody(fragment []byte) error {
	if err := w.expect(eHeaders, "body"); err != nil {
		return err
	}

	if fragment == nil {
		return http.InvalidArgument("body fragment is absent")
	}

	if err := w.sink.SendBodyFragment(fragment); err != nil {
		return w.broken(err, "send body fragment")
	}

	return nil
}

func (w *Writer) WriteEnd(trailers headers.Headers) error {
	if err := w.expect(eHeaders, "end"); err != nil {
		return err
	}

	if trailers != nil {
		if err := trailers.Validate(); err != nil {
			return errors.Mark(err, http.ErrInvalidArgument)
		}
	}

	if err := w.sink.SendTrailers(trailers); err != nil {
		return w.broken(err, "send trailers")
	}

	w.state = eEnded
	return nil
}

// Ended reports whether the response was completed.
func (w *Writer) Ended() bool {
	return w.state == eEnded
}

func (w *Writer) expect(want state, what string) error {
	switch w.state {
	case want:
		return nil
	case eBroken:
		return w.err
	default:
		return http.InvalidState("cannot write %s: response is %s", what, w.state)
	}
}

func (w *Writer) broken(err error, op string) error {
	w.state = eBroken
	w.err = errors.Wrap(err, op)

	return w.err
}
