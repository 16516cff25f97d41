package http1

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
	"github.com/indigo-web/asynchttp/http/status"
	"github.com/indigo-web/utils/strcomp"
)

// Wire is where the serialized response goes to. tcp.Client satisfies it.
type Wire interface {
	Write([]byte) error
	Close() error
}

// Serializer renders responses in HTTP/1.x. Identity framing is chosen when the response
// carries a Content-Length or the protocol has no chunked encoding (HTTP/1.0), otherwise
// the body is chunked. Connection: close is always added, as every connection serves
// exactly one request.
type Serializer struct {
	id       string
	wire     Wire
	buff     []byte
	chunked  bool
	bodiless bool
}

func NewSerializer(id string, wire Wire, buff []byte) *Serializer {
	return &Serializer{
		id:   id,
		wire: wire,
		buff: buff[:0],
	}
}

func (s *Serializer) ID() string {
	return s.id
}

func (s *Serializer) Close() error {
	return s.wire.Close()
}

func (s *Serializer) SendStatusAndHeaders(
	version proto.Version, code int, reason string, hdrs headers.Headers,
) error {
	s.bodiless = isBodiless(code)
	s.chunked = !s.bodiless && version.AtLeast(proto.HTTP11) && !hdrs.Has("Content-Length")

	buff := append(s.buff[:0], version.String()...)
	buff = append(buff, ' ')
	buff = strconv.AppendInt(buff, int64(code), 10)
	buff = append(buff, ' ')
	buff = append(buff, reason...)
	buff = append(buff, crlf...)

	for _, key := range hdrs.Keys() {
		// framing is the serializer's business only
		if strcomp.EqualFold(key, "Connection") || strcomp.EqualFold(key, "Transfer-Encoding") {
			continue
		}

		buff = appendFields(buff, key, hdrs[key])
	}

	if s.chunked {
		buff = append(buff, "Transfer-Encoding: chunked\r\n"...)
	}

	buff = append(buff, "Connection: close\r\n\r\n"...)

	return s.write(buff)
}

// SendBodyFragment writes the fragment as is or as a chunk. Empty fragments are skipped,
// because an empty chunk terminates the body.
func (s *Serializer) SendBodyFragment(b []byte) error {
	if s.bodiless || len(b) == 0 {
		return nil
	}

	if !s.chunked {
		return s.wire.Write(b)
	}

	buff := strconv.AppendUint(s.buff[:0], uint64(len(b)), 16)
	buff = append(buff, crlf...)
	buff = append(buff, b...)
	buff = append(buff, crlf...)

	return s.write(buff)
}

// SendTrailers finishes the response. Trailers are only transmitted in chunked framing,
// otherwise they are silently dropped.
func (s *Serializer) SendTrailers(trailers headers.Headers) error {
	if !s.chunked {
		return nil
	}

	buff := append(s.buff[:0], chunkZeroTrailer...)
	for _, key := range trailers.Keys() {
		buff = appendFields(buff, key, trailers[key])
	}

	buff = append(buff, crlf...)

	return s.write(buff)
}

// WriteError answers with a minimal plain-text response built from the error. Errors other
// than status.HTTPError are answered with 400 Bad Request.
func (s *Serializer) WriteError(version proto.Version, err error) error {
	var httpErr status.HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = status.HTTPError{Code: status.BadRequest, Message: "bad request"}
	}

	if version.IsZero() {
		version = proto.HTTP11
	}

	hdrs := headers.FromPairs(
		"Content-Type", "text/plain",
		"Content-Length", strconv.Itoa(len(httpErr.Message)),
	)

	if err = s.SendStatusAndHeaders(version, httpErr.Code, status.Reason(httpErr.Code), hdrs); err != nil {
		return err
	}

	return s.SendBodyFragment([]byte(httpErr.Message))
}

func (s *Serializer) write(buff []byte) error {
	// the buffer may have grown, so keep it for later
	s.buff = buff[:0]
	return s.wire.Write(buff)
}

func appendFields(buff []byte, key string, values []string) []byte {
	for _, value := range values {
		buff = append(buff, key...)
		buff = append(buff, ": "...)
		buff = append(buff, value...)
		buff = append(buff, crlf...)
	}

	return buff
}

// isBodiless reports whether the status forbids a body, see RFC 9110, 6.4.1.
func isBodiless(code int) bool {
	return code < 200 || code == status.NoContent || code == status.NotModified
}
