// Package handlers contains ready-to-use request implementations. They are mostly useful
// for testing and benchmarking the server.
package handlers

import (
	"strconv"

	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
	"github.com/indigo-web/asynchttp/http/status"
)

// base keeps what every handler needs in order to respond.
type base struct {
	resp    http.Response
	method  string
	uri     string
	version proto.Version
}

func (b *base) OnBegin(response http.Response) error {
	b.resp = response
	return nil
}

func (b *base) OnRequestLine(method, uri string, version proto.Version) error {
	b.method, b.uri, b.version = method, uri, version
	return nil
}

func (b *base) OnHeaders(headers.Headers) error {
	return nil
}

// respond writes a complete response with the body of known length.
func (b *base) respond(code int, contentType string, body []byte) error {
	if err := b.resp.WriteStatusLine(b.version, code, status.Reason(code)); err != nil {
		return err
	}

	hdrs := headers.FromPairs(
		"Content-Type", contentType,
		"Content-Length", strconv.Itoa(len(body)),
	)
	if err := b.resp.WriteHeaders(hdrs); err != nil {
		return err
	}

	if err := b.resp.WriteBody(body); err != nil {
		return err
	}

	return b.resp.WriteEnd(nil)
}

var helloWorld = []byte("Hello, world!")

// HelloWorld responds with a fixed body, ignoring the request body.
type HelloWorld struct {
	base
}

func (*HelloWorld) OnBody([]byte) error {
	return nil
}

func (h *HelloWorld) OnEnd(headers.Headers) error {
	return h.respond(status.OK, "text/plain", helloWorld)
}

// Echo responds with the request body once it's received completely.
type Echo struct {
	base
	body []byte
}

func (e *Echo) OnBody(chunk []byte) error {
	e.body = append(e.body, chunk...)
	return nil
}

func (e *Echo) OnEnd(headers.Headers) error {
	if e.body == nil {
		e.body = []byte{}
	}

	return e.respond(status.OK, "application/octet-stream", e.body)
}

// ChunkedEcho starts responding as soon as the headers arrive and sends every body chunk
// back as soon as it's received. Trailers are mirrored too.
type ChunkedEcho struct {
	base
}

func (c *ChunkedEcho) OnHeaders(hdrs headers.Headers) error {
	if err := c.resp.WriteStatusLine(c.version, status.OK, status.Reason(status.OK)); err != nil {
		return err
	}

	response := headers.FromPairs("Content-Type", "application/octet-stream")
	if trailer := hdrs.Values("Trailer"); len(trailer) > 0 {
		response.Set("Trailer", trailer...)
	}

	return c.resp.WriteHeaders(response)
}

func (c *ChunkedEcho) OnBody(chunk []byte) error {
	return c.resp.WriteBody(chunk)
}

func (c *ChunkedEcho) OnEnd(trailers headers.Headers) error {
	return c.resp.WriteEnd(trailers)
}

// Factory returns a factory instantiating requests via the constructor, e.g.
//
//	handlers.Factory(func() *handlers.Echo { return new(handlers.Echo) })
func Factory[T http.Request](constructor func() T) http.RequestFactory {
	return http.FactoryFunc(func() (http.Request, error) {
		return constructor(), nil
	})
}

func NewHelloWorld() *HelloWorld {
	return new(HelloWorld)
}

func NewEcho() *Echo {
	return new(Echo)
}

func NewChunkedEcho() *ChunkedEcho {
	return new(ChunkedEcho)
}
