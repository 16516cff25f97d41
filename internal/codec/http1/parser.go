package http1

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-web/asynchttp/adapter"
	"github.com/indigo-web/asynchttp/config"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
	"github.com/indigo-web/asynchttp/http/status"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

type parserState uint8

const (
	eRequestLine parserState = iota
	eHeaderFields
	eContentBody
	eChunkedBody
	eDone
)

// Parser decodes a single HTTP/1.x request into adapter events. Data may be fed in
// arbitrary pieces. The request line and the headers are held back until the whole
// header block is received, so a malformed head never reaches the adapter.
//
// Every emitted event owns its data, nothing points into the fed buffers.
type Parser struct {
	cfg       *config.Config
	state     parserState
	line      []byte
	space     int
	fields    int
	method    string
	uri       string
	version   proto.Version
	headers   headers.Headers
	body      []byte
	bodySize  uint64
	remaining uint64
	chunked   chunkedParser
}

func NewParser(cfg *config.Config) *Parser {
	return &Parser{
		cfg:     cfg,
		state:   eRequestLine,
		chunked: newChunkedParser(cfg.Headers.MaxNumber, cfg.Headers.MaxSpace),
	}
}

// Started reports whether the request was already passed to the adapter, i.e. the head
// was emitted. After that, failures cannot be answered with an error response anymore.
func (p *Parser) Started() bool {
	return p.state >= eContentBody
}

// Version returns the protocol version of the current request, or the zero version if the
// request line wasn't parsed yet.
func (p *Parser) Version() proto.Version {
	return p.version
}

// Feed consumes the data and emits events for everything that's complete. It returns true
// once the request is over. Bytes past the end of the request are ignored, as the connection
// is closed after every request anyway.
func (p *Parser) Feed(data []byte, emit func(adapter.Event)) (done bool, err error) {
	for len(data) > 0 {
		switch p.state {
		case eRequestLine, eHeaderFields:
			var (
				line     []byte
				complete bool
			)

			line, data, complete, err = p.cutLine(data)
			if err != nil || !complete {
				return false, err
			}

			if p.state == eRequestLine {
				err = p.parseRequestLine(line)
			} else {
				err = p.parseHeaderLine(line, emit)
			}

			p.line = p.line[:0]
			if err != nil {
				return false, err
			}
		case eContentBody:
			n := min(p.remaining, uint64(len(data)))
			p.body = append(p.body, data[:n]...)
			p.remaining -= n
			data = data[n:]

			if p.remaining == 0 {
				emit(adapter.Content(p.body))
				p.body = nil
				p.state = eDone
			}
		case eChunkedBody:
			var chunk []byte
			chunk, data, err = p.chunked.Parse(data)
			if len(chunk) > 0 {
				if p.bodySize += uint64(len(chunk)); p.bodySize > p.cfg.Body.MaxSize {
					return false, status.ErrBodyTooLarge
				}

				p.emitChunk(chunk, emit)
			}

			switch err {
			case nil:
			case io.EOF:
				emit(adapter.LastChunk(p.chunked.Trailers()))
				p.state = eDone
			default:
				return false, err
			}
		case eDone:
			return true, nil
		}
	}

	return p.state == eDone, nil
}

// cutLine returns the next complete line without the line terminator. Incomplete lines are
// preserved until the rest arrives.
func (p *Parser) cutLine(data []byte) (line, rest []byte, complete bool, err error) {
	boundary := bytes.IndexByte(data, '\n')
	if boundary == -1 {
		if err = p.consume(len(data)); err != nil {
			return nil, nil, false, err
		}

		p.line = append(p.line, data...)
		return nil, nil, false, nil
	}

	if err = p.consume(boundary + 1); err != nil {
		return nil, nil, false, err
	}

	line = data[:boundary]
	if len(p.line) > 0 {
		p.line = append(p.line, line...)
		line = p.line
	}

	return bytes.TrimSuffix(line, cr), data[boundary+1:], true, nil
}

func (p *Parser) consume(n int) error {
	if p.space += n; p.space > p.cfg.Headers.MaxSpace {
		if p.state == eRequestLine {
			return status.ErrURITooLong
		}

		return status.ErrHeaderFieldsTooLarge
	}

	return nil
}

func (p *Parser) parseRequestLine(line []byte) error {
	if len(line) == 0 {
		// at least one empty line before the request line should be ignored
		return nil
	}

	method, rest, found := bytes.Cut(line, sp)
	if !found || !isToken(method) {
		return status.ErrBadRequestLine
	}

	uri, protocol, found := bytes.Cut(rest, sp)
	if !found || !isRequestTarget(uri) {
		return status.ErrBadRequestLine
	}

	version := proto.FromBytes(protocol)
	switch {
	case version.IsZero():
		return status.ErrBadRequestLine
	case version.Major != 1:
		return status.ErrHTTPVersionNotSupported
	}

	p.method, p.uri, p.version = string(method), string(uri), version
	p.headers = headers.New()
	p.state = eHeaderFields

	return nil
}

func (p *Parser) parseHeaderLine(line []byte, emit func(adapter.Event)) error {
	if len(line) == 0 {
		return p.completeHead(emit)
	}

	if line[0] == ' ' || line[0] == '\t' {
		// obsolete line folding is rejected as RFC 9112, 5.2 permits
		return status.ErrBadHeader
	}

	if p.fields++; p.fields > p.cfg.Headers.MaxNumber {
		return status.ErrTooManyHeaders
	}

	key, value, found := bytes.Cut(line, colon)
	if !found || !isToken(key) {
		return status.ErrBadHeader
	}

	p.headers.Add(string(key), string(bytes.Trim(value, " \t")))

	return nil
}

func (p *Parser) completeHead(emit func(adapter.Event)) error {
	encodings := p.headers.Values("Transfer-Encoding")
	lengths := p.headers.Values("Content-Length")

	if len(encodings) > 0 {
		if len(lengths) > 0 {
			// both framings at once is the classic request smuggling vector
			return status.ErrBadRequest
		}

		if !isChunked(encodings) {
			return status.ErrUnsupportedEncoding
		}

		p.emitHead(emit, true)
		p.state = eChunkedBody

		return nil
	}

	length, err := contentLength(lengths)
	if err != nil {
		return err
	}

	if length > p.cfg.Body.MaxSize {
		return status.ErrBodyTooLarge
	}

	p.emitHead(emit, false)

	if length == 0 {
		emit(adapter.Content([]byte{}))
		p.state = eDone
		return nil
	}

	p.remaining = length
	p.body = make([]byte, 0, min(length, uint64(p.cfg.NET.ReadBufferSize)))
	p.state = eContentBody

	return nil
}

func (p *Parser) emitHead(emit func(adapter.Event), streamed bool) {
	emit(adapter.RequestLine(p.method, p.uri, p.version))
	emit(adapter.Head(p.headers, streamed))
	p.headers = nil
}

// emitChunk splits the chunk into events no longer than the configured limit. Data is
// copied, as it points into the read buffer.
func (p *Parser) emitChunk(chunk []byte, emit func(adapter.Event)) {
	for len(chunk) > 0 {
		n := min(len(chunk), p.cfg.Body.MaxChunkSize)
		emit(adapter.Chunk(bytes.Clone(chunk[:n])))
		chunk = chunk[n:]
	}
}

// isChunked reports whether chunked is the only transfer coding. Other codings aren't
// supported, so they are rejected rather than passed through undecoded.
func isChunked(encodings []string) bool {
	coding := strings.TrimSpace(strings.Join(encodings, ","))
	return strcomp.EqualFold(coding, "chunked")
}

// contentLength parses the header values. Repeated values are tolerated as long as they
// are all the same, as RFC 9110, 8.6 allows.
func contentLength(values []string) (length uint64, err error) {
	if len(values) == 0 {
		return 0, nil
	}

	first := true
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			n, perr := strconv.ParseUint(strings.TrimSpace(token), 10, 64)
			if perr != nil || (!first && n != length) {
				return 0, status.ErrBadContentLength
			}

			length, first = n, false
		}
	}

	return length, nil
}

func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}

	for _, char := range b {
		if !tokenChars[char] {
			return false
		}
	}

	return true
}

func isRequestTarget(b []byte) bool {
	if len(b) == 0 {
		return false
	}

	for _, char := range b {
		if char <= ' ' || char == 0x7f {
			return false
		}
	}

	return true
}

// tokenChars marks tchar as defined in RFC 9110, 5.6.2.
var tokenChars = func() (table [256]bool) {
	for _, char := range uf.S2B("!#$%&'*+-.^_`|~") {
		table[char] = true
	}

	for char := '0'; char <= '9'; char++ {
		table[char] = true
	}

	for char := 'a'; char <= 'z'; char++ {
		table[char] = true
		table[char-'a'+'A'] = true
	}

	return table
}()

var (
	sp    = uf.S2B(" ")
	cr    = uf.S2B("\r")
	colon = uf.S2B(":")
)
