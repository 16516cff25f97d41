package http1

import (
	"bytes"
	"io"

	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/status"
	"github.com/indigo-web/asynchttp/internal/hexconv"
	"github.com/indigo-web/utils/uf"
)

type chunkedParserState uint8

const (
	eChunkLength chunkedParserState = iota
	eChunkExt
	eChunkLengthCR
	eChunkBody
	eChunkBodyDone
	eChunkBodyCRLF
	eChunkTrailer
	eChunkTrailerCRLF
	eChunkTrailerFieldLine
)

// maxChunkLengthDigits sets the implicit limit of a single chunk length to 4GiB, which
// is supposedly should be enough.
const maxChunkLengthDigits = 8

type chunkedParser struct {
	state        chunkedParserState
	lengthDigits uint8
	chunkLength  uint64
	maxFields    int
	maxSpace     int
	fields       int
	space        int
	line         []byte
	trailers     headers.Headers
}

func newChunkedParser(maxFields, maxSpace int) chunkedParser {
	return chunkedParser{
		state:     eChunkLength,
		maxFields: maxFields,
		maxSpace:  maxSpace,
	}
}

// Parse returns a chunk when it's ready, nil otherwise. io.EOF signals that the body
// is complete, the trailer section is available via Trailers then. The parser resets
// automatically.
func (c *chunkedParser) Parse(data []byte) (chunk, extra []byte, err error) {
	switch c.state {
	case eChunkLength:
		goto chunkLength
	case eChunkExt:
		goto chunkExt
	case eChunkLengthCR:
		goto chunkLengthCR
	case eChunkBody:
		goto chunkBody
	case eChunkBodyDone:
		goto chunkBodyDone
	case eChunkBodyCRLF:
		goto chunkBodyCRLF
	case eChunkTrailer:
		goto trailer
	case eChunkTrailerCRLF:
		goto chunkTrailerCRLF
	case eChunkTrailerFieldLine:
		goto chunkTrailerFieldLine
	default:
		panic("unreachable code")
	}

chunkLength:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case '\r':
			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			data = data[i:]
			goto chunkLengthCR
		case ';':
			data = data[i+1:]
			goto chunkExt
		default:
			val := hexconv.Halfbyte[char]
			if val == 0xFF {
				return nil, nil, status.ErrBadChunk
			}

			c.chunkLength = (c.chunkLength << 4) | uint64(val)
			if c.lengthDigits++; c.lengthDigits > maxChunkLengthDigits {
				return nil, nil, status.ErrBadChunk
			}
		}
	}

	c.state = eChunkLength
	return nil, nil, nil

chunkExt:
	{
		// chunk extensions aren't supported, therefore completely ignored.
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			c.state = eChunkExt
			return nil, nil, nil
		}

		data = data[boundary+1:]
		if c.lengthDigits == 0 {
			return nil, nil, status.ErrBadChunk
		}

		if c.chunkLength == 0 {
			goto trailer
		}

		goto chunkBody
	}

chunkLengthCR:
	if len(data) == 0 {
		c.state = eChunkLengthCR
		return nil, nil, nil
	}

	if data[0] != '\n' || c.lengthDigits == 0 {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]

	if c.chunkLength == 0 {
		goto trailer
	}

	goto chunkBody

chunkBody:
	{
		n := min(c.chunkLength, uint64(len(data)))
		c.chunkLength -= n
		chunk = data[:n]

		if c.chunkLength == 0 {
			c.state = eChunkBodyDone
		} else {
			c.state = eChunkBody
		}

		return chunk, data[n:], nil
	}

chunkBodyDone:
	if len(data) == 0 {
		c.state = eChunkBodyDone
		return nil, nil, nil
	}

	c.lengthDigits = 0
	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkBodyCRLF
	case '\n':
		data = data[1:]
		goto chunkLength
	default:
		return nil, nil, status.ErrBadChunk
	}

chunkBodyCRLF:
	if len(data) == 0 {
		c.state = eChunkBodyCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	goto chunkLength

trailer:
	if len(data) == 0 {
		c.state = eChunkTrailer
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkTrailerCRLF
	case '\n':
		c.reset()
		return nil, data[1:], io.EOF
	default:
		// we've got some field lines
		goto chunkTrailerFieldLine
	}

chunkTrailerCRLF:
	if len(data) == 0 {
		c.state = eChunkTrailerCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	c.reset()
	return nil, data[1:], io.EOF

chunkTrailerFieldLine:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if c.space += len(data); c.space > c.maxSpace {
				return nil, nil, status.ErrHeaderFieldsTooLarge
			}

			c.line = append(c.line, data...)
			c.state = eChunkTrailerFieldLine
			return nil, nil, nil
		}

		if c.space += boundary + 1; c.space > c.maxSpace {
			return nil, nil, status.ErrHeaderFieldsTooLarge
		}

		line := data[:boundary]
		if len(c.line) > 0 {
			c.line = append(c.line, line...)
			line = c.line
		}

		data = data[boundary+1:]
		if err = c.addTrailer(line); err != nil {
			return nil, nil, err
		}

		c.line = c.line[:0]
		goto trailer
	}
}

// Trailers returns the trailer section of the last completed body and forgets it. Nil is
// returned if the section was empty.
func (c *chunkedParser) Trailers() headers.Headers {
	trailers := c.trailers
	c.trailers = nil

	return trailers
}

func (c *chunkedParser) addTrailer(line []byte) error {
	if c.fields++; c.fields > c.maxFields {
		return status.ErrTooManyHeaders
	}

	key, value, found := bytes.Cut(bytes.TrimSuffix(line, cr), colon)
	key = bytes.TrimSpace(key)
	if !found || len(key) == 0 {
		return status.ErrBadChunk
	}

	if c.trailers == nil {
		c.trailers = headers.New()
	}

	// both are copied, as the line points into the read buffer
	c.trailers.Add(string(key), string(bytes.TrimSpace(value)))

	return nil
}

func (c *chunkedParser) reset() {
	c.state = eChunkLength
	c.lengthDigits = 0
	c.chunkLength = 0
	c.fields = 0
	c.space = 0
	c.line = c.line[:0]
}

var (
	crlf             = uf.S2B("\r\n")
	chunkZeroTrailer = uf.S2B("0\r\n")
)
