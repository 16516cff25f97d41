package dummy

import (
	"sync"

	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
)

var _ http.Sink = new(Sink)

// Sink records everything sent through it instead of writing to the wire. It also
// implements the connection interface the adapter closes, counting the closes.
type Sink struct {
	mu       sync.Mutex
	id       string
	journal  []string
	failures map[string]error

	Version  proto.Version
	Code     int
	Reason   string
	Headers  headers.Headers
	Body     []byte
	Trailers headers.Headers
	Ended    bool
	closes   int
}

func NewSink(id string) *Sink {
	return &Sink{
		id:       id,
		failures: make(map[string]error),
	}
}

// FailOn makes the operation (one of "head", "body", "trailers", "close") return the error.
func (s *Sink) FailOn(op string, err error) *Sink {
	s.failures[op] = err
	return s
}

func (s *Sink) ID() string {
	return s.id
}

func (s *Sink) SendStatusAndHeaders(
	version proto.Version, code int, reason string, hdrs headers.Headers,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("head"); err != nil {
		return err
	}

	s.Version, s.Code, s.Reason = version, code, reason
	s.Headers = hdrs.Clone()
	return nil
}

func (s *Sink) SendBodyFragment(fragment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("body"); err != nil {
		return err
	}

	s.Body = append(s.Body, fragment...)
	return nil
}

func (s *Sink) SendTrailers(trailers headers.Headers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("trailers"); err != nil {
		return err
	}

	s.Trailers = trailers.Clone()
	s.Ended = true
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++
	return s.record("close")
}

// Journal returns the names of all operations in order they were called.
func (s *Sink) Journal() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.journal...)
}

// Closes returns how many times the sink was closed.
func (s *Sink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closes
}

func (s *Sink) record(op string) error {
	s.journal = append(s.journal, op)
	return s.failures[op]
}
