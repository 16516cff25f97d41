package server

import (
	"io"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/dchest/uniuri"
	"github.com/indigo-web/asynchttp/adapter"
	"github.com/indigo-web/asynchttp/config"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/internal/codec/http1"
	"github.com/indigo-web/asynchttp/internal/tcp"
	"go.uber.org/zap"
)

// Server serves connections, one request per connection. It's shared by all the transports,
// so it's safe for concurrent use.
type Server struct {
	cfg     *config.Config
	factory http.RequestFactory
	hook    http.ConnectionHook
	log     *zap.Logger
}

func NewServer(
	cfg *config.Config, factory http.RequestFactory, hook http.ConnectionHook, log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		cfg:     cfg,
		factory: factory,
		hook:    hook,
		log:     log,
	}
}

// Serve blocks until the request cycle of the connection is over and the connection is closed.
func (s *Server) Serve(conn net.Conn) {
	sess := s.newSession(conn)
	sess.log.Debug("serving connection", zap.Stringer("remote", sess.client.Remote()))

	events := make(chan adapter.Event, s.cfg.NET.EventQueueSize)
	go sess.read(events)

	adapter.New(sess.serializer, s.factory, s.hook, s.log).Run(events)
	_ = sess.client.Close()
}

func (s *Server) newSession(conn net.Conn) *session {
	id := uniuri.New()
	client := tcp.NewClient(conn, s.cfg.NET.ReadTimeout, make([]byte, s.cfg.NET.ReadBufferSize))

	return &session{
		client:     client,
		parser:     http1.NewParser(s.cfg),
		serializer: http1.NewSerializer(id, client, make([]byte, 0, 1024)),
		log:        s.log.Named("session").With(zap.String("conn", id)),
	}
}

// session is the reading half of a connection.
type session struct {
	client     tcp.Client
	parser     *http1.Parser
	serializer *http1.Serializer
	log        *zap.Logger
}

// read decodes the connection into events until the request is complete or the connection
// is gone. The channel is closed on return, which finishes the adapter's loop.
//
// When the queue is full, sending blocks and so does reading the socket, which propagates
// the backpressure to the peer.
func (s *session) read(events chan<- adapter.Event) {
	defer close(events)

	emit := func(ev adapter.Event) {
		events <- ev
	}

	emit(adapter.Opened())

	for {
		data, err := s.client.Read()
		if len(data) > 0 {
			done, perr := s.parser.Feed(data, emit)
			if perr != nil {
				s.reject(perr, emit)
				return
			}

			if done {
				return
			}
		}

		if err != nil {
			switch {
			case s.client.Closed():
				// the adapter closed the connection, so it doesn't care anymore
			case errors.Is(err, io.EOF):
				emit(adapter.PeerClosed(nil))
			default:
				emit(adapter.Failure(errors.Wrap(err, "read")))
			}

			return
		}
	}
}

// reject answers malformed requests with an error response, if the request hasn't reached
// the adapter yet. Otherwise, the response might be already in progress, so the only option
// is closing the connection.
func (s *session) reject(err error, emit func(adapter.Event)) {
	if !s.parser.Started() {
		if werr := s.serializer.WriteError(s.parser.Version(), err); werr != nil {
			s.log.Debug("cannot write error response", zap.Error(werr))
		}
	}

	emit(adapter.Failure(errors.Wrap(err, "malformed request")))
}
