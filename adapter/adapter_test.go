package adapter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/proto"
	"github.com/indigo-web/asynchttp/transport/dummy"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errInternal = errors.New("internal error")

// recorder journals every callback. A callback fails if it's listed in failOn, and panics
// if it's listed in panicOn. Body callback failures can be scheduled for a specific chunk.
type recorder struct {
	sink     *dummy.Sink
	calls    []string
	chunks   [][]byte
	trailers headers.Headers
	ended    bool
	// closesAtEnd is how many times the connection was closed when OnEnd was called
	closesAtEnd int
	failOn      map[string]bool
	panicOn     map[string]bool
	failOnChunk int
	respond     bool
	resp        http.Response
}

func newRecorder(sink *dummy.Sink) *recorder {
	return &recorder{
		sink:        sink,
		failOn:      map[string]bool{},
		panicOn:     map[string]bool{},
		failOnChunk: -1,
		closesAtEnd: -1,
	}
}

func (r *recorder) step(name string) error {
	r.calls = append(r.calls, name)
	if r.panicOn[name] {
		panic("boom in " + name)
	}

	if r.failOn[name] {
		return errInternal
	}

	return nil
}

func (r *recorder) OnBegin(resp http.Response) error {
	r.resp = resp
	return r.step("OnBegin")
}

func (r *recorder) OnRequestLine(method, uri string, version proto.Version) error {
	return r.step("OnRequestLine " + method + " " + uri + " " + version.String())
}

func (r *recorder) OnHeaders(hdrs headers.Headers) error {
	return r.step("OnHeaders")
}

func (r *recorder) OnBody(chunk []byte) error {
	r.chunks = append(r.chunks, bytes.Clone(chunk))
	if r.failOnChunk == len(r.chunks)-1 {
		r.calls = append(r.calls, "OnBody")
		return errInternal
	}

	return r.step("OnBody")
}

func (r *recorder) OnEnd(trailers headers.Headers) error {
	r.ended = true
	r.trailers = trailers
	r.closesAtEnd = r.sink.Closes()

	if r.respond {
		if err := r.resp.WriteStatusLine(proto.HTTP11, 200, "OK"); err != nil {
			return err
		}

		if err := r.resp.WriteHeaders(headers.FromPairs("Content-Length", "2")); err != nil {
			return err
		}

		if err := r.resp.WriteBody([]byte("ok")); err != nil {
			return err
		}

		if err := r.resp.WriteEnd(nil); err != nil {
			return err
		}
	}

	return r.step("OnEnd")
}

func newAdapter(hook http.ConnectionHook) (*Adapter, *recorder, *dummy.Sink, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := dummy.NewSink("conn-1")
	rec := newRecorder(sink)

	return New(sink, http.Singleton(rec), hook, zap.New(core)), rec, sink, logs
}

func feed(a *Adapter, events ...Event) {
	for _, ev := range events {
		a.Handle(ev)
	}
}

func requestHead(streamed bool) []Event {
	return []Event{
		Opened(),
		RequestLine("POST", "/", proto.HTTP11),
		Head(headers.FromPairs("Host", "localhost"), streamed),
	}
}

var fullCycle = []string{
	"OnBegin", "OnRequestLine POST / HTTP/1.1", "OnHeaders", "OnBody", "OnEnd",
}

func TestAdapter_NonStreamed(t *testing.T) {
	t.Run("whole body at once", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		feed(a, append(requestHead(false), Content([]byte("abc")))...)

		require.Equal(t, fullCycle, rec.calls)
		require.Equal(t, [][]byte{[]byte("abc")}, rec.chunks)
		require.Nil(t, rec.trailers)
		require.Zero(t, rec.closesAtEnd, "connection must be closed after OnEnd")
		require.Equal(t, 1, sink.Closes())
		require.True(t, a.Closed())
	})

	t.Run("empty body", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		feed(a, append(requestHead(false), Content(nil))...)

		require.Equal(t, fullCycle, rec.calls)
		require.Len(t, rec.chunks, 1)
		require.NotNil(t, rec.chunks[0])
		require.Empty(t, rec.chunks[0])
		require.Equal(t, 1, sink.Closes())
	})

	t.Run("response is written before close", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		rec.respond = true
		feed(a, append(requestHead(false), Content([]byte("abc")))...)

		require.Equal(t, []string{"head", "body", "trailers", "close"}, sink.Journal())
		require.Equal(t, "ok", string(sink.Body))
		require.True(t, sink.Ended)
	})

	t.Run("OnBody fails", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		rec.failOnChunk = 0
		feed(a, append(requestHead(false), Content([]byte("abc")))...)

		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
	})

	t.Run("OnBody panics", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		rec.panicOn["OnBody"] = true
		require.NotPanics(t, func() {
			feed(a, append(requestHead(false), Content([]byte("abc")))...)
		})

		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterMessage("request callback failed").Len())
	})

	t.Run("OnEnd fails", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		rec.failOn["OnEnd"] = true
		feed(a, append(requestHead(false), Content([]byte("abc")))...)

		require.Equal(t, fullCycle, rec.calls)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterField(zap.String("callback", "OnEnd")).Len())
	})
}

func TestAdapter_Streamed(t *testing.T) {
	chunks := []Event{Chunk([]byte("a")), Chunk([]byte("b")), Chunk([]byte("c"))}

	t.Run("no trailers", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		feed(a, requestHead(true)...)
		feed(a, chunks...)
		require.Zero(t, sink.Closes())
		feed(a, LastChunk(nil))

		require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, rec.chunks)
		require.Equal(t, []string{
			"OnBegin", "OnRequestLine POST / HTTP/1.1", "OnHeaders",
			"OnBody", "OnBody", "OnBody", "OnEnd",
		}, rec.calls)
		require.True(t, rec.ended)
		require.Nil(t, rec.trailers)
		require.Zero(t, rec.closesAtEnd)
		require.Equal(t, 1, sink.Closes())
	})

	t.Run("with trailers", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		feed(a, requestHead(true)...)
		feed(a, chunks...)
		feed(a, LastChunk(headers.FromPairs("Checksum", "900150983cd24fb0")))

		require.Equal(t, "900150983cd24fb0", rec.trailers.Value("checksum"))
		require.Equal(t, 1, sink.Closes())
	})

	t.Run("empty trailer section is not none", func(t *testing.T) {
		a, rec, _, _ := newAdapter(nil)
		feed(a, requestHead(true)...)
		feed(a, LastChunk(headers.New()))

		require.NotNil(t, rec.trailers)
		require.Empty(t, rec.trailers)
	})

	t.Run("OnBody fails on the second chunk", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		rec.failOnChunk = 1
		feed(a, requestHead(true)...)
		feed(a, chunks...)
		feed(a, LastChunk(nil))

		require.Len(t, rec.chunks, 2)
		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 2, logs.FilterMessage("discarding event on closed connection").Len())
	})

	t.Run("peer disconnects mid-body", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		feed(a, requestHead(true)...)
		feed(a, chunks[0], PeerClosed(errors.New("connection reset by peer")))

		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterMessage("connection closed by peer").Len())
	})
}

func TestAdapter_EarlyFailures(t *testing.T) {
	for _, tc := range []struct {
		name      string
		setup     func(rec *recorder)
		wantCalls int
	}{
		{
			name:      "OnBegin fails",
			setup:     func(rec *recorder) { rec.failOn["OnBegin"] = true },
			wantCalls: 1,
		},
		{
			name:      "OnBegin panics",
			setup:     func(rec *recorder) { rec.panicOn["OnBegin"] = true },
			wantCalls: 1,
		},
		{
			name:      "OnRequestLine fails",
			setup:     func(rec *recorder) { rec.failOn["OnRequestLine POST / HTTP/1.1"] = true },
			wantCalls: 2,
		},
		{
			name:      "OnHeaders fails",
			setup:     func(rec *recorder) { rec.failOn["OnHeaders"] = true },
			wantCalls: 3,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, rec, sink, _ := newAdapter(nil)
			tc.setup(rec)
			feed(a, requestHead(true)...)
			feed(a, Chunk([]byte("a")), LastChunk(nil))

			require.Len(t, rec.calls, tc.wantCalls)
			require.Empty(t, rec.chunks)
			require.False(t, rec.ended)
			require.Equal(t, 1, sink.Closes())
		})
	}

	t.Run("factory fails", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		sink := dummy.NewSink("conn-1")
		factory := http.FactoryFunc(func() (http.Request, error) {
			return nil, errInternal
		})
		a := New(sink, factory, nil, zap.New(core))
		feed(a, requestHead(false)...)

		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterMessage("cannot obtain request").Len())
	})

	t.Run("factory returns nothing", func(t *testing.T) {
		sink := dummy.NewSink("conn-1")
		factory := http.FactoryFunc(func() (http.Request, error) {
			return nil, nil
		})
		a := New(sink, factory, nil, nil)
		feed(a, requestHead(false)...)

		require.Equal(t, 1, sink.Closes())
	})
}

func TestAdapter_Transport(t *testing.T) {
	t.Run("hook", func(t *testing.T) {
		var opened int
		a, _, _, _ := newAdapter(http.HookFunc(func() { opened++ }))
		feed(a, append(requestHead(false), Content(nil))...)
		require.Equal(t, 1, opened)
	})

	t.Run("panicking hook", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(http.HookFunc(func() { panic("accounting is down") }))
		feed(a, append(requestHead(false), Content(nil))...)

		require.True(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterMessage("connection hook failed").Len())
	})

	t.Run("unexpected event", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		feed(a, Opened(), Chunk([]byte("a")))

		require.Empty(t, rec.calls)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterMessage("unexpected event").Len())
	})

	t.Run("content on streamed request", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		feed(a, append(requestHead(true), Content([]byte("abc")))...)

		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
	})

	t.Run("transport failure", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		feed(a, requestHead(true)...)
		feed(a, Failure(errors.New("read timeout")))

		require.False(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
		require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	})

	t.Run("events after close are discarded", func(t *testing.T) {
		a, rec, sink, logs := newAdapter(nil)
		feed(a, append(requestHead(false), Content([]byte("abc")))...)
		feed(a, Chunk([]byte("late")), LastChunk(nil), PeerClosed(nil))

		require.Len(t, rec.chunks, 1)
		require.Equal(t, 1, sink.Closes())

		discarded := logs.FilterMessage("discarding event on closed connection")
		require.Equal(t, 3, discarded.Len())
		for _, entry := range discarded.All() {
			require.Equal(t, zapcore.WarnLevel, entry.Level)
		}
	})

	t.Run("run drains in order", func(t *testing.T) {
		a, rec, sink, _ := newAdapter(nil)
		events := make(chan Event, 16)
		for _, ev := range requestHead(true) {
			events <- ev
		}

		for _, piece := range strings.Split("hello", "") {
			events <- Chunk([]byte(piece))
		}

		events <- LastChunk(nil)
		events <- Chunk([]byte("discarded"))
		close(events)
		a.Run(events)

		var body []byte
		for _, chunk := range rec.chunks {
			body = append(body, chunk...)
		}

		require.Equal(t, "hello", string(body))
		require.True(t, rec.ended)
		require.Equal(t, 1, sink.Closes())
	})
}
