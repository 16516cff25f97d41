package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "ASYNCHTTP_"

type (
	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket
		ReadBufferSize int `env:"READ_BUFFER_SIZE"`
		// ReadTimeout controls the maximal lifetime of IDLE connections. If no data was
		// received in this period of time, it'll be closed. Zero disables the timeout.
		ReadTimeout time.Duration `env:"READ_TIMEOUT"`
		// MaxConnections limits the number of simultaneously served connections. Further
		// connections wait in the listen backlog. Zero means no limit.
		MaxConnections int `env:"MAX_CONNECTIONS" test:"nullable"`
		// EventQueueSize is the capacity of the per-connection queue between the reader and
		// the request callbacks. When it's full, the reader stops consuming the socket.
		EventQueueSize int `env:"EVENT_QUEUE_SIZE"`
	}

	Headers struct {
		// MaxNumber is the maximal number of header field lines per request. Trailer field
		// lines are counted separately, but against the same limit.
		MaxNumber int `env:"MAX_NUMBER"`
		// MaxSpace limits the request line plus the header block, in bytes.
		MaxSpace int `env:"MAX_SPACE"`
	}

	Body struct {
		// MaxSize describes the maximal size of a body, that can be processed. Requests with
		// a bigger body are rejected with 413.
		MaxSize uint64 `env:"MAX_SIZE"`
		// MaxChunkSize limits the size of a single body event. Bigger chunks are split.
		MaxChunkSize int `env:"MAX_CHUNK_SIZE"`
	}

	Log struct {
		// Level defaults to info, which is zapcore.Level's zero value.
		Level       zapcore.Level `env:"LEVEL" test:"nullable"`
		Development bool          `env:"DEVELOPMENT" test:"nullable"`
	}
)

// Config holds settings used across various parts of asynchttp, mainly restrictions and
// limitations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	// Addr is the address plain TCP listener binds to.
	Addr    string  `env:"ADDR"`
	NET     NET     `envPrefix:"NET_"`
	Headers Headers `envPrefix:"HEADERS_"`
	Body    Body    `envPrefix:"BODY_"`
	Log     Log     `envPrefix:"LOG_"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Addr: "0.0.0.0:8080",
		NET: NET{
			ReadBufferSize: 4 * 1024, // 4kb is more than enough for ordinary requests.
			ReadTimeout:    90 * time.Second,
			MaxConnections: 0,
			EventQueueSize: 16,
		},
		Headers: Headers{
			MaxNumber: 50,
			// allow at most 16kb of request line and headers, which is pretty tolerant,
			// considering most web-entities limit it to 4-8kb. However, there also might be
			// extremely long cookies.
			MaxSpace: 16 * 1024,
		},
		Body: Body{
			MaxSize:      512 * 1024 * 1024, // 512 megabytes
			MaxChunkSize: 64 * 1024,
		},
		Log: Log{
			Level: zapcore.InfoLevel,
		},
	}
}

// FromEnv returns the default config overridden by ASYNCHTTP_-prefixed environment variables,
// e.g. ASYNCHTTP_NET_READ_TIMEOUT=30s.
func FromEnv() (*Config, error) {
	return FromEnvironment(nil)
}

// FromEnvironment does the same as FromEnv, but takes variables from the passed map. Nil map
// means the process environment.
func FromEnvironment(environ map[string]string) (*Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports settings which can't work at all.
func (c *Config) Validate() error {
	switch {
	case c.NET.ReadBufferSize <= 0:
		return errors.Newf("read buffer size must be positive, got %d", c.NET.ReadBufferSize)
	case c.NET.EventQueueSize <= 0:
		return errors.Newf("event queue size must be positive, got %d", c.NET.EventQueueSize)
	case c.NET.MaxConnections < 0:
		return errors.Newf("max connections must not be negative, got %d", c.NET.MaxConnections)
	case c.Headers.MaxNumber <= 0:
		return errors.Newf("max headers number must be positive, got %d", c.Headers.MaxNumber)
	case c.Headers.MaxSpace <= 0:
		return errors.Newf("max headers space must be positive, got %d", c.Headers.MaxSpace)
	case c.Body.MaxChunkSize <= 0:
		return errors.Newf("max chunk size must be positive, got %d", c.Body.MaxChunkSize)
	}

	return nil
}
