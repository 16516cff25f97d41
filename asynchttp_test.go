package asynchttp

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"io/fs"
	"net"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/indigo-web/asynchttp/handlers"
	"github.com/indigo-web/asynchttp/http"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const localhost = "localhost:0"

// run serves the app in background and waits until it's listening.
func run(t *testing.T, app *App, factory http.RequestFactory) <-chan error {
	started := make(chan struct{})
	app.NotifyOnStart(func() {
		close(started)
	})

	errch := make(chan error, 1)
	go func() {
		errch <- app.Serve(factory)
	}()

	select {
	case <-started:
	case err := <-errch:
		t.Fatalf("serve: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("app didn't start in time")
	}

	return errch
}

func wait(t *testing.T, errch <-chan error) error {
	select {
	case err := <-errch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app didn't stop in time")
		return nil
	}
}

func dial(t *testing.T, addr net.Addr, request string) net.Conn {
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	return conn
}

func TestApp(t *testing.T) {
	var opened atomic.Int32
	app := New(localhost).
		AutoHTTPS(localhost).
		OnConnection(http.HookFunc(func() {
			opened.Add(1)
		}))
	errch := run(t, app, handlers.Factory(handlers.NewInspect))
	require.True(t, app.Listening())
	addrs := app.Addrs()
	require.Len(t, addrs, 2)
	plain, secure := "http://"+addrs[0].String(), "https://"+addrs[1].String()

	t.Run("plain", func(t *testing.T) {
		var body string
		err := requests.
			URL(plain+"/hello?a=b").
			Method(stdhttp.MethodPost).
			Header("Hello", "world").
			BodyBytes([]byte("Hello, world!")).
			ToString(&body).
			Fetch(context.Background())
		require.NoError(t, err)

		report := gjson.Parse(body)
		require.Equal(t, "POST", report.Get("method").String())
		require.Equal(t, "/hello?a=b", report.Get("uri").String())
		require.Equal(t, "HTTP/1.1", report.Get("protocol").String())
		require.Equal(t, "world", report.Get("headers.Hello.0").String())
		require.Equal(t, "Hello, world!", report.Get("body").String())
		require.Equal(t, int64(1), report.Get("chunks").Int())
	})

	t.Run("chunked", func(t *testing.T) {
		var body string
		err := requests.
			URL(plain).
			Method(stdhttp.MethodPost).
			// unknown length makes the client choose the chunked encoding
			BodyReader(io.MultiReader(strings.NewReader("Hello, "), strings.NewReader("world!"))).
			ToString(&body).
			Fetch(context.Background())
		require.NoError(t, err)

		report := gjson.Parse(body)
		require.Equal(t, "chunked", report.Get("headers.Transfer-Encoding.0").String())
		require.Equal(t, "Hello, world!", report.Get("body").String())
		require.Equal(t, int64(13), report.Get("body_size").Int())
	})

	t.Run("https", func(t *testing.T) {
		client := &stdhttp.Client{
			Transport: &stdhttp.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}

		var body string
		err := requests.
			URL(secure + "/secure").
			Client(client).
			ToString(&body).
			Fetch(context.Background())
		require.NoError(t, err)
		require.Equal(t, "/secure", gjson.Get(body, "uri").String())
	})

	t.Run("many connections", func(t *testing.T) {
		const n = 32
		var (
			wg     sync.WaitGroup
			failed atomic.Int32
		)

		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()

				var body string
				err := requests.URL(plain).BodyBytes([]byte("x")).ToString(&body).Fetch(context.Background())
				if err != nil || gjson.Get(body, "body").String() != "x" {
					failed.Add(1)
				}
			}()
		}

		wg.Wait()
		require.Zero(t, failed.Load())
	})

	t.Run("malformed request", func(t *testing.T) {
		conn := dial(t, addrs[0], "GET / HTTP/1.1\r\nHello world\r\n\r\n")
		defer conn.Close()

		resp, err := stdhttp.ReadResponse(bufio.NewReader(conn), nil)
		require.NoError(t, err)
		require.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
		require.True(t, resp.Close)
	})

	t.Run("already listening", func(t *testing.T) {
		require.ErrorIs(t, app.Serve(handlers.Factory(handlers.NewEcho)), ErrAlreadyListening)
	})

	require.NoError(t, app.Stop())
	require.NoError(t, wait(t, errch))
	require.False(t, app.Listening())
	require.Nil(t, app.Addrs())
	require.Positive(t, opened.Load())
	require.ErrorIs(t, app.Stop(), ErrNotListening)
}

func TestApp_Stop(t *testing.T) {
	serving := func(t *testing.T) (*App, <-chan error, <-chan struct{}) {
		opened := make(chan struct{}, 1)
		app := New(localhost).OnConnection(http.HookFunc(func() {
			opened <- struct{}{}
		}))

		return app, run(t, app, handlers.Factory(handlers.NewEcho)), opened
	}

	t.Run("stop drops live connections", func(t *testing.T) {
		app, errch, opened := serving(t)
		conn := dial(t, app.Addrs()[0], "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nHel")
		defer conn.Close()
		<-opened

		require.NoError(t, app.Stop())
		require.NoError(t, wait(t, errch))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		n, err := conn.Read(make([]byte, 64))
		require.Zero(t, n)
		require.Error(t, err)
		require.NotErrorIs(t, err, os.ErrDeadlineExceeded)
	})

	t.Run("graceful stop waits for live connections", func(t *testing.T) {
		app, errch, opened := serving(t)
		addr := app.Addrs()[0]
		conn := dial(t, addr, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nHel")
		defer conn.Close()
		<-opened

		stopped := make(chan error, 1)
		go func() {
			stopped <- app.GracefulStop()
		}()

		require.Never(t, func() bool {
			return len(stopped) > 0
		}, 200*time.Millisecond, 10*time.Millisecond)

		_, err := net.DialTimeout("tcp", addr.String(), time.Second)
		require.Error(t, err, "listener must be closed already")

		_, err = conn.Write([]byte("lo"))
		require.NoError(t, err)
		resp, err := stdhttp.ReadResponse(bufio.NewReader(conn), nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "Hello", string(body))

		require.NoError(t, <-stopped)
		require.NoError(t, wait(t, errch))
	})

	t.Run("not listening", func(t *testing.T) {
		app := New(localhost)
		require.ErrorIs(t, app.Stop(), ErrNotListening)
		require.ErrorIs(t, app.GracefulStop(), ErrNotListening)
	})
}

func TestApp_Errors(t *testing.T) {
	factory := handlers.Factory(handlers.NewHelloWorld)

	t.Run("no factory", func(t *testing.T) {
		require.ErrorIs(t, New(localhost).Serve(nil), ErrNoFactory)
	})

	t.Run("no transports", func(t *testing.T) {
		require.ErrorIs(t, New("").Serve(factory), ErrNoTransports)
	})

	t.Run("missing certificate files", func(t *testing.T) {
		app := New(localhost).HTTPS(localhost, "/nonexistent/cert.pem", "/nonexistent/key.pem")
		require.ErrorIs(t, app.Serve(factory), fs.ErrNotExist)
		require.False(t, app.Listening())
	})

	t.Run("no certificates", func(t *testing.T) {
		app := New(localhost).Bind(HTTPS(localhost))
		require.ErrorIs(t, app.Serve(factory), ErrNoCertificates)
	})

	t.Run("empty certificate", func(t *testing.T) {
		app := New(localhost).Bind(HTTPS(localhost, Cert("/nonexistent/cert.pem", "/nonexistent/key.pem")))
		require.ErrorIs(t, app.Serve(factory), ErrBadCertificate)
	})

	t.Run("address in use", func(t *testing.T) {
		l, err := net.Listen("tcp", localhost)
		require.NoError(t, err)
		defer l.Close()

		app := New(localhost).Bind(TCP(l.Addr().String()))
		require.Error(t, app.Serve(factory))
		require.False(t, app.Listening())
	})

	t.Run("bad config", func(t *testing.T) {
		app := New(localhost)
		cfg := *app.cfg
		cfg.NET.EventQueueSize = 0
		require.Error(t, app.Tune(&cfg).Serve(factory))
	})
}

func TestIsLocalhost(t *testing.T) {
	for addr, want := range map[string]bool{
		"localhost:80":   true,
		"127.0.0.1:443":  true,
		"[::1]:8080":     true,
		"example.com:80": false,
		"0.0.0.0:80":     false,
		"localhost":      false,
	} {
		require.Equal(t, want, isLocalhost(addr), addr)
	}
}
