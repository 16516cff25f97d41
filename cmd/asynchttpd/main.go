// Command asynchttpd serves one of the sample handlers. Settings are read from ASYNCHTTP_
// environment variables, see the config package. ASYNCHTTPD_HANDLER picks the handler.
package main

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/indigo-web/asynchttp"
	"github.com/indigo-web/asynchttp/config"
	"github.com/indigo-web/asynchttp/handlers"
	"github.com/indigo-web/asynchttp/http"
	"github.com/indigo-web/asynchttp/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type daemon struct {
	Handler  string   `env:"HANDLER" envDefault:"inspect"`
	TLSAddr  string   `env:"TLS_ADDR"`
	Domains  []string `env:"DOMAINS"`
	CertFile string   `env:"CERT_FILE"`
	KeyFile  string   `env:"KEY_FILE"`
}

var factories = map[string]http.RequestFactory{
	"hello":   handlers.Factory(handlers.NewHelloWorld),
	"echo":    handlers.Factory(handlers.NewEcho),
	"chunked": handlers.Factory(handlers.NewChunkedEcho),
	"inspect": handlers.Factory(handlers.NewInspect),
}

func main() {
	fx.New(
		fx.NopLogger,
		fx.Provide(config.FromEnv),
		fx.Provide(parseDaemon),
		fx.Provide(func(cfg *config.Config) (*zap.Logger, error) {
			return logging.New(cfg.Log)
		}),
		fx.Provide(newApp),
		fx.Invoke(serveHook),
	).Run()
}

func parseDaemon() (daemon, error) {
	d, err := env.ParseAsWithOptions[daemon](env.Options{Prefix: "ASYNCHTTPD_"})
	if err != nil {
		return d, errors.Wrap(err, "parse environment")
	}

	if _, ok := factories[d.Handler]; !ok {
		return d, errors.Newf("unknown handler %q", d.Handler)
	}

	return d, nil
}

func newApp(cfg *config.Config, d daemon, log *zap.Logger) *asynchttp.App {
	app := asynchttp.New(cfg.Addr).Tune(cfg).Logger(log)

	switch {
	case len(d.TLSAddr) == 0:
	case len(d.CertFile) > 0:
		app.HTTPS(d.TLSAddr, d.CertFile, d.KeyFile)
	default:
		app.AutoHTTPS(d.TLSAddr, d.Domains...)
	}

	return app
}

// serveHook runs the app for the lifetime of the fx application. A transport failure shuts
// the whole application down.
func serveHook(lc fx.Lifecycle, sd fx.Shutdowner, app *asynchttp.App, d daemon, log *zap.Logger) {
	errch := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			started := make(chan struct{})
			app.NotifyOnStart(func() {
				close(started)
			})

			log.Info("starting server", zap.String("handler", d.Handler))
			go func() {
				errch <- app.Serve(factories[d.Handler])
			}()

			select {
			case <-started:
			case err := <-errch:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}

			go func() {
				if err := <-errch; err != nil {
					log.Error("server error", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping server")

			stopped := make(chan error, 1)
			go func() {
				stopped <- app.GracefulStop()
			}()

			select {
			case err := <-stopped:
				if errors.Is(err, asynchttp.ErrNotListening) {
					// already down due to an error
					return nil
				}

				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
