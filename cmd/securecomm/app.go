package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"code.securecomm.org/golang/internal/config"
	"code.securecomm.org/golang/internal/observability"
	"code.securecomm.org/golang/pkg/channel"
	"code.securecomm.org/golang/pkg/custody"
	custodybolt "code.securecomm.org/golang/pkg/custody/boltdb"
	"code.securecomm.org/golang/pkg/custody/pgdb"
	"code.securecomm.org/golang/pkg/engine"
	"code.securecomm.org/golang/pkg/keystore"
	keystorebolt "code.securecomm.org/golang/pkg/keystore/boltdb"
)

// App wires the securecomm components described by a config.Config.
type App struct {
	Cfg      config.Config
	Obs      *observability.Observability
	Registry *prometheus.Registry
	Keys     keystore.KeyCustody
	Prefs    custody.Prefs
	curve    string
}

type AppOption func(*App)

// WithCurve sets the identity key curve.
func WithCurve(name string) AppOption {
	return func(a *App) {
		a.curve = name
	}
}

// NewApp opens the key store & prefs backends selected by cfg. Logs are written to logw.
func NewApp(cfg config.Config, logw io.Writer, opts ...AppOption) (*App, error) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if nil != err {
		return nil, fmt.Errorf("failed registering metrics: %w", err)
	}
	app := &App{
		Cfg:      cfg,
		Registry: reg,
		Obs: &observability.Observability{
			Logger:  observability.NewLogger(logw, cfg.Log.Format, cfg.Log.Level),
			Metrics: metrics,
		},
	}
	for _, opt := range opts {
		opt(app)
	}

	switch cfg.Keystore.Backend {
	case config.BackendBolt:
		app.Keys, err = keystorebolt.New(keystorebolt.Config{
			Path:       cfg.Keystore.Path,
			Passphrase: cfg.Passphrase(),
		})
	default:
		app.Keys = keystore.NewMemKeyStore()
	}
	if nil != err {
		return nil, fmt.Errorf("failed opening keystore: %w", err)
	}

	switch cfg.Prefs.Backend {
	case config.BackendBolt:
		app.Prefs, err = custodybolt.New(cfg.Prefs.Path, cfg.Prefs.Namespace)
	case config.BackendPostgres:
		app.Prefs, err = pgdb.New(context.Background(), cfg.Prefs.DSN, cfg.Prefs.Schema, cfg.Prefs.Namespace)
	default:
		app.Prefs = custody.NewMemPrefs()
	}
	if nil != err {
		return nil, fmt.Errorf("failed opening prefs: %w", err)
	}

	return app, nil
}

// Close releases the postgres pool of the prefs backend, if any.
func (self *App) Close() {
	if pg, ok := self.Prefs.(*pgdb.Prefs); ok {
		pg.Close()
	}
}

// Engine returns an engine.Engine over keys configured from App settings.
func (self *App) Engine(keys keystore.KeyCustody) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithIdentityAlias(self.Cfg.Channel.IdentityAlias),
		engine.WithInfo(self.Cfg.Channel.HKDFInfo),
		engine.WithObservability(self.Obs),
	}
	if "" != self.curve {
		opts = append(opts, engine.WithCurve(self.curve))
	}
	return engine.New(keys, opts...)
}

// Channel returns a new channel.Channel over keys.
func (self *App) Channel(keys keystore.KeyCustody) (*channel.Channel, error) {
	eng, err := self.Engine(keys)
	if nil != err {
		return nil, err
	}
	return channel.New(
		eng,
		channel.WithReplayWindow(self.Cfg.Channel.ReplayWindow),
		channel.WithObservability(self.Obs),
	)
}

// Custody returns the custody.Store over App keys & prefs.
func (self *App) Custody() (*custody.Store, error) {
	return custody.New(self.Keys, self.Prefs, custody.WithObservability(self.Obs))
}

// PubKey prints the identity public key.
func (self *App) PubKey(out io.Writer) error {
	eng, err := self.Engine(self.Keys)
	if nil != err {
		return err
	}
	kp, err := eng.IdentityKeyPair()
	if nil != err {
		return err
	}
	_, err = fmt.Fprintln(out, base64.StdEncoding.EncodeToString(kp.PublicBytes))
	return err
}

func (self *App) Put(name string, value []byte) error {
	store, err := self.Custody()
	if nil != err {
		return err
	}
	return store.Store(name, value)
}

// Get prints the value stored under name, it errors if no valid record exists.
func (self *App) Get(name string, out io.Writer) error {
	store, err := self.Custody()
	if nil != err {
		return err
	}
	value, found, err := store.Retrieve(name)
	if nil != err {
		return err
	}
	if !found {
		return fmt.Errorf("no valid record for %q", name)
	}
	_, err = fmt.Fprintf(out, "%s\n", value)
	return err
}

func (self *App) Remove(name string) error {
	store, err := self.Custody()
	if nil != err {
		return err
	}
	return store.Remove(name)
}

func (self *App) Clear() error {
	store, err := self.Custody()
	if nil != err {
		return err
	}
	return store.Clear()
}

func (self *App) Destroy(name string) error {
	store, err := self.Custody()
	if nil != err {
		return err
	}
	return store.DestroyKey(name)
}

// MetricsHandler returns the /metrics handler wrapped in the observability Middleware.
func (self *App) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(self.Registry, promhttp.HandlerOpts{}))
	mw := observability.Middleware{TraceIdHeader: "X-Trace-Id", Obs: self.Obs}
	return mw.Wrap(mux)
}

// ServeMetrics serves MetricsHandler on ln until ctx is done.
func (self *App) ServeMetrics(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           self.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	self.Obs.Log().Info("serving metrics", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if nil != err && http.ErrServerClosed != err {
		self.Obs.Log().Error("metrics server failed", "error", err)
		return err
	}
	return nil
}

// Exec runs the command name. If ln is not nil, /metrics is served on ln during the command
// and after it completes, until ctx is done.
func (self *App) Exec(ctx context.Context, ln net.Listener, name string, args []string, out io.Writer) error {
	if nil == ln {
		return self.Run(name, args, out)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- self.ServeMetrics(ctx, ln)
	}()

	err := self.Run(name, args, out)
	if nil != err {
		cancel()
		<-served
		return err
	}
	self.Obs.Log().Info("command completed, serving metrics until interrupted", "command", name)

	return <-served
}
