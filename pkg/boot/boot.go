package boot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/01fortes/goscope/pkg/container"
)

// Application wires settings, type tables, metrics and a domain together
type Application struct {
	settings Settings
	logger   *slog.Logger
	registry *Registry
	gatherer prometheus.Gatherer
	domain   *container.Domain

	shutdownOnce sync.Once
	shutdownErr  error
}

type options struct {
	settings   *Settings
	logger     *slog.Logger
	console    io.Writer
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	starters   []Starter
}

// Option configures New
type Option func(*options)

// WithSettings uses settings instead of loading them from the environment
func WithSettings(settings Settings) Option {
	return func(o *options) { o.settings = &settings }
}

// WithLogger sets the container logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConsole sets the writer of console log clients
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithRegistry registers metrics with reg instead of a fresh registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithStarters adds starters applied after the builtin ones
func WithStarters(starters ...Starter) Option {
	return func(o *options) { o.starters = append(o.starters, starters...) }
}

// New creates an application. The builtin starters register the provider
// types, the log service and the converter service.
func New(opts ...Option) (*Application, error) {
	o := &options{console: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	var settings Settings
	if o.settings != nil {
		settings = *o.settings
	} else {
		loaded, err := LoadSettings()
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	logger := o.logger
	if logger == nil {
		logger = settings.NewLogger(os.Stderr)
	}

	registry := NewRegistry(settings)
	builtin := NewCompositeStarter("builtin",
		ProvidersStarter(),
		LoggingStarter(o.console),
		ConvertStarter(),
	)
	if err := NewCompositeStarter("application", append([]Starter{builtin}, o.starters...)...).Start(registry); err != nil {
		return nil, err
	}

	cfg := &container.Config{
		Logger:     logger,
		LogService: settings.LogService,
	}

	app := &Application{
		settings: settings,
		logger:   logger,
		registry: registry,
	}

	if settings.Metrics {
		if o.registerer == nil {
			reg := prometheus.NewRegistry()
			o.registerer, o.gatherer = reg, reg
		}
		metrics, err := container.NewPrometheusMetrics(settings.MetricsNamespace, o.registerer)
		if err != nil {
			return nil, container.ConfigurationError(nil, err, "cannot register metrics")
		}
		cfg.Metrics = metrics
		app.gatherer = o.gatherer
	}

	app.domain = container.NewDomain(settings.Domain, registry.Types, cfg)
	logger.Info("Application created",
		"domain", settings.Domain,
		"provider_types", registry.Types.ProviderTypes(),
		"service_types", registry.Types.ServiceTypes(),
		"connectors", registry.Connectors.Types(),
		"metrics", settings.Metrics)
	return app, nil
}

// Open creates or reuses the configured scope and starts it
func (a *Application) Open(cfg container.ScopeConfig) (*container.Scope, error) {
	scope, err := a.domain.CreateScope(cfg)
	if err != nil {
		return nil, err
	}
	if err := scope.Start(); err != nil {
		return nil, err
	}
	return scope, nil
}

// Run blocks until ctx is done or the process is signalled, then shuts
// the application down
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("Application running")
	<-ctx.Done()
	return a.Shutdown()
}

// Shutdown closes the domain and every scope in it. Further calls return
// the first result.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("Shutting down application")
		a.shutdownErr = a.domain.Close()
		if a.shutdownErr != nil {
			a.logger.Error("Shutdown finished with errors", "error", a.shutdownErr)
		}
	})
	return a.shutdownErr
}

// Domain returns the application domain
func (a *Application) Domain() *container.Domain { return a.domain }

// Registry returns the type tables
func (a *Application) Registry() *Registry { return a.registry }

// Settings returns the effective settings
func (a *Application) Settings() Settings { return a.settings }

// Gatherer returns the metrics gatherer, nil with metrics disabled
func (a *Application) Gatherer() prometheus.Gatherer { return a.gatherer }

// Logger returns the container logger
func (a *Application) Logger() *slog.Logger { return a.logger }
