// Package service serves the schema catalog over HTTP: the bundle manifest,
// the version descriptor, per-schema registration details, payload
// conversion between wire formats, health and Prometheus metrics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/catalogstore"
	"github.com/googlearchive/science-journal-ios/codec"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/health"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/natsclient"
	"github.com/googlearchive/science-journal-ios/pkg/retry"
	"github.com/googlearchive/science-journal-ios/registry"
)

// Status represents the current status of the server
type Status int

// Possible server statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	Package         string
	ShutdownTimeout time.Duration

	// ConvertRate limits conversions per second across all clients.
	// Zero uses 100/s with a burst of 10; negative disables the limit.
	ConvertRate  float64
	ConvertBurst int
}

// Dependencies holds what the server serves. Registry is required; the rest
// are optional.
type Dependencies struct {
	Registry *registry.MessageRegistry
	Metrics  *metric.MetricsRegistry
	Store    *catalogstore.Store
	NATS     *natsclient.Client
	Logger   *slog.Logger
}

// CatalogServer is the HTTP surface of the catalog.
type CatalogServer struct {
	cfg      Config
	registry *registry.MessageRegistry
	metrics  *metric.MetricsRegistry
	store    *catalogstore.Store
	codec    *codec.Codec
	monitor  *health.Monitor
	limiter  *rate.Limiter
	logger   *slog.Logger

	status    atomic.Value // Status
	startTime atomic.Value // time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewCatalogServer creates a server. It does not listen until Start.
func NewCatalogServer(cfg Config, deps Dependencies) (*CatalogServer, error) {
	if deps.Registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "CatalogServer", "New", "registry check")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Package == "" {
		cfg.Package = deps.Registry.Package()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ConvertRate == 0 {
		cfg.ConvertRate = 100
	}
	if cfg.ConvertBurst <= 0 {
		cfg.ConvertBurst = 10
	}
	limit := rate.Limit(cfg.ConvertRate)
	if cfg.ConvertRate < 0 {
		limit = rate.Inf
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var codecOpts []codec.Option
	if deps.Metrics != nil {
		codecOpts = append(codecOpts, codec.WithMetrics(deps.Metrics.CoreMetrics()))
	}

	s := &CatalogServer{
		cfg:      cfg,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		store:    deps.Store,
		codec:    codec.New(deps.Registry, codecOpts...),
		monitor:  health.NewMonitor(),
		limiter:  rate.NewLimiter(limit, cfg.ConvertBurst),
		logger:   logger.With("service", "catalog-server"),
	}
	s.status.Store(StatusStopped)
	s.startTime.Store(time.Time{})

	s.monitor.Register("registry", func() health.Status {
		return health.FromCatalog("registry", s.registry.Missing())
	})
	if deps.NATS != nil {
		client := deps.NATS
		s.monitor.Register("nats", func() health.Status {
			var err error
			if !client.IsHealthy() {
				err = fmt.Errorf("%w: %s to %s", errors.ErrNoConnection, client.Status(), client.URL())
			}
			return health.FromError("nats", err, "connected")
		})
	}

	return s, nil
}

// Status returns the lifecycle status.
func (s *CatalogServer) Status() Status {
	return s.status.Load().(Status)
}

// Uptime returns how long the server has been running.
func (s *CatalogServer) Uptime() time.Duration {
	start := s.startTime.Load().(time.Time)
	if start.IsZero() || s.Status() != StatusRunning {
		return 0
	}
	return time.Since(start)
}

// Health aggregates the registry and NATS checks.
func (s *CatalogServer) Health() health.Status {
	return s.monitor.AggregateHealth("sjcatalog")
}

// Addr returns the listening address once started.
func (s *CatalogServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured address and publishes the manifest when
// a store is configured. A failed publication is logged, not fatal.
func (s *CatalogServer) Start(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}

	// Publishing talks to NATS; s.mu is not held so Addr and Stop stay
	// responsive.
	if s.store != nil {
		s.publishManifest(ctx)
	}
	return nil
}

func (s *CatalogServer) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != StatusStopped {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "CatalogServer", "Start", "status check")
	}
	s.status.Store(StatusStarting)

	if err := s.registry.Verify(); err != nil {
		s.logger.Warn("Serving incomplete catalog", "error", err)
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.status.Store(StatusStopped)
		return errors.WrapFatal(err, "CatalogServer", "Start", fmt.Sprintf("listen on %s", s.cfg.Addr))
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.done = make(chan struct{})

	// Capture server reference before goroutine to avoid race condition
	server, done := s.server, s.done
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.startTime.Store(time.Now())
	s.status.Store(StatusRunning)
	s.logger.Info("Catalog server started", "addr", listener.Addr().String())
	return nil
}

// manifest describes the schemas this server can actually serve: the
// catalog minus any schema the registry has no factory for.
func (s *CatalogServer) manifest() *catalog.Manifest {
	return catalog.NewManifest(catalog.Default().Without(s.registry.Missing()...), s.cfg.Package)
}

// publishManifest compares the local manifest with the published one and
// then replaces it. CheckCompatibility logs any difference. Transient
// publish failures are retried.
func (s *CatalogServer) publishManifest(ctx context.Context) {
	manifest := s.manifest()

	if _, err := s.store.CheckCompatibility(ctx, manifest); err != nil && !catalogstore.IsNotPublished(err) {
		s.logger.Warn("Failed to read published catalog manifest", "error", err)
	}

	rc := errors.DefaultRetryConfig()
	attempt := 0
	rev, err := retry.DoWithResult(ctx, rc.ToRetryConfig(), func() (uint64, error) {
		rev, err := s.store.Publish(ctx, manifest)
		if err != nil && !rc.ShouldRetry(err, attempt) {
			return 0, retry.Permanent(err)
		}
		attempt++
		return rev, err
	})
	if err != nil {
		s.logger.Warn("Failed to publish catalog manifest", "error", err)
		return
	}
	s.logger.Info("Catalog manifest published", "revision", rev)
}

// Stop shuts the server down, waiting for in-flight requests up to the
// shutdown timeout or ctx, whichever ends first.
func (s *CatalogServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != StatusRunning {
		return errors.WrapInvalid(errors.ErrNotStarted, "CatalogServer", "Stop", "status check")
	}
	s.status.Store(StatusStopping)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	if err != nil {
		_ = s.server.Close()
	}
	<-s.done

	s.server = nil
	s.listener = nil
	s.status.Store(StatusStopped)
	s.logger.Info("Catalog server stopped")

	if err != nil {
		return errors.WrapTransient(err, "CatalogServer", "Stop", "graceful shutdown")
	}
	return nil
}
