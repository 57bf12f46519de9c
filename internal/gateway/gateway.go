// ABOUTME: Gateway orchestrator that wires the theme components behind one HTTP server
// ABOUTME: Manages store, background reconcile, editor sessions, and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/catalog"
	"github.com/2389/vitrine/internal/config"
	"github.com/2389/vitrine/internal/dedupe"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/ledger"
	"github.com/2389/vitrine/internal/metrics"
	"github.com/2389/vitrine/internal/mirror"
	"github.com/2389/vitrine/internal/reconcile"
	"github.com/2389/vitrine/internal/resolve"
	"github.com/2389/vitrine/internal/serve"
	"github.com/2389/vitrine/internal/session"
	"github.com/2389/vitrine/internal/store"
)

// Gateway owns every component of the theme service and the HTTP server in front of them.
type Gateway struct {
	config     *config.Config
	store      store.Store
	catalog    *catalog.Catalog
	installs   *install.Manager
	resolver   *resolve.Resolver
	files      *serve.Gateway
	ledger     *ledger.Ledger
	sessions   *session.Registry
	dedupe     *dedupe.Keys
	reconciler *reconcile.Reconciler
	scheduler  *cron.Cron
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("VITRINE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway backed by the SQLite store named in cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore creates a Gateway around an existing store. The gateway takes
// ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Storage.UploadsDir == "" {
		return nil, errors.New("storage.uploads_dir is required")
	}
	if err := os.MkdirAll(cfg.Storage.UploadsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	}

	var archiveMirror mirror.Mirror = mirror.Noop{}
	if cfg.Mirror.Enabled {
		m, err := mirror.NewS3(context.Background(), mirror.Options{
			Endpoint:        cfg.Mirror.Endpoint,
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
			Prefix:          cfg.Mirror.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating archive mirror: %w", err)
		}
		archiveMirror = m
		logger.Info("archive mirror enabled", "bucket", cfg.Mirror.Bucket, "endpoint", cfg.Mirror.Endpoint)
	}

	layout := install.Layout{Root: cfg.Storage.UploadsDir}
	recent := ledger.New(s, logger)
	resolver := resolve.New(layout, s, logger)

	gw := &Gateway{
		config:   cfg,
		store:    s,
		ledger:   recent,
		resolver: resolver,
		catalog: catalog.New(s, recent, layout, catalog.Options{
			MaxArchiveBytes: cfg.Uploads.MaxArchiveBytes,
			Mirror:          archiveMirror,
		}, logger),
		installs:   install.New(s, recent, layout, logger),
		files:      serve.New(resolver, logger),
		sessions:   session.NewRegistry(cfg.Editor.SessionTTL, logger),
		dedupe:     dedupe.New(cfg.Dedupe.TTL, dedupe.DefaultMaxKeys),
		reconciler: reconcile.New(s, layout, logger),
		logger:     logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}

	gw.registerAPIRoutes(mux)

	// Instrumentation sits directly on the mux so the matched pattern is visible to it
	gw.handler = auth.OptionalAuthMiddleware(verifier, logger)(metrics.InstrumentHandler(mux))
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the fully wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Reconciler exposes the install state backfill for the CLI.
func (g *Gateway) Reconciler() *reconcile.Reconciler {
	return g.reconciler
}

// startBackground runs the startup reconcile and schedules the periodic one.
func (g *Gateway) startBackground(ctx context.Context) error {
	if _, err := g.reconciler.Run(ctx); err != nil {
		g.logger.Error("startup reconcile failed", "error", err)
	}
	if g.config.Reconcile.Schedule == "" {
		return nil
	}
	c, err := g.reconciler.Schedule(ctx, g.config.Reconcile.Schedule)
	if err != nil {
		return err
	}
	g.scheduler = c
	return nil
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves HTTP until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	if err := g.startBackground(ctx); err != nil {
		ln.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.scheduler != nil {
		select {
		case <-g.scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}
	g.sessions.Clear()
	g.dedupe.Close()

	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListRecent(r.Context(), 1); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
