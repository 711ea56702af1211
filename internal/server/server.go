// Package server exposes the detection pipeline as a long-running HTTP
// ingest service: the batch log is loaded at startup, then stream records
// arrive over POST and flags fan out to the configured sinks plus a
// websocket feed.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/spendwatch/internal/config"
	"github.com/mbd888/spendwatch/internal/metrics"
	"github.com/mbd888/spendwatch/internal/pipeline"
	"github.com/mbd888/spendwatch/internal/report"
)

// recentFlagsSize is how many flags the in-memory ring retains for /v1/flags.
const recentFlagsSize = 1000

// Server wraps the HTTP server and the single pipeline instance.
type Server struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	pipeMu  sync.Mutex // the pipeline is single-threaded by contract
	hub     *Hub
	ring    *flagRing
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger
	db      *sql.DB // nil unless a Postgres sink is configured

	closers []io.Closer

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds the sink chain and pipeline from cfg. Sinks that cannot be
// opened are a fatal error.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		ring:   newFlagRing(recentFlagsSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)

	flagWriters := []report.FlagWriter{s.ring, s.hub}
	if cfg.FlagFile != "" {
		fw, err := report.NewFileFlagWriter(cfg.FlagFile)
		if err != nil {
			return nil, fmt.Errorf("open flag sink: %w", err)
		}
		s.closers = append(s.closers, fw)
		flagWriters = append(flagWriters, fw)
	}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		s.db = db
		flagWriters = append(flagWriters, report.NewPostgresFlagWriter(db))
		s.logger.Info("postgres flag sink enabled")
	}

	var invalid report.InvalidWriter
	if cfg.InvalidFile != "" {
		iw, err := report.NewFileInvalidWriter(cfg.InvalidFile)
		if err != nil {
			return nil, fmt.Errorf("open invalid sink: %w", err)
		}
		s.closers = append(s.closers, iw)
		invalid = iw
	} else {
		invalid = report.NewMemoryWriter()
	}

	s.pipe = pipeline.New(
		report.NewMultiWriter(flagWriters...),
		invalid,
		pipeline.WithLogger(s.logger),
		pipeline.WithStdThreshold(cfg.StdThreshold),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), metrics.Middleware())
	s.setupRoutes()

	return s, nil
}

// LoadBatch runs the batch phase from r. Must complete before Run serves
// traffic; exposed separately so tests can seed from a buffer.
func (s *Server) LoadBatch(ctx context.Context, r io.Reader) error {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	return s.pipe.RunBatch(ctx, r)
}

// Run loads the batch log, starts the feed hub, and serves HTTP until ctx is
// cancelled or a signal arrives.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.BatchFile == "" {
		return errors.New("server: BATCH_FILE is required")
	}
	f, err := os.Open(s.cfg.BatchFile)
	if err != nil {
		return fmt.Errorf("open batch log: %w", err)
	}
	err = s.LoadBatch(ctx, f)
	f.Close()
	if err != nil {
		return fmt.Errorf("batch phase: %w", err)
	}
	stats := s.pipe.Stats()
	s.logger.Info("batch phase complete",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"customers", stats.Customers,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(runCtx)

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", "context cancelled")
	}

	s.ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown error", "error", err)
	}
	return s.Close()
}

// Close flushes and closes the file sinks and the database pool.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Router returns the gin engine, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
