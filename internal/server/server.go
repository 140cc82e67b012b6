package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/dashboard"
	"github.com/vigilhq/vigil/internal/telemetry"
)

// Server is the vigil dashboard server.
type Server struct {
	*Core

	cfg       *config.Config
	cfgPath   string
	srv       *http.Server
	ln        net.Listener
	logger    *slog.Logger
	telemetry telemetry.Shutdown
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	done      chan struct{}
}

// NewServer creates and wires the dashboard server and binds its port.
func NewServer(cfg *config.Config, cfgPath string, logger *slog.Logger, opts Options) (*Server, error) {
	shutdownTracing, err := telemetry.Setup(cfg.Telemetry.TraceStdout, os.Stdout, opts.Version)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	core, err := NewCore(cfg, logger, opts)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	dash := dashboard.NewServer(dashboard.Deps{
		Listener: core.Listener,
		Prober:   core.Prober,
		Panel:    core.Panel,
		History:  core.History,
		Backend:  core.Backend,
	}, logger)

	// Routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"version":   opts.Version,
			"connected": core.Prober.Connected(),
		})
	})
	mux.Handle("GET /metrics", core.Metrics.Handler())
	mux.Handle("/", dash.Handler())

	var h http.Handler = dashboard.Wrap(mux, logger)
	h = otelhttp.NewHandler(h, "vigil.http",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }),
	)

	// Bind to 127.0.0.1 by default (localhost only).
	// Use server.bind config or --bind flag to change.
	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	// Try configured port, auto-find next available if busy.
	ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, fmt.Errorf("binding port: %w", err)
	}
	cfg.Server.Port = actualPort

	srv := &http.Server{
		Handler:        h,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second, // SSE and video streams lift their own deadline
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	// Cancelling request contexts on shutdown ends open SSE and video streams.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	srv.RegisterOnShutdown(cancelRequests)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Core:      core,
		cfg:       cfg,
		cfgPath:   cfgPath,
		srv:       srv,
		ln:        ln,
		logger:    logger,
		telemetry: shutdownTracing,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := net.JoinHostPort(bind, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port.
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}
	if !isAddrInUse(err) || port == 0 {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Start runs the components and serves HTTP. Blocks until the server is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("vigil dashboard starting",
		"addr", s.Addr(),
		"backend", s.cfg.Backend.URL,
		"narration", s.cfg.Detection.Narration,
		"webhooks", s.Webhooks(),
	)

	s.started.Store(true)
	go func() {
		defer close(s.done)
		s.Run(s.ctx)
	}()

	if s.cfgPath != "" {
		if _, err := os.Stat(s.cfgPath); err == nil {
			go func() {
				if err := config.Watch(s.ctx, s.cfgPath, s.logger, s.Apply); err != nil {
					s.logger.Warn("config hot reload disabled", "error", err)
				}
			}()
		}
	}

	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and the components.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.srv.Shutdown(ctx)
	s.cancel()
	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	if terr := s.telemetry(ctx); terr != nil && err == nil {
		err = terr
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
