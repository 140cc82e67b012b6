// Package server wires the vigil components together and serves the
// dashboard over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/channel"
	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/history"
	"github.com/vigilhq/vigil/internal/listener"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/monitor"
	"github.com/vigilhq/vigil/internal/notify"
)

// Options carries optional collaborators. Zero values select the defaults.
type Options struct {
	// Dialer opens the push channel. Defaults to Socket.IO on the
	// configured channel URL.
	Dialer channel.Dialer
	// LogLevel is adjusted when a reloaded config changes server.log_level.
	LogLevel *slog.LevelVar
	Version  string
}

// Core holds the long-running components shared by serve, watch and mcp.
type Core struct {
	Backend  *backend.Client
	Listener *listener.Listener
	Prober   *monitor.Prober
	Panel    *control.Panel
	History  *history.Service
	Metrics  *metrics.Metrics

	cfg      *config.Config
	cache    history.Cache
	notifier atomic.Pointer[notify.Notifier]
	level    *slog.LevelVar
	logger   *slog.Logger
}

// NewCore builds every component from cfg. Nothing runs until Run.
func NewCore(cfg *config.Config, logger *slog.Logger, opts Options) (*Core, error) {
	m := metrics.New()
	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.ProbeTimeout)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = channel.NewSocketIODialer(cfg.ChannelURL(), logger)
	}

	l := listener.New(dialer, logger, listener.Options{
		Narration:   cfg.Detection.Narration,
		Metrics:     m,
		DialTimeout: cfg.Backend.ProbeTimeout,
	})

	p := monitor.NewProber(client, cfg.Probe.Interval, logger, m)
	p.AddSink(l)

	cache, err := newCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	c := &Core{
		Backend:  client,
		Listener: l,
		Prober:   p,
		Panel:    control.NewPanel(client, p, cfg.Video.DefaultID, logger, m),
		History:  history.NewService(client, cache, cfg.Cache.TTL, logger, m),
		Metrics:  m,
		cfg:      cfg,
		cache:    cache,
		level:    opts.LogLevel,
		logger:   logger,
	}
	c.notifier.Store(notify.NewNotifier(cfg.Webhooks, logger, m))
	l.OnAlert(c.alert)
	return c, nil
}

func newCache(cfg config.CacheConfig, logger *slog.Logger) (history.Cache, error) {
	if cfg.RedisAddr == "" {
		return history.NewMemoryCache(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := history.NewRedisCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("history cache", "backend", "redis", "addr", cfg.RedisAddr)
	return rc, nil
}

func (c *Core) alert(e detect.HistoryEntry) {
	c.logger.Warn("detection alert",
		"type", e.Type,
		"severity", e.Type.Level(),
		"id", e.ID,
	)
	c.notifier.Load().Notify(e)
}

// Run starts the listener and the prober and blocks until ctx is cancelled
// and both have stopped. Pending webhook deliveries are awaited.
func (c *Core) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Listener.Run(ctx)
	}()
	// Probe results are only delivered once the listener is consuming.
	<-c.Listener.Started()
	go func() {
		defer wg.Done()
		c.Prober.Run(ctx)
	}()
	wg.Wait()

	c.notifier.Load().Wait()
	if err := c.cache.Close(); err != nil {
		c.logger.Warn("closing history cache", "error", err)
	}
}

// Apply takes the reloadable parts of a new config: narration, log level
// and webhooks. Backend endpoints require a restart.
func (c *Core) Apply(next *config.Config) {
	if next.Detection.Narration != c.cfg.Detection.Narration {
		c.Listener.SetNarration(next.Detection.Narration)
	}
	if c.level != nil {
		c.level.Set(ParseLevel(next.Server.LogLevel))
	}
	old := c.notifier.Swap(notify.NewNotifier(next.Webhooks, c.logger, c.Metrics))
	go old.Wait()

	if next.Backend.URL != c.cfg.Backend.URL || next.ChannelURL() != c.cfg.ChannelURL() {
		c.logger.Warn("backend address changed; restart vigil to apply",
			"current", c.cfg.Backend.URL,
			"configured", next.Backend.URL,
		)
		next.Backend = c.cfg.Backend
	}
	c.cfg = next
}

// Webhooks returns the number of active webhook targets.
func (c *Core) Webhooks() int {
	return c.notifier.Load().Len()
}

// ParseLevel maps server.log_level to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
