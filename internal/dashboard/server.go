// Package dashboard serves the vigil web UI: the live detection page, the
// backend history table, the JSON/SSE API behind them and the proxied video
// feed.
package dashboard

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/history"
	"github.com/vigilhq/vigil/internal/listener"
	"github.com/vigilhq/vigil/internal/monitor"
)

// Deps are the components the dashboard presents.
type Deps struct {
	Listener *listener.Listener
	Prober   *monitor.Prober
	Panel    *control.Panel
	History  *history.Service
	Backend  *backend.Client
}

// Server serves the vigil dashboard UI.
type Server struct {
	listener *listener.Listener
	prober   *monitor.Prober
	panel    *control.Panel
	history  *history.Service
	backend  *backend.Client
	video    *httputil.ReverseProxy
	logger   *slog.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

// NewServer creates a dashboard server.
func NewServer(d Deps, logger *slog.Logger) *Server {
	s := &Server{
		listener: d.Listener,
		prober:   d.Prober,
		panel:    d.Panel,
		history:  d.History,
		backend:  d.Backend,
		logger:   logger,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.video = newVideoProxy(d.Backend.BaseURL(), logger)
	s.routes()
	return s
}

// Handler returns the dashboard HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleLive)
	s.mux.HandleFunc("GET /history", s.handleHistory)

	// JSON API
	s.mux.HandleFunc("GET /api/state", s.handleAPIState)
	s.mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	s.mux.HandleFunc("POST /api/narration", s.handleNarration)
	s.mux.HandleFunc("POST /api/control/{action}", s.handleControl)
	s.mux.HandleFunc("POST /api/video", s.handleVideoID)
	s.mux.HandleFunc("POST /api/probe", s.handleProbe)

	// SSE
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// MJPEG passthrough
	s.mux.HandleFunc("GET /video_feed/{id}", s.handleVideoFeed)
}
