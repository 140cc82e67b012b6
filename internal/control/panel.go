// Package control tracks the video source and detection toggles and
// forwards control actions to the backend.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/telemetry"
)

var (
	// ErrNotConnected is returned when an action is attempted while the
	// backend is unreachable.
	ErrNotConnected = errors.New("backend not connected")
	// ErrBusy is returned while the same action is still in flight.
	ErrBusy = errors.New("action already in progress")
)

// Source is the active video source.
type Source string

const (
	SourceWebcam      Source = "webcam"
	SourcePrerecorded Source = "prerecorded"
)

// Video IDs the backend uses after a source switch.
const (
	WebcamVideoID      = "webcam"
	PrerecordedVideoID = "10"
)

// State is the control panel view state.
type State struct {
	Source    Source                  `json:"source"`
	VideoID   string                  `json:"video_id"`
	Detecting bool                    `json:"detecting"`
	Busy      map[backend.Action]bool `json:"busy,omitempty"`
}

// Toggler posts control actions to the backend.
type Toggler interface {
	Toggle(ctx context.Context, a backend.Action) (map[string]any, error)
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	Connected() bool
}

// Panel serialises control actions and the resulting state.
type Panel struct {
	toggler Toggler
	conn    Connectivity
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	state State
}

// NewPanel returns a panel on the prerecorded source showing defaultVideoID.
func NewPanel(t Toggler, conn Connectivity, defaultVideoID string, logger *slog.Logger, m *metrics.Metrics) *Panel {
	return &Panel{
		toggler: t,
		conn:    conn,
		logger:  logger,
		metrics: m,
		state: State{
			Source:  SourcePrerecorded,
			VideoID: defaultVideoID,
			Busy:    map[backend.Action]bool{},
		},
	}
}

// State returns a copy of the panel state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Panel) snapshot() State {
	s := p.state
	s.Busy = maps.Clone(p.state.Busy)
	return s
}

// Do forwards a to the backend and, when accepted, applies its effect. A
// rejected action leaves the state unchanged.
func (p *Panel) Do(ctx context.Context, a backend.Action) (State, error) {
	if !p.conn.Connected() {
		p.metrics.ControlAction(string(a), "refused")
		return p.State(), ErrNotConnected
	}

	p.mu.Lock()
	if p.state.Busy[a] {
		p.mu.Unlock()
		return p.State(), ErrBusy
	}
	p.state.Busy[a] = true
	p.mu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "control.action",
		trace.WithAttributes(attribute.String("action", string(a))))
	_, err := p.toggler.Toggle(ctx, a)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state.Busy, a)
	if err != nil {
		p.metrics.ControlAction(string(a), "error")
		p.logger.Error("control action failed", "action", a, "error", err)
		return p.snapshot(), fmt.Errorf("%s: %w", a, err)
	}

	switch a {
	case backend.ActionWebcam:
		p.state.Source = SourceWebcam
		p.state.VideoID = WebcamVideoID
		p.state.Detecting = false
	case backend.ActionPrerecorded:
		p.state.Source = SourcePrerecorded
		p.state.VideoID = PrerecordedVideoID
		p.state.Detecting = false
	case backend.ActionStartDetection:
		p.state.Detecting = true
	case backend.ActionStopDetection:
		p.state.Detecting = false
	}
	p.metrics.ControlAction(string(a), "ok")
	p.logger.Info("control action applied", "action", a, "video_id", p.state.VideoID, "detecting", p.state.Detecting)
	return p.snapshot(), nil
}

// SetVideoID selects the stream shown by the dashboard. It does not contact
// the backend.
func (p *Panel) SetVideoID(id string) (State, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/?#") {
		return p.State(), fmt.Errorf("invalid video id %q", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.VideoID = id
	return p.snapshot(), nil
}
