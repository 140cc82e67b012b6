// Package monitor tracks whether the detection backend is reachable.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vigilhq/vigil/internal/metrics"
)

// Checker performs one reachability probe.
type Checker interface {
	Probe(ctx context.Context) error
}

// Sink receives connectivity changes.
type Sink interface {
	SetConnected(bool)
}

// Status is the outcome of the most recent probe.
type Status struct {
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Prober probes the backend at start, then every Interval, and forwards
// changes to its sinks. An Interval of zero probes once.
type Prober struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	recheck chan struct{}

	mu     sync.RWMutex
	status Status
	probed bool
	sinks  []Sink
}

// NewProber creates a prober. m may be nil.
func NewProber(checker Checker, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Prober {
	return &Prober{
		checker:  checker,
		interval: interval,
		logger:   logger,
		metrics:  m,
		recheck:  make(chan struct{}, 1),
	}
}

// AddSink registers s for connectivity changes. Call before Run.
func (p *Prober) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Status returns the last probe outcome.
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Connected reports whether the last probe succeeded.
func (p *Prober) Connected() bool {
	return p.Status().Connected
}

// Recheck asks Run to probe again now. Requests made while one is pending
// are coalesced.
func (p *Prober) Recheck() {
	select {
	case p.recheck <- struct{}{}:
	default:
	}
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)

	var tick <-chan time.Time
	if p.interval > 0 {
		t := time.NewTicker(p.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			p.Check(ctx)
		case <-p.recheck:
			p.Check(ctx)
		}
	}
}

// Check runs one probe, records it and notifies sinks when the outcome
// differs from the previous one (or on the first probe).
func (p *Prober) Check(ctx context.Context) Status {
	err := p.checker.Probe(ctx)
	st := Status{Connected: err == nil, CheckedAt: time.Now()}
	if err != nil {
		st.Error = err.Error()
	}
	p.metrics.Probe(st.Connected)

	p.mu.Lock()
	changed := !p.probed || p.status.Connected != st.Connected
	p.status = st
	p.probed = true
	sinks := p.sinks
	p.mu.Unlock()

	if !changed {
		return st
	}
	if st.Connected {
		p.logger.Info("backend reachable")
	} else {
		p.logger.Warn("backend unreachable", "error", err)
	}
	for _, s := range sinks {
		s.SetConnected(st.Connected)
	}
	return st
}
