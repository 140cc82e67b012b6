// Package listener maintains the real-time detection subscription and the
// detection state derived from it.
//
// A single goroutine (Run) owns the subscription handle and the state. Input
// changes and inbound events are serialised through channels and processed
// one at a time, in arrival order. The subscription is keyed on the pair
// (connected, narration): whenever the key changes the old subscription is
// released before a new one is acquired, and events that arrive on a
// released subscription are discarded. Dials run off the Run goroutine so
// that input changes are still applied while a handshake is pending.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/vigilhq/vigil/internal/channel"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/metrics"
)

// Options configure a Listener.
type Options struct {
	// Narration is the initial narration preference.
	Narration bool
	// Reducer defaults to detect.DefaultReducer().
	Reducer *detect.Reducer
	Metrics *metrics.Metrics
	// DialTimeout bounds one subscription attempt. Defaults to 10s.
	DialTimeout time.Duration
}

// DefaultDialTimeout bounds a dial when Options.DialTimeout is zero.
const DefaultDialTimeout = 10 * time.Second

type key struct {
	connected bool
	narration bool
}

type inbound struct {
	gen uint64
	raw json.RawMessage
}

type dialResult struct {
	gen       uint64
	narration bool
	conn      channel.Conn
	err       error
}

// Listener is the Detection Event Listener.
type Listener struct {
	dialer  channel.Dialer
	logger  *slog.Logger
	reducer     detect.Reducer
	metrics     *metrics.Metrics
	dialTimeout time.Duration

	inputs  chan detect.Event
	events  chan inbound
	dialed  chan dialResult
	done    chan struct{}
	started chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	state detect.State

	subMu  sync.Mutex
	subs   map[int]chan detect.State
	nextID int

	hookMu sync.RWMutex
	hooks  []func(detect.HistoryEntry)
}

// New creates a Listener. Call Run to start it.
func New(dialer channel.Dialer, logger *slog.Logger, opts Options) *Listener {
	r := detect.DefaultReducer()
	if opts.Reducer != nil {
		r = *opts.Reducer
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Listener{
		dialer:      dialer,
		logger:      logger,
		reducer:     r,
		metrics:     opts.Metrics,
		dialTimeout: timeout,
		inputs:      make(chan detect.Event, 16),
		events:      make(chan inbound, 64),
		dialed:      make(chan dialResult),
		done:    make(chan struct{}),
		started: make(chan struct{}),
		state:   detect.State{Narration: opts.Narration},
		subs:    make(map[int]chan detect.State),
	}
}

// SetConnected reports the outcome of a reachability probe.
func (l *Listener) SetConnected(connected bool) {
	l.send(detect.ConnectivityChanged{Connected: connected})
}

// SetNarration changes the narration preference.
func (l *Listener) SetNarration(enabled bool) {
	l.send(detect.NarrationChanged{Enabled: enabled})
}

func (l *Listener) send(ev detect.Event) {
	select {
	case l.inputs <- ev:
	case <-l.done:
	}
}

// OnAlert registers fn to be called, on the listener goroutine, for every new
// history entry.
func (l *Listener) OnAlert(fn func(detect.HistoryEntry)) {
	l.hookMu.Lock()
	l.hooks = append(l.hooks, fn)
	l.hookMu.Unlock()
}

// State returns a copy of the current detection state.
func (l *Listener) State() detect.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// Subscribe returns a channel receiving every published state. The current
// state is delivered first. Slow subscribers miss intermediate states but
// always receive the latest one.
func (l *Listener) Subscribe() (int, <-chan detect.State) {
	ch := make(chan detect.State, 8)

	// Registering and seeding under subMu means no publish can fall between
	// the two.
	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	ch <- l.State()
	l.subMu.Unlock()

	l.metrics.StreamSubscriberDelta(1)
	return id, ch
}

// Unsubscribe stops delivery to and closes the channel returned by Subscribe.
func (l *Listener) Unsubscribe(id int) {
	l.subMu.Lock()
	ch, ok := l.subs[id]
	delete(l.subs, id)
	l.subMu.Unlock()
	if ok {
		close(ch)
		l.metrics.StreamSubscriberDelta(-1)
	}
}

// Started is closed once Run has begun processing.
func (l *Listener) Started() <-chan struct{} { return l.started }

// Run processes inputs and events until ctx is cancelled, then releases the
// subscription. It must be called at most once.
func (l *Listener) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	var (
		conn       channel.Conn
		gen        uint64
		held       = key{narration: l.State().Narration}
		cancelDial = func() {}
	)
	close(l.started)

	for {
		select {
		case <-ctx.Done():
			cancelDial()
			l.release(conn)
			l.logger.Debug("listener stopped")
			return

		case ev := <-l.inputs:
			l.apply(ev)
			s := l.State()
			want := key{connected: s.Connected, narration: s.Narration}
			if want == held {
				continue
			}
			cancelDial()
			cancelDial = func() {}
			l.release(conn)
			conn = nil
			gen++
			held = want
			if want.connected {
				cancelDial = l.dial(ctx, gen, want.narration)
			}

		case res := <-l.dialed:
			if res.gen != gen {
				// Superseded by a later key change; it never subscribed.
				if res.conn != nil {
					_ = res.conn.Close()
				}
				continue
			}
			cancelDial()
			cancelDial = func() {}
			conn = l.subscribe(res)

		case in := <-l.events:
			if conn == nil || in.gen != gen {
				l.metrics.EventDiscarded()
				l.logger.Debug("discarding event from released subscription", "generation", in.gen)
				continue
			}
			l.metrics.EventReceived()
			l.apply(detect.Received{Payload: detect.DecodePayload(in.raw)})
		}
	}
}

// dial opens a subscription in the background and reports it on l.dialed.
// The returned func abandons the attempt.
func (l *Listener) dial(ctx context.Context, gen uint64, narration bool) context.CancelFunc {
	ctx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	go func() {
		conn, err := l.dialer.Dial(ctx, func(raw json.RawMessage) {
			select {
			case l.events <- inbound{gen: gen, raw: raw}:
			case <-l.done:
			}
		})
		select {
		case l.dialed <- dialResult{gen: gen, narration: narration, conn: conn, err: err}:
		case <-l.done:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
	return cancel
}

func (l *Listener) subscribe(res dialResult) channel.Conn {
	if res.err != nil {
		l.metrics.DialFailed()
		l.logger.Warn("push channel unavailable", "error", res.err)
		return nil
	}
	if err := res.conn.Emit(channel.EventSubscribe, channel.SubscribeRequest{NLP: res.narration}); err != nil {
		l.logger.Warn("subscribe failed", "error", err)
		_ = res.conn.Close()
		return nil
	}
	l.metrics.SubscriptionOpened()
	l.logger.Info("subscribed to detections", "nlp", res.narration, "generation", res.gen)
	return res.conn
}

func (l *Listener) release(conn channel.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Emit(channel.EventToggleUpdates, channel.ToggleUpdatesRequest{Enabled: false}); err != nil {
		l.logger.Debug("toggle_updates before disconnect failed", "error", err)
	}
	if err := conn.Close(); err != nil {
		l.logger.Debug("closing push channel", "error", err)
	}
	l.metrics.SubscriptionClosed()
}

func (l *Listener) apply(ev detect.Event) {
	l.mu.Lock()
	next, entry := l.reducer.Apply(l.state, ev)
	l.state = next
	snap := next.Clone()
	l.mu.Unlock()

	if entry != nil {
		l.metrics.Alert(entry.Type.Slug())
		l.hookMu.RLock()
		hooks := l.hooks
		l.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(*entry)
		}
	}
	l.publish(snap)
}

func (l *Listener) publish(s detect.State) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- s.Clone():
			continue
		default:
		}
		// Full: drop the oldest queued state so the newest always lands.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.Clone():
		default:
		}
	}
}
