package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/internal/channel"
	"github.com/vigilhq/vigil/internal/channel/channeltest"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/metrics"
)

const wait = 2 * time.Second

func startListener(t *testing.T, opts Options) (*Listener, *channeltest.Dialer, context.CancelFunc) {
	t.Helper()
	d := channeltest.NewDialer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(d, logger, opts)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	<-l.Started()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return l, d, cancel
}

func waitDial(t *testing.T, d *channeltest.Dialer) int {
	t.Helper()
	select {
	case id := <-d.Dialed():
		return id
	case <-time.After(wait):
		t.Fatal("timed out waiting for dial")
		return -1
	}
}

func waitLog(t *testing.T, d *channeltest.Dialer, n int) []channeltest.Emitted {
	t.Helper()
	require.Eventually(t, func() bool { return len(d.Log()) >= n }, wait, 5*time.Millisecond)
	return d.Log()
}

func TestListener_DisconnectedHoldsNoSubscription(t *testing.T) {
	l, d, _ := startListener(t, Options{})
	_, states := l.Subscribe()
	<-states

	l.SetConnected(false)
	l.SetNarration(true)
	l.SetNarration(false)
	for range 3 {
		<-states
	}
	assert.Equal(t, 0, d.Count())

	l.SetConnected(true)
	assert.Equal(t, 0, waitDial(t, d), "the first subscription comes only after connecting")
}

func TestListener_SubscribeSendsNarrationPreference(t *testing.T) {
	l, d, _ := startListener(t, Options{Narration: true})
	l.SetConnected(true)
	waitDial(t, d)

	log := waitLog(t, d, 1)
	assert.Equal(t, channeltest.Emitted{Conn: 0, Event: channel.EventSubscribe, Payload: channel.SubscribeRequest{NLP: true}}, log[0])
}

func TestListener_NarrationToggleReconnects(t *testing.T) {
	l, d, _ := startListener(t, Options{})
	l.SetConnected(true)
	waitDial(t, d)
	waitLog(t, d, 1)

	l.SetNarration(true)
	assert.Equal(t, 1, waitDial(t, d))
	log := waitLog(t, d, 3)

	assert.Equal(t, []channeltest.Emitted{
		{Conn: 0, Event: channel.EventSubscribe, Payload: channel.SubscribeRequest{NLP: false}},
		{Conn: 0, Event: channel.EventToggleUpdates, Payload: channel.ToggleUpdatesRequest{Enabled: false}},
		{Conn: 1, Event: channel.EventSubscribe, Payload: channel.SubscribeRequest{NLP: true}},
	}, log)
	assert.True(t, d.Conn(0).Closed())
	assert.Equal(t, 1, d.Open(), "at most one subscription is held")
}

func TestListener_EventUpdatesState(t *testing.T) {
	l, d, _ := startListener(t, Options{})
	l.SetConnected(true)
	id := waitDial(t, d)
	waitLog(t, d, 1)

	d.Conn(id).Push(`{"detected_gun":true,"detected_person":true}`)

	require.Eventually(t, func() bool { return len(l.State().History) == 1 }, wait, 5*time.Millisecond)
	s := l.State()
	assert.Equal(t, detect.KindGun, s.History[0].Type)
	assert.Equal(t, detect.Snapshot{Gun: true, Person: true}, s.Snapshot)
}

func TestListener_NarrationTextShown(t *testing.T) {
	l, d, _ := startListener(t, Options{Narration: true})
	l.SetConnected(true)
	id := waitDial(t, d)
	waitLog(t, d, 1)

	d.Conn(id).Push(`{"detected_person":true,"text_message":"Intruder at door"}`)

	require.Eventually(t, func() bool { return l.State().Message == "Intruder at door" }, wait, 5*time.Millisecond)
	assert.Equal(t, "Person detected (Intruder at door)", l.State().History[0].Label())
}

func TestListener_StaleEventsDiscarded(t *testing.T) {
	m := metrics.New()
	l, d, _ := startListener(t, Options{Metrics: m})
	l.SetConnected(true)
	waitDial(t, d)
	waitLog(t, d, 1)
	l.SetNarration(true)
	waitDial(t, d)
	waitLog(t, d, 3)

	d.Conn(0).Push(`{"detected_gun":true}`)
	d.Conn(1).Push(`{"detected_person":true}`)

	require.Eventually(t, func() bool { return len(l.State().History) > 0 }, wait, 5*time.Millisecond)
	s := l.State()
	require.Len(t, s.History, 1)
	assert.Equal(t, detect.KindPerson, s.History[0].Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsReceived))
}

func TestListener_ProbeTimeoutResets(t *testing.T) {
	l, d, _ := startListener(t, Options{})
	l.SetConnected(true)
	id := waitDial(t, d)
	waitLog(t, d, 1)
	d.Conn(id).Push(`{"detected_knife":true}`)
	require.Eventually(t, func() bool { return l.State().Snapshot.Knife }, wait, 5*time.Millisecond)

	l.SetConnected(false)

	require.Eventually(t, func() bool { return d.Conn(id).Closed() }, wait, 5*time.Millisecond)
	s := l.State()
	assert.False(t, s.Connected)
	assert.Equal(t, detect.Snapshot{}, s.Snapshot)
	assert.Len(t, s.History, 1, "history survives a disconnect")
	assert.Equal(t, 0, d.Open())

	log := d.Log()
	assert.Equal(t, channel.EventToggleUpdates, log[len(log)-1].Event, "toggle_updates precedes the close")
}

func TestListener_DialFailureDoesNotRetry(t *testing.T) {
	m := metrics.New()
	l, d, _ := startListener(t, Options{Metrics: m})
	d.FailWith(errors.New("connection refused"))

	l.SetConnected(true)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.DialFailures) == 1 }, wait, 5*time.Millisecond)
	assert.True(t, l.State().Connected)
	assert.Equal(t, 0, d.Count())

	// Only the next key change tries again.
	d.FailWith(nil)
	l.SetNarration(true)
	assert.Equal(t, 0, waitDial(t, d))
}

func TestListener_RunCancelReleases(t *testing.T) {
	l, d, cancel := startListener(t, Options{})
	l.SetConnected(true)
	id := waitDial(t, d)
	waitLog(t, d, 1)

	cancel()

	require.Eventually(t, func() bool { return d.Conn(id).Closed() }, wait, 5*time.Millisecond)
	log := d.Log()
	assert.Equal(t, channel.EventToggleUpdates, log[len(log)-1].Event)
}

func TestListener_OnAlert(t *testing.T) {
	d := channeltest.NewDialer()
	l := New(d, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	got := make(chan detect.HistoryEntry, 4)
	l.OnAlert(func(e detect.HistoryEntry) { got <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.SetConnected(true)
	id := waitDial(t, d)
	waitLog(t, d, 1)
	d.Conn(id).Push(`{"detected_person":false}`)
	d.Conn(id).Push(`{"detected_multiple_persons":true}`)

	select {
	case e := <-got:
		assert.Equal(t, detect.KindMultiplePersons, e.Type)
	case <-time.After(wait):
		t.Fatal("no alert")
	}
	assert.Empty(t, got, "events without flags do not alert")
}

func TestListener_SubscribeUnsubscribe(t *testing.T) {
	m := metrics.New()
	l, _, _ := startListener(t, Options{Metrics: m})

	id, states := l.Subscribe()
	first := <-states
	assert.False(t, first.Connected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamSubscribers))

	l.SetConnected(true)
	select {
	case s := <-states:
		assert.True(t, s.Connected)
	case <-time.After(wait):
		t.Fatal("no state published")
	}

	l.Unsubscribe(id)
	_, open := <-states
	assert.False(t, open)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamSubscribers))
}

// stallDialer never completes a dial on its own; it waits for ctx.
type stallDialer struct {
	attempts chan struct{}
}

func (d *stallDialer) Dial(ctx context.Context, _ channel.Handler) (channel.Conn, error) {
	d.attempts <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func startStalled(t *testing.T, opts Options) (*Listener, *stallDialer) {
	t.Helper()
	d := &stallDialer{attempts: make(chan struct{}, 64)}
	l := New(d, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	<-l.Started()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return l, d
}

func TestListener_PendingDialDoesNotBlockInputs(t *testing.T) {
	l, d := startStalled(t, Options{DialTimeout: time.Hour})

	l.SetConnected(true)
	select {
	case <-d.attempts:
	case <-time.After(wait):
		t.Fatal("no dial attempted")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 21 {
			l.SetConnected(i%2 == 1)
		}
	}()
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("SetConnected blocked behind a pending dial")
	}

	require.Eventually(t, func() bool { return !l.State().Connected }, wait, 5*time.Millisecond)
	assert.Equal(t, detect.Snapshot{}, l.State().Snapshot)
}

func TestListener_DialTimeout(t *testing.T) {
	m := metrics.New()
	d := &stallDialer{attempts: make(chan struct{}, 4)}
	l := New(d, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Metrics: m, DialTimeout: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	<-l.Started()

	l.SetConnected(true)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.DialFailures) == 1 }, wait, 5*time.Millisecond)
	assert.True(t, l.State().Connected)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SubscriptionsOpened))
}

func TestListener_SubscribeSeesLatestState(t *testing.T) {
	l, _, _ := startListener(t, Options{})
	l.SetConnected(true)
	l.SetNarration(true)
	require.Eventually(t, func() bool { return l.State().Narration }, wait, 5*time.Millisecond)

	_, states := l.Subscribe()
	first := <-states
	assert.True(t, first.Connected)
	assert.True(t, first.Narration)
}
