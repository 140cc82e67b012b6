package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSetsGauge(t *testing.T) {
	m := New()
	m.Probe(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))
	m.Probe(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("down")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventReceived()
		m.Alert("gun")
		m.Probe(true)
		m.ControlAction("start", "ok")
		m.StreamSubscriberDelta(1)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Alert("gun")
	m.Alert("gun")
	m.EventReceived()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `vigil_alerts_total{kind="gun"} 2`)
	assert.Contains(t, string(body), "vigil_detection_events_total 1")
}
