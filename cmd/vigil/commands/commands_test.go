package commands

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/monitor"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestNewRoot_Commands(t *testing.T) {
	root := NewRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "watch", "history", "control", "probe", "status", "mcp", "version"} {
		assert.Contains(t, names, want)
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "vigil.yaml", flag.DefValue)
}

func TestControlCmd_RejectsUnknownAction(t *testing.T) {
	root := NewRoot()
	root.SetArgs([]string{"control", "explode"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	records := []backend.Record{
		{SourceID: "cam-1", Message: "a person with a gun", Person: true, Gun: true},
		{SourceID: "cam-2", Person: true},
	}
	require.NoError(t, printRecords(&buf, records))

	out := buf.String()
	assert.Contains(t, out, "TIMESTAMP")
	assert.Contains(t, out, "cam-1")
	assert.Contains(t, out, "a person with a gun")
	assert.Contains(t, out, "2 records, 1 armed")
}

func TestPrintRecords_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, nil))
	assert.Equal(t, "No detection history available\n", buf.String())
}

func TestFormatEntry(t *testing.T) {
	e := detect.HistoryEntry{
		ID:        "1",
		Type:      detect.KindGun,
		Message:   "armed intruder at the door",
		Timestamp: time.Date(2026, 10, 16, 20, 15, 3, 0, time.Local),
	}
	line := formatEntry(e)
	assert.True(t, strings.HasPrefix(line, "20:15:03"))
	assert.Contains(t, line, "critical")
	assert.Contains(t, line, e.Label())
}

func TestPrintStates(t *testing.T) {
	states := make(chan detect.State, 4)
	first := detect.HistoryEntry{ID: "1", Type: detect.KindPerson, Timestamp: time.Now()}
	second := detect.HistoryEntry{ID: "2", Type: detect.KindKnife, Timestamp: time.Now()}

	states <- detect.State{Connected: false}
	states <- detect.State{Connected: true, History: []detect.HistoryEntry{first}}
	states <- detect.State{Connected: true, History: []detect.HistoryEntry{second, first}}
	close(states)

	var buf bytes.Buffer
	printStates(context.Background(), states, &buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "backend disconnected", lines[0])
	assert.Equal(t, "backend connected", lines[1])
	assert.Contains(t, lines[2], first.Label())
	assert.Contains(t, lines[3], second.Label())
}

func TestFormatStatus(t *testing.T) {
	st := monitor.Status{Connected: false, CheckedAt: time.Now(), Error: "connection refused"}
	line := formatStatus("http://localhost:5000", st)
	assert.Contains(t, line, "http://localhost:5000")
	assert.Contains(t, line, "disconnected")
	assert.Contains(t, line, "connection refused")
}

func TestProbeInterval(t *testing.T) {
	assert.Equal(t, "once at startup", probeInterval(0))
	assert.Equal(t, "every 15s", probeInterval(15*time.Second))
}

func TestCacheSummary(t *testing.T) {
	assert.Equal(t, "memory, ttl 10s", cacheSummary(config.CacheConfig{TTL: 10 * time.Second}))
	assert.Equal(t, "redis localhost:6379, ttl 5s", cacheSummary(config.CacheConfig{TTL: 5 * time.Second, RedisAddr: "localhost:6379"}))
}

func TestDashboardStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","version":"1.2.3","connected":true}`))
	}))
	defer ts.Close()

	host, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Server.Bind = host
	cfg.Server.Port = p
	assert.Equal(t, "running 1.2.3 (backend connected)", dashboardStatus(context.Background(), cfg))

	ts.Close()
	assert.Equal(t, "not running", dashboardStatus(context.Background(), cfg))
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no ", yesNo(false))
}
