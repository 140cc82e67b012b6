package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/detect"
)

type fakeState struct{ st detect.State }

func (f *fakeState) State() detect.State { return f.st }

type fakeHistory struct {
	records   []backend.Record
	err       error
	refreshed bool
}

func (f *fakeHistory) List(context.Context) ([]backend.Record, error) { return f.records, f.err }

func (f *fakeHistory) Refresh(context.Context) ([]backend.Record, error) {
	f.refreshed = true
	return f.records, f.err
}

type fakeControl struct {
	st   control.State
	err  error
	done []backend.Action
}

func (f *fakeControl) Do(_ context.Context, a backend.Action) (control.State, error) {
	f.done = append(f.done, a)
	if f.err != nil {
		return f.st, f.err
	}
	if a == backend.ActionWebcam {
		f.st.Source = control.SourceWebcam
		f.st.VideoID = control.WebcamVideoID
	}
	return f.st, nil
}

func (f *fakeControl) State() control.State { return f.st }

type fixture struct {
	h         *handlers
	state     *fakeState
	history   *fakeHistory
	control   *fakeControl
	connected bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state: &fakeState{},
		history: &fakeHistory{records: []backend.Record{
			{SourceID: "cam-1", Person: true},
			{SourceID: "cam-1", Gun: true, Person: true},
			{SourceID: "cam-2", Knife: true},
		}},
		control:   &fakeControl{st: control.State{Source: control.SourcePrerecorded, VideoID: "7"}},
		connected: true,
	}
	f.h = &handlers{
		deps: Deps{
			State:     f.state,
			History:   f.history,
			Control:   f.control,
			Connected: func() bool { return f.connected },
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return f
}

func makeRequest(t *testing.T, args map[string]any) *mcplib.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return &mcplib.CallToolRequest{Params: &mcplib.CallToolParamsRaw{Arguments: raw}}
}

func resultJSON(t *testing.T, r *mcplib.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, r.IsError, resultText(t, r))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &out))
	return out
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.Len(t, r.Content, 1)
	tc, ok := r.Content[0].(*mcplib.TextContent)
	require.True(t, ok, "expected *mcplib.TextContent")
	return tc.Text
}

// --- current_detections ---

func TestCurrentDetections_Guidance(t *testing.T) {
	f := newFixture(t)
	f.state.st = detect.State{Connected: true, Snapshot: detect.Snapshot{Person: true, Knife: true}}

	r, err := f.h.handleCurrentDetections(context.Background(), makeRequest(t, nil))
	require.NoError(t, err)
	out := resultJSON(t, r)

	assert.Equal(t, true, out["connected"])
	assert.Equal(t, "high", out["alert"].(map[string]any)["level"])
	assert.Equal(t, "Intruder Armed with Knife Detected!", out["guidance"].(map[string]any)["title"])
	assert.NotContains(t, out, "message")
}

func TestCurrentDetections_NarrationMessage(t *testing.T) {
	f := newFixture(t)
	f.state.st = detect.State{
		Connected: true,
		Narration: true,
		Snapshot:  detect.Snapshot{Person: true},
		Message:   "A man is standing by the gate",
	}

	r, err := f.h.handleCurrentDetections(context.Background(), makeRequest(t, nil))
	require.NoError(t, err)
	out := resultJSON(t, r)

	assert.Equal(t, "A man is standing by the gate", out["message"])
	assert.NotContains(t, out, "guidance")
}

// --- recent_detections ---

func TestRecentDetections_Limit(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 10, 16, 19, 5, 0, 0, time.UTC)
	f.state.st.History = []detect.HistoryEntry{
		{ID: "b", Type: detect.KindGun, Timestamp: now},
		{ID: "a", Type: detect.KindPerson, Timestamp: now.Add(-time.Minute), Message: "someone"},
	}

	r, err := f.h.handleRecentDetections(context.Background(), makeRequest(t, map[string]any{"limit": 1}))
	require.NoError(t, err)
	out := resultJSON(t, r)

	assert.EqualValues(t, 1, out["count"])
	entries := out["entries"].([]any)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, "b", first["id"])
	assert.Equal(t, "Gun detected", first["label"])
	assert.Equal(t, "critical", first["severity"])
}

func TestRecentDetections_Empty(t *testing.T) {
	f := newFixture(t)
	r, err := f.h.handleRecentDetections(context.Background(), &mcplib.CallToolRequest{Params: &mcplib.CallToolParamsRaw{}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, resultJSON(t, r)["count"])
}

// --- detection_history ---

func TestDetectionHistory_FilterByKind(t *testing.T) {
	f := newFixture(t)

	r, err := f.h.handleDetectionHistory(context.Background(), makeRequest(t, map[string]any{"kind": "gun"}))
	require.NoError(t, err)
	out := resultJSON(t, r)

	assert.EqualValues(t, 1, out["count"])
	assert.False(t, f.history.refreshed)
}

func TestDetectionHistory_Refresh(t *testing.T) {
	f := newFixture(t)

	r, err := f.h.handleDetectionHistory(context.Background(), makeRequest(t, map[string]any{"refresh": true, "limit": 2}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, resultJSON(t, r)["count"])
	assert.True(t, f.history.refreshed)
}

func TestDetectionHistory_UnknownKind(t *testing.T) {
	f := newFixture(t)
	r, err := f.h.handleDetectionHistory(context.Background(), makeRequest(t, map[string]any{"kind": "dog"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
}

func TestDetectionHistory_Disconnected(t *testing.T) {
	f := newFixture(t)
	f.connected = false

	r, err := f.h.handleDetectionHistory(context.Background(), makeRequest(t, nil))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "API connection error")
}

func TestDetectionHistory_BackendError(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("boom")

	r, err := f.h.handleDetectionHistory(context.Background(), makeRequest(t, nil))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "boom")
}

// --- control_video ---

func TestControlVideo_Webcam(t *testing.T) {
	f := newFixture(t)

	r, err := f.h.handleControlVideo(context.Background(), makeRequest(t, map[string]any{"action": "webcam"}))
	require.NoError(t, err)
	out := resultJSON(t, r)

	assert.Equal(t, "webcam", out["source"])
	assert.Equal(t, "webcam", out["video_id"])
	assert.Equal(t, []backend.Action{backend.ActionWebcam}, f.control.done)
}

func TestControlVideo_InvalidAction(t *testing.T) {
	f := newFixture(t)

	r, err := f.h.handleControlVideo(context.Background(), makeRequest(t, map[string]any{"action": "reboot"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Empty(t, f.control.done)
}

func TestControlVideo_NotConnected(t *testing.T) {
	f := newFixture(t)
	f.control.err = control.ErrNotConnected

	r, err := f.h.handleControlVideo(context.Background(), makeRequest(t, map[string]any{"action": "start"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "not connected")
}

// --- server round trip ---

func TestServer_ListAndCallTools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.state.st = detect.State{Connected: true}
	srv := NewServer(f.h.deps, "test", f.h.logger)

	ct, st := mcplib.NewInMemoryTransports()
	_, err := srv.Connect(ctx, st, nil)
	require.NoError(t, err)
	c := mcplib.NewClient(&mcplib.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"current_detections", "recent_detections", "detection_history", "control_video"}, names)

	res, err := cs.CallTool(ctx, &mcplib.CallToolParams{Name: "current_detections", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"connected": true`)
}
