package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/detect"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func entry(kind detect.Kind, msg string) detect.HistoryEntry {
	return detect.HistoryEntry{
		ID:        "e1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:      kind,
		Message:   msg,
	}
}

type recorder struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (r *recorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, b)
		r.mu.Unlock()
	}
}

func (r *recorder) all() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.bodies...)
}

func TestNotify_DefaultPayload(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier([]config.Webhook{{URL: srv.URL, AllowPrivate: true}}, testLogger(), nil)
	n.Notify(entry(detect.KindGun, "armed person"))
	n.Wait()

	bodies := rec.all()
	if len(bodies) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(bodies))
	}
	var ev Event
	if err := json.Unmarshal(bodies[0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Event != "detection" || ev.Kind != "gun" || ev.Type != "Gun" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Severity != "critical" {
		t.Errorf("severity = %q", ev.Severity)
	}
	if ev.Message != "armed person" || ev.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("event = %+v", ev)
	}
}

func TestNotify_EventFilter(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier([]config.Webhook{{URL: srv.URL, Events: []string{"gun", "knife"}, AllowPrivate: true}}, testLogger(), nil)
	n.Notify(entry(detect.KindPerson, ""))
	n.Notify(entry(detect.KindKnife, ""))
	n.Wait()

	if got := len(rec.all()); got != 1 {
		t.Errorf("got %d deliveries, want 1 (person filtered out)", got)
	}
}

func TestNotify_Template(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier([]config.Webhook{{URL: srv.URL, Template: "{{TYPE}}: {{MESSAGE}}", AllowPrivate: true}}, testLogger(), nil)
	n.Notify(entry(detect.KindMultiplePersons, "two at the gate"))
	n.Wait()

	var payload map[string]string
	if err := json.Unmarshal(rec.all()[0], &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["text"] != "Multiple Persons: two at the gate" {
		t.Errorf("text = %q", payload["text"])
	}
}

func TestNewNotifier_SkipsPrivateByDefault(t *testing.T) {
	n := NewNotifier([]config.Webhook{
		{URL: "http://127.0.0.1:9999/hook"},
		{URL: "http://192.168.1.10/hook"},
		{URL: "ftp://example.com/hook"},
		{URL: "http://2130706433/hook"},
		{URL: "https://hooks.example.com/alert"},
		{URL: "http://192.168.1.10/hook", AllowPrivate: true},
	}, testLogger(), nil)
	if n.Len() != 2 {
		t.Errorf("Len = %d, want 2", n.Len())
	}
}

func TestRenderTemplate_AllTags(t *testing.T) {
	ev := Event{Event: "detection", ID: "id-1", Type: "Knife", Kind: "knife", Severity: "high", Message: "m", Timestamp: "ts"}
	out := RenderTemplate("{{EVENT}} {{ID}} {{TYPE}} {{KIND}} {{SEVERITY}} {{MESSAGE}} {{TIMESTAMP}}", ev)

	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if want := "detection id-1 Knife knife high m ts"; payload["text"] != want {
		t.Errorf("text = %q, want %q", payload["text"], want)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url          string
		allowPrivate bool
		ok           bool
	}{
		{"https://hooks.slack.com/services/x", false, true},
		{"http://10.0.0.5/hook", false, false},
		{"http://10.0.0.5/hook", true, true},
		{"http://0x7f000001/", false, false},
		{"http://0177.0.0.1/", false, false},
		{"http://[::1]/", false, false},
		{"gopher://example.com", true, false},
		{"http:///nohost", true, false},
	}
	for _, tt := range tests {
		err := validateURL(tt.url, tt.allowPrivate)
		if (err == nil) != tt.ok {
			t.Errorf("validateURL(%q, %v) err = %v, want ok=%v", tt.url, tt.allowPrivate, err, tt.ok)
		}
	}
}
