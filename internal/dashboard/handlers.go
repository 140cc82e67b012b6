package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/monitor"
)

type historyItem struct {
	ID        string      `json:"id"`
	Type      detect.Kind `json:"type"`
	Message   string      `json:"message,omitempty"`
	Label     string      `json:"label"`
	Time      string      `json:"time"`
	Timestamp time.Time   `json:"timestamp"`
}

// liveView is everything the live page shows. It is rendered server-side
// once and then pushed over SSE.
type liveView struct {
	Connected       bool             `json:"connected"`
	Narration       bool             `json:"narration"`
	Detections      detect.Snapshot  `json:"detections"`
	Message         string           `json:"nlpMessage,omitempty"`
	Alert           detect.Alert     `json:"alert"`
	Guidance        *detect.Guidance `json:"guidance,omitempty"`
	History         []historyItem    `json:"history"`
	Control         control.State    `json:"control"`
	Probe           monitor.Status   `json:"probe"`
	AutoDetectionIn int64            `json:"auto_detection_in_s"`
}

func (s *Server) buildView(st detect.State) liveView {
	v := liveView{
		Connected:  st.Connected,
		Narration:  st.Narration,
		Detections: st.Snapshot,
		Alert:      detect.Assess(st.Snapshot),
		History: lo.Map(st.History, func(e detect.HistoryEntry, _ int) historyItem {
			return historyItem{
				ID:        e.ID,
				Type:      e.Type,
				Message:   e.Message,
				Label:     e.Label(),
				Time:      e.Timestamp.Local().Format("15:04:05"),
				Timestamp: e.Timestamp,
			}
		}),
		Control:         s.panel.State(),
		Probe:           s.prober.Status(),
		AutoDetectionIn: int64(detect.UntilAutoDetection(s.now()) / time.Second),
	}
	// Narration text replaces the guidance card only while narration is on.
	if st.Narration && st.Message != "" {
		v.Message = st.Message
	} else if g, ok := detect.GuidanceFor(st.Snapshot); ok {
		v.Guidance = &g
	}
	return v
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	v := s.buildView(s.listener.State())
	data := map[string]any{
		"Active":    "live",
		"Narration": v.Narration,
		"View":      v,
		"VideoURL":  "/video_feed/" + v.Control.VideoID,
		"Countdown": formatCountdown(time.Duration(v.AutoDetectionIn) * time.Second),
		"Now":       s.now().Format("2006-01-02 15:04:05"),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := liveTmpl.Execute(w, data); err != nil {
		s.logger.Error("render live page", "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Active":    "history",
		"Narration": s.listener.State().Narration,
		"Connected": s.prober.Connected(),
	}

	if s.prober.Connected() {
		var (
			records []backend.Record
			err     error
		)
		if r.URL.Query().Get("refresh") != "" {
			records, err = s.history.Refresh(r.Context())
		} else {
			records, err = s.history.List(r.Context())
		}
		if err != nil {
			s.logger.Error("fetch history", "error", err)
			data["Error"] = "Failed to fetch history."
		}
		data["Records"] = records
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := historyTmpl.Execute(w, data); err != nil {
		s.logger.Error("render history page", "error", err)
	}
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildView(s.listener.State()))
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if !s.prober.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": control.ErrNotConnected.Error()})
		return
	}
	fetch := s.history.List
	if r.URL.Query().Get("refresh") != "" {
		fetch = s.history.Refresh
	}
	records, err := fetch(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type narrationRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleNarration(w http.ResponseWriter, r *http.Request) {
	var req narrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.listener.SetNarration(req.Enabled)
	s.logger.Info("narration toggled", "enabled", req.Enabled, "request_id", RequestIDFrom(r.Context()))
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action, err := backend.ParseAction(r.PathValue("action"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	st, err := s.panel.Do(r.Context(), action)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, control.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "control": st})
	case errors.Is(err, control.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "control": st})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "control": st})
	}
}

type videoRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleVideoID(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	st, err := s.panel.SetVideoID(req.ID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	s.prober.Recheck()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "probing"})
}

// --- SSE handler ---

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Extend write deadline so the SSE connection stays open
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	flusher.Flush()

	id, ch := s.listener.Subscribe()
	defer s.listener.Unsubscribe(id)

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case st, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(s.buildView(st))
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}

func formatCountdown(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	sec := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("Auto Detection will start at 7 PM. Remaining time: %dh %dm %ds", h, m, sec)
}
