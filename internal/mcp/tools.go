package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/detect"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func readOnly() *mcplib.ToolAnnotations {
	return &mcplib.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: lo.ToPtr(false)}
}

// --- Tool definitions ---

func currentDetectionsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "current_detections",
		Description: "Get the latest detection snapshot: which of person, multiple persons, " +
			"knife and gun are detected, the alert level, the narration text and whether " +
			"the backend is reachable.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Annotations: readOnly(),
	}
}

func recentDetectionsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "recent_detections",
		Description: fmt.Sprintf("List the most recent alerts seen by this dashboard, newest first "+
			"(at most %d). Entries are not persisted.", detect.MaxHistory),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum entries to return"},
			},
		},
		Annotations: readOnly(),
	}
}

func detectionHistoryTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "detection_history",
		Description: "Query the backend's authoritative detection history. Returns source ID, " +
			"message, detection flags and timestamp for each record.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"refresh": map[string]any{"type": "boolean", "description": "Bypass the cache"},
				"kind": map[string]any{
					"type":        "string",
					"description": "Only records with this flag set: person, knife, gun, multiple_persons",
				},
				"limit": map[string]any{"type": "integer", "description": "Maximum records to return (default 50)"},
			},
		},
		Annotations: readOnly(),
	}
}

func controlVideoTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "control_video",
		Description: "Switch the video source or start/stop detection on the backend. " +
			"Switching the source also stops detection.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        lo.Map(backend.Actions, func(a backend.Action, _ int) string { return string(a) }),
					"description": "webcam, prerecorded, start or stop",
				},
			},
			"required": []string{"action"},
		},
		Annotations: &mcplib.ToolAnnotations{DestructiveHint: lo.ToPtr(false), OpenWorldHint: lo.ToPtr(true)},
	}
}

// --- Handlers ---

func (h *handlers) handleCurrentDetections(_ context.Context, _ *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	st := h.deps.State.State()
	alert := detect.Assess(st.Snapshot)
	out := map[string]any{
		"connected":  st.Connected,
		"narration":  st.Narration,
		"detections": st.Snapshot,
		"alert":      alert,
		"control":    h.deps.Control.State(),
	}
	if st.Message != "" {
		out["message"] = st.Message
	}
	if g, ok := detect.GuidanceFor(st.Snapshot); ok && st.Message == "" {
		out["guidance"] = g
	}
	return jsonResult(out), nil
}

func (h *handlers) handleRecentDetections(_ context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a := parseArgs(req.Params.Arguments)
	entries := h.deps.State.State().History
	if limit := a.num("limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := lo.Map(entries, func(e detect.HistoryEntry, _ int) map[string]any {
		return map[string]any{
			"id":        e.ID,
			"type":      e.Type,
			"label":     e.Label(),
			"severity":  e.Type.Level(),
			"timestamp": e.Timestamp,
		}
	})
	return jsonResult(map[string]any{"count": len(out), "entries": out}), nil
}

func (h *handlers) handleDetectionHistory(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if !h.deps.Connected() {
		return errorResult("API connection error. Unable to fetch history data."), nil
	}
	a := parseArgs(req.Params.Arguments)

	fetch := h.deps.History.List
	if a.flag("refresh", false) {
		fetch = h.deps.History.Refresh
	}
	records, err := fetch(ctx)
	if err != nil {
		h.logger.Warn("mcp history fetch failed", "error", err)
		return errorResult(fmt.Sprintf("fetch history: %v", err)), nil
	}

	records, err = backend.FilterRecords(records, a.str("kind", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if limit := a.num("limit", 50); limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return jsonResult(map[string]any{"count": len(records), "records": records}), nil
}

func (h *handlers) handleControlVideo(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a := parseArgs(req.Params.Arguments)
	action, err := backend.ParseAction(a.str("action", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}

	st, err := h.deps.Control.Do(ctx, action)
	switch {
	case errors.Is(err, control.ErrNotConnected):
		return errorResult("backend is not connected; action refused"), nil
	case errors.Is(err, control.ErrBusy):
		return errorResult(fmt.Sprintf("%s is already in progress", action)), nil
	case err != nil:
		return errorResult(fmt.Sprintf("backend rejected %s: %v", action, err)), nil
	}
	h.logger.Info("mcp control action", "action", action)
	return jsonResult(st), nil
}
