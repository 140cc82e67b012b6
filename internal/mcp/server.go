// Package mcp exposes the detection state and control panel as MCP tools.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/detect"
)

// StateSource supplies the current detection state.
type StateSource interface {
	State() detect.State
}

// HistorySource reads the backend's detection history.
type HistorySource interface {
	List(ctx context.Context) ([]backend.Record, error)
	Refresh(ctx context.Context) ([]backend.Record, error)
}

// Controller forwards control actions to the backend.
type Controller interface {
	Do(ctx context.Context, a backend.Action) (control.State, error)
	State() control.State
}

// Deps are the components the tools read from and act on.
type Deps struct {
	State     StateSource
	History   HistorySource
	Control   Controller
	Connected func() bool
}

// NewServer creates an MCP server exposing vigil tools.
func NewServer(d Deps, version string, logger *slog.Logger) *mcplib.Server {
	s := mcplib.NewServer(&mcplib.Implementation{
		Name:    "vigil",
		Version: version,
	}, &mcplib.ServerOptions{
		Instructions: "Vigil watches a camera-based intruder detection backend. " +
			"Use these tools to read the current detections, list recent alerts, " +
			"query the backend history and switch the video source or detection.",
	})

	h := &handlers{deps: d, logger: logger}

	s.AddTool(currentDetectionsTool(), h.handleCurrentDetections)
	s.AddTool(recentDetectionsTool(), h.handleRecentDetections)
	s.AddTool(detectionHistoryTool(), h.handleDetectionHistory)
	s.AddTool(controlVideoTool(), h.handleControlVideo)

	return s
}

// Serve runs the MCP server on stdio until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, s *mcplib.Server) error {
	return s.Run(ctx, &mcplib.StdioTransport{})
}
