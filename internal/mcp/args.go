package mcp

import (
	"encoding/json"
	"fmt"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
)

// args decodes raw tool arguments. Absent or malformed input yields an
// empty map so lookups fall back to defaults.
type args map[string]any

func parseArgs(raw json.RawMessage) args {
	if len(raw) == 0 {
		return args{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return args{}
	}
	return m
}

func (a args) str(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// num truncates JSON numbers to int.
func (a args) num(key string, def int) int {
	if f, ok := a[key].(float64); ok {
		return int(f)
	}
	return def
}

func (a args) flag(key string, def bool) bool {
	if b, ok := a[key].(bool); ok {
		return b
	}
	return def
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{&mcplib.TextContent{Text: string(data)}},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{&mcplib.TextContent{Text: msg}},
	}
}
