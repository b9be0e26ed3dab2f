// Package graphtools provides the MCP tool handlers for the knowledge
// graph server.
//
// Each tool follows the same pattern:
// - A struct with its dependencies (store, services) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Domain errors come back as tool error results carrying the taxonomy
// code (e.g. "[NOT_FOUND] node abc not found"), never as protocol errors.
package graphtools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opal-se/opal/internal/graph"
)

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// floatArg extracts a float argument.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// strSliceArg extracts a string-array argument. Missing or malformed
// entries yield a nil slice.
func strSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// mapArg extracts an object argument.
func mapArg(req mcp.CallToolRequest, key string) map[string]any {
	m, _ := req.GetArguments()[key].(map[string]any)
	return m
}

// decodeArg re-decodes a structured argument (object or array) into a
// typed value. Absent arguments leave the target untouched.
func decodeArg(req mcp.CallToolRequest, key string, target any) error {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// jsonResult renders a value as an indented JSON tool result.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// toolError renders a domain error as a tool error result. graph.Error
// values already carry their taxonomy code in the message.
func toolError(err error) *mcp.CallToolResult {
	var ge *graph.Error
	if errors.As(err, &ge) {
		return mcp.NewToolResultError(ge.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", graph.CodeOf(err), err))
}
