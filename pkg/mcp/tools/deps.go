// Package tools provides the MCP tool implementations for schemalens-engine.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/guardrail"
	"github.com/schemalens/schemalens-engine/pkg/lifecycle"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/planner"
	"github.com/schemalens/schemalens-engine/pkg/sqlast"
)

// Deps carries the shared dependencies of every tool.
type Deps struct {
	Coordinator *lifecycle.Coordinator
	Guardrail   *guardrail.Runner
	AST         *sqlast.Service
	Planner     planner.Config
	DebugTools  bool
	Logger      *zap.Logger
}

// RegisterAll wires the full tool surface. Debug tools are registered only
// when enabled.
func RegisterAll(s *server.MCPServer, deps *Deps) {
	RegisterStatusTool(s, deps)
	RegisterOverviewTools(s, deps)
	RegisterPlanTool(s, deps)
	RegisterExecuteTool(s, deps)
	if deps.DebugTools {
		RegisterSearchTools(s, deps)
	}
}

// readinessGate returns a SERVICE_NOT_READY result when the coordinator has
// not published readiness, with the current init status attached so the
// caller knows whether to wait or give up. Every tool except get_init_status
// goes through it.
func readinessGate(deps *Deps) *mcp.CallToolResult {
	if err := deps.Coordinator.Guard(); err != nil {
		return NewErrorResultWithDetails(models.CodeServiceNotReady,
			"schema service is not ready; poll get_init_status",
			deps.Coordinator.Status())
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func trimString(s string) string {
	return strings.TrimSpace(s)
}

func getOptionalString(req mcp.CallToolRequest, key string) string {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(string); ok {
			return v
		}
	}
	return ""
}

// getOptionalInt reads a numeric argument; JSON numbers arrive as float64.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(float64); ok {
			return int(v), true
		}
	}
	return 0, false
}

func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

func getOptionalBool(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(bool); ok {
			return v
		}
	}
	return defaultVal
}

func getOptionalObject(req mcp.CallToolRequest, key string) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(map[string]any); ok {
			return v
		}
	}
	return nil
}
