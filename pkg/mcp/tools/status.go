package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterStatusTool adds get_init_status. It is the only tool that answers
// before the service is ready.
func RegisterStatusTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_init_status",
		mcp.WithDescription(
			"Returns the initialization state of the schema service: phase (IDLE, STARTING, "+
				"RUNNING, READY, FAILED, STOPPED), attempt count, timestamps, and error message "+
				"if startup failed. Poll this until phase is READY before using other tools.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(deps.Coordinator.Status())
	})
}
