package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/models"
)

// RegisterExecuteTool adds execute_query. All failures come back as
// structured values inside the execute result, so the caller always gets the
// error taxonomy rather than a protocol error.
func RegisterExecuteTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Executes a single SELECT statement through the guardrail: non-SELECT and "+
				"multi-statement input is rejected, the statement is transpiled to the active "+
				"dialect, rows are capped at the configured limit, and long cells are truncated. "+
				"Errors carry a code, hints, and a next_action suggestion.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SELECT statement to execute"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}

		sql, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		sql = trimString(sql)
		if sql == "" {
			return NewErrorResult("invalid_parameters", "parameter 'sql' cannot be empty"), nil
		}

		result := deps.Guardrail.Execute(ctx, sql)
		if result.Status == models.StatusError {
			deps.Logger.Debug("execute_query failed",
				zap.String("code", result.Error.Code),
				zap.String("category", result.Error.Category))
		}
		return jsonResult(result)
	})
}
