package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/planner"
)

const briefTableLimit = 3

// RegisterPlanTool adds plan_query_for_intent.
func RegisterPlanTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"plan_query_for_intent",
		mcp.WithDescription(
			"Turns a natural-language request into a structured query plan: relevant tables, "+
				"main table, join plan, group-by and filter candidates, clarifications to resolve, "+
				"a confidence score, and draft SQL when the plan is unambiguous. "+
				"Example: plan_query_for_intent(request='total revenue by region for 2024'). "+
				"Resolve blocking clarifications before calling execute_query.",
		),
		mcp.WithString(
			"request",
			mcp.Required(),
			mcp.Description("The analytical question in natural language"),
		),
		mcp.WithString(
			"detail_level",
			mcp.Description("Response size: 'brief', 'standard' (default), or 'full'"),
		),
		mcp.WithObject(
			"budget",
			mcp.Description("Optional caps: {tables, columns_per_table}"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}

		request, err := req.RequireString("request")
		if err != nil {
			return nil, err
		}
		request = trimString(request)
		if request == "" {
			return NewErrorResult("invalid_parameters", "parameter 'request' cannot be empty"), nil
		}

		cfg := deps.Planner
		if budget := getOptionalObject(req, "budget"); budget != nil {
			if v, ok := budget["tables"].(float64); ok && v > 0 {
				cfg.MaxTables = int(v)
			}
			if v, ok := budget["columns_per_table"].(float64); ok && v > 0 {
				cfg.ColumnsPerTable = int(v)
			}
		}

		card := deps.Coordinator.Card()
		retriever, err := deps.Coordinator.Retriever()
		if err != nil {
			return nil, err
		}

		plan := planner.New(card, retriever, cfg, deps.Logger).Plan(ctx, request)

		if getOptionalString(req, "detail_level") == "brief" {
			trimPlanForBrief(plan)
		}

		deps.Logger.Debug("plan produced",
			zap.String("main_table", plan.MainTable),
			zap.Float64("confidence", plan.Confidence),
			zap.Int("clarifications", len(plan.Clarifications)))
		return jsonResult(plan)
	})
}

// trimPlanForBrief keeps the decision-relevant core: tables, joins,
// clarifications, confidence, and draft SQL.
func trimPlanForBrief(plan *models.PlanResult) {
	if len(plan.RelevantTables) > briefTableLimit {
		plan.RelevantTables = plan.RelevantTables[:briefTableLimit]
	}
	plan.KeyColumns = nil
	plan.FilterCandidates = nil
	plan.SelectedColumns = nil
	plan.Assumptions = nil
}
