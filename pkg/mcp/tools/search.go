package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/retrieval"
)

const (
	defaultFindTablesLimit  = 10
	defaultFindColumnsLimit = 20
)

type findTablesResponse struct {
	Tables []models.TableSearchHit `json:"tables"`
}

type findColumnsResponse struct {
	Columns []models.ColumnSearchHit `json:"columns"`
}

// RegisterSearchTools adds find_tables and find_columns. These expose the
// raw retrieval layer for debugging rankings and are only registered when
// debug tools are enabled.
func RegisterSearchTools(s *server.MCPServer, deps *Deps) {
	registerFindTablesTool(s, deps)
	registerFindColumnsTool(s, deps)
}

func registerFindTablesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"find_tables",
		mcp.WithDescription(
			"Ranks tables against a free-text query, exposing the per-table score components "+
				"(lexical, embedding, bonuses, penalties). Debugging aid for retrieval quality; "+
				"prefer plan_query_for_intent for actual planning.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Free-text search query"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum hits to return (default 10)"),
		),
		mcp.WithString(
			"approach",
			mcp.Description("Retrieval approach: lexical, embedding_table, embedding_column, or combined"),
		),
		mcp.WithNumber(
			"alpha",
			mcp.Description("Lexical weight for the combined approach, in (0, 1]"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}

		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}

		limit := defaultFindTablesLimit
		if v, ok := getOptionalInt(req, "limit"); ok && v > 0 {
			limit = v
		}
		approach := getOptionalString(req, "approach")
		alpha, _ := getOptionalFloat(req, "alpha")
		if alpha <= 0 {
			alpha = retrieval.DefaultAlpha
		}

		retriever, err := deps.Coordinator.Retriever()
		if err != nil {
			return nil, err
		}
		hits := retriever.SearchTables(ctx, query, limit, approach, alpha)
		if hits == nil {
			hits = []models.TableSearchHit{}
		}
		return jsonResult(findTablesResponse{Tables: hits})
	})
}

func registerFindColumnsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"find_columns",
		mcp.WithDescription(
			"Ranks columns against a keyword, optionally restricted to one table. "+
				"Debugging aid for retrieval quality. "+
				"Example: find_columns(keyword='revenue', by_table='sales.orders').",
		),
		mcp.WithString(
			"keyword",
			mcp.Required(),
			mcp.Description("Keyword to match against column names and roles"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum hits to return (default 20)"),
		),
		mcp.WithString(
			"by_table",
			mcp.Description("Restrict the search to one '<schema>.<table>' key"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}

		keyword, err := req.RequireString("keyword")
		if err != nil {
			return nil, err
		}

		limit := defaultFindColumnsLimit
		if v, ok := getOptionalInt(req, "limit"); ok && v > 0 {
			limit = v
		}

		retriever, err := deps.Coordinator.Retriever()
		if err != nil {
			return nil, err
		}
		hits := retriever.SearchColumns(ctx, keyword, limit, getOptionalString(req, "by_table"))
		if hits == nil {
			hits = []models.ColumnSearchHit{}
		}
		return jsonResult(findColumnsResponse{Columns: hits})
	})
}
