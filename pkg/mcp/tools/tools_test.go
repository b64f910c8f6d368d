package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/config"
	"github.com/schemalens/schemalens-engine/pkg/guardrail"
	"github.com/schemalens/schemalens-engine/pkg/lifecycle"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/planner"
	"github.com/schemalens/schemalens-engine/pkg/retrieval"
	"github.com/schemalens/schemalens-engine/pkg/sqlast"
)

// toolAdapter serves a fixed two-table sales schema.
type toolAdapter struct {
	execResult *datasource.QueryResult
	execErr    error
}

func (a *toolAdapter) Reflect(_ context.Context, _ datasource.ReflectOptions) (*datasource.RawSchema, error) {
	return &datasource.RawSchema{
		Dialect: "postgres",
		Schemas: []string{"sales"},
		Tables: []datasource.RawTable{
			{
				Schema: "sales", Name: "orders",
				Columns: []datasource.RawColumn{
					{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
					{Name: "customer_id", VendorType: "bigint", OrdinalPosition: 2},
					{Name: "order_date", VendorType: "date", OrdinalPosition: 3},
					{Name: "amount", VendorType: "numeric", OrdinalPosition: 4},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []datasource.RawForeignKey{
					{LocalColumn: "customer_id", RemoteSchema: "sales", RemoteTable: "customers", RemoteColumn: "id"},
				},
				RowEstimate: 5000,
			},
			{
				Schema: "sales", Name: "customers",
				Columns: []datasource.RawColumn{
					{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
					{Name: "region", VendorType: "text", OrdinalPosition: 2},
				},
				PrimaryKey:  []string{"id"},
				RowEstimate: 200,
			},
		},
	}, nil
}

func (a *toolAdapter) SampleRows(_ context.Context, _, _ string, _ int) (*datasource.QueryResult, error) {
	return &datasource.QueryResult{}, nil
}

func (a *toolAdapter) ExecuteQuery(_ context.Context, _ string, _ int) (*datasource.QueryResult, error) {
	if a.execErr != nil {
		return nil, a.execErr
	}
	if a.execResult != nil {
		return a.execResult, nil
	}
	return &datasource.QueryResult{
		Columns:  []datasource.ColumnInfo{{Name: "region", Type: "TEXT"}},
		Rows:     []map[string]any{{"region": "EMEA"}},
		RowCount: 1,
	}, nil
}

func (a *toolAdapter) TestConnection(_ context.Context) error { return nil }
func (a *toolAdapter) Dialect() string                        { return "postgres" }
func (a *toolAdapter) Close() error                           { return nil }

type toolHarness struct {
	t      *testing.T
	server *server.MCPServer
	deps   *Deps
}

func newHarness(t *testing.T, debug bool, ready bool) *toolHarness {
	t.Helper()
	logger := zap.NewNop()
	adapter := &toolAdapter{}

	cfg := &config.Config{
		DatabaseURL:              "postgres://app@db.local/sales",
		RowLimit:                 200,
		MaxCellChars:             120,
		SampleRows:               10,
		SampleTimeoutSeconds:     1,
		ValueConstraintThreshold: 20,
		MinAreaSize:              1,
		MaxTablesFastStart:       100,
		MaxColsForEmbeddings:     20,
	}

	coord := lifecycle.NewCoordinator(cfg, adapter, nil, logger)
	ast, err := sqlast.NewService(logger)
	require.NoError(t, err)

	deps := &Deps{
		Coordinator: coord,
		Guardrail: guardrail.New(adapter, ast, sqlast.DialectPostgres,
			coord.Card, guardrail.Config{RowLimit: 200, MaxCellChars: 120}, logger),
		AST:        ast,
		Planner:    planner.Config{Strategy: retrieval.StrategyLexical},
		DebugTools: debug,
		Logger:     logger,
	}

	if ready {
		coord.Start(context.Background())
		t.Cleanup(func() { coord.Stop(2 * time.Second) })
		require.Eventually(t, func() bool { return coord.Guard() == nil },
			2*time.Second, 10*time.Millisecond)
	}

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, deps)
	return &toolHarness{t: t, server: s, deps: deps}
}

func (h *toolHarness) callTool(name string, arguments map[string]any) *mcp.CallToolResult {
	h.t.Helper()
	callReq := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	}
	reqBytes, err := json.Marshal(callReq)
	require.NoError(h.t, err)

	raw := h.server.HandleMessage(context.Background(), reqBytes)
	rawBytes, err := json.Marshal(raw)
	require.NoError(h.t, err)

	var response struct {
		Result *mcp.CallToolResult `json:"result,omitempty"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	require.NoError(h.t, json.Unmarshal(rawBytes, &response))
	require.Nil(h.t, response.Error, "unexpected protocol error: %v", response.Error)
	require.NotNil(h.t, response.Result)
	return response.Result
}

func (h *toolHarness) decode(result *mcp.CallToolResult, v any) {
	h.t.Helper()
	require.NotEmpty(h.t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(h.t, ok, "expected text content, got %T", result.Content[0])
	require.NoError(h.t, json.Unmarshal([]byte(text.Text), v))
}

func (h *toolHarness) listToolNames() map[string]bool {
	h.t.Helper()
	raw := h.server.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	rawBytes, err := json.Marshal(raw)
	require.NoError(h.t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(h.t, json.Unmarshal(rawBytes, &response))

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	return names
}

func TestRegisterAllToolSurface(t *testing.T) {
	h := newHarness(t, false, false)
	names := h.listToolNames()

	for _, want := range []string{
		"get_init_status", "get_database_overview", "get_subject_areas",
		"get_table_info", "plan_query_for_intent", "execute_query",
	} {
		assert.True(t, names[want], "tool %s should be registered", want)
	}
	assert.False(t, names["find_tables"], "debug tools hidden by default")
	assert.False(t, names["find_columns"], "debug tools hidden by default")
}

func TestRegisterAllDebugTools(t *testing.T) {
	h := newHarness(t, true, false)
	names := h.listToolNames()
	assert.True(t, names["find_tables"])
	assert.True(t, names["find_columns"])
}

func TestGetInitStatusBeforeStart(t *testing.T) {
	h := newHarness(t, false, false)

	result := h.callTool("get_init_status", nil)
	require.False(t, result.IsError)

	var status models.InitStatus
	h.decode(result, &status)
	assert.Equal(t, "IDLE", status.Phase)
}

func TestReadinessGateBlocksTools(t *testing.T) {
	h := newHarness(t, false, false)

	result := h.callTool("get_database_overview", nil)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	h.decode(result, &errResp)
	assert.Equal(t, models.CodeServiceNotReady, errResp.Code)
	assert.NotNil(t, errResp.Details, "init status attached for polling guidance")
}

func TestGetDatabaseOverview(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_database_overview", nil)
	require.False(t, result.IsError)

	var overview models.DatabaseOverview
	h.decode(result, &overview)
	assert.Equal(t, "postgres", overview.Dialect)
	assert.Equal(t, []string{"sales"}, overview.Schemas)
	assert.Equal(t, 2, overview.TableCount)
	assert.NotEmpty(t, overview.SubjectAreas)
}

func TestGetSubjectAreas(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_subject_areas", nil)
	require.False(t, result.IsError)

	var resp subjectAreasResponse
	h.decode(result, &resp)
	require.NotEmpty(t, resp.SubjectAreas)

	var keys []string
	for _, area := range resp.SubjectAreas {
		keys = append(keys, area.TableKeys...)
	}
	assert.ElementsMatch(t, []string{"sales.orders", "sales.customers"}, keys)
}

func TestGetTableInfo(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_table_info", map[string]any{"table_key": "sales.orders"})
	require.False(t, result.IsError)

	var info models.TableInfo
	h.decode(result, &info)
	assert.Equal(t, "sales.orders", info.TableKey)
	assert.Equal(t, []string{"id"}, info.PrimaryKey)
	assert.Len(t, info.Columns, 4)

	var outgoing *models.RelationshipInfo
	for i := range info.Relationships {
		if info.Relationships[i].Direction == "outgoing" {
			outgoing = &info.Relationships[i]
		}
	}
	require.NotNil(t, outgoing)
	assert.Equal(t, "customer_id", outgoing.LocalColumn)
	assert.Equal(t, "sales.customers", outgoing.RemoteTable)
}

func TestGetTableInfoIncomingRelationship(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_table_info", map[string]any{"table_key": "sales.customers"})
	require.False(t, result.IsError)

	var info models.TableInfo
	h.decode(result, &info)
	require.NotEmpty(t, info.Relationships)
	assert.Equal(t, "incoming", info.Relationships[0].Direction)
	assert.Equal(t, "sales.orders", info.Relationships[0].RemoteTable)
}

func TestGetTableInfoUnknownKey(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_table_info", map[string]any{"table_key": "sales.nonexistent"})
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	h.decode(result, &errResp)
	assert.Equal(t, models.CodeInvalidTableKey, errResp.Code)
}

func TestGetTableInfoRoleFilter(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("get_table_info", map[string]any{
		"table_key":          "sales.orders",
		"column_role_filter": "date",
	})
	require.False(t, result.IsError)

	var info models.TableInfo
	h.decode(result, &info)
	for _, col := range info.Columns {
		assert.Equal(t, "date", col.Role)
	}
}

func TestPlanQueryForIntent(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("plan_query_for_intent", map[string]any{
		"request": "total revenue by region for 2024",
	})
	require.False(t, result.IsError)

	var plan models.PlanResult
	h.decode(result, &plan)
	assert.Equal(t, "sales.orders", plan.MainTable)
	require.Len(t, plan.JoinPlan, 1)
	assert.Equal(t, "sales.orders.customer_id", plan.JoinPlan[0].LeftColumn)
	assert.Equal(t, "sales.customers.id", plan.JoinPlan[0].RightColumn)
	assert.GreaterOrEqual(t, plan.Confidence, planner.DraftConfidenceThreshold)
	assert.NotEmpty(t, plan.DraftSQL)
}

func TestPlanQueryBriefDetail(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("plan_query_for_intent", map[string]any{
		"request":      "total revenue by region for 2024",
		"detail_level": "brief",
	})
	require.False(t, result.IsError)

	var plan models.PlanResult
	h.decode(result, &plan)
	assert.LessOrEqual(t, len(plan.RelevantTables), 3)
	assert.Empty(t, plan.SelectedColumns)
	assert.Empty(t, plan.FilterCandidates)
}

func TestExecuteQuery(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("execute_query", map[string]any{
		"sql": "SELECT region FROM sales.customers LIMIT 5",
	})
	require.False(t, result.IsError)

	var exec models.ExecuteResult
	h.decode(result, &exec)
	assert.Equal(t, models.StatusOK, exec.Status)
	assert.Equal(t, 1, exec.RowCount)
	assert.Equal(t, "EMEA", exec.Rows[0]["region"])
}

func TestExecuteQueryRejectsNonSelect(t *testing.T) {
	h := newHarness(t, false, true)

	result := h.callTool("execute_query", map[string]any{
		"sql": "DROP TABLE sales.orders",
	})
	require.False(t, result.IsError, "guardrail errors are structured values, not tool errors")

	var exec models.ExecuteResult
	h.decode(result, &exec)
	assert.Equal(t, models.StatusError, exec.Status)
	require.NotNil(t, exec.Error)
	assert.Equal(t, models.CodeNonSelectStatement, exec.Error.Code)
}

func TestFindTables(t *testing.T) {
	h := newHarness(t, true, true)

	result := h.callTool("find_tables", map[string]any{"query": "orders"})
	require.False(t, result.IsError)

	var resp findTablesResponse
	h.decode(result, &resp)
	require.NotEmpty(t, resp.Tables)
	assert.Equal(t, "sales.orders", resp.Tables[0].TableKey)
}

func TestFindColumnsScopedToTable(t *testing.T) {
	h := newHarness(t, true, true)

	result := h.callTool("find_columns", map[string]any{
		"keyword":  "amount",
		"by_table": "sales.orders",
	})
	require.False(t, result.IsError)

	var resp findColumnsResponse
	h.decode(result, &resp)
	require.NotEmpty(t, resp.Columns)
	for _, hit := range resp.Columns {
		assert.Equal(t, "sales.orders", hit.TableKey)
	}
}

func TestToolStructureTableInfo(t *testing.T) {
	h := newHarness(t, false, false)

	raw := h.server.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	rawBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				InputSchema struct {
					Required   []string       `json:"required"`
					Properties map[string]any `json:"properties"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rawBytes, &response))

	for _, tool := range response.Result.Tools {
		if tool.Name != "get_table_info" {
			continue
		}
		assert.Contains(t, tool.InputSchema.Required, "table_key")
		assert.Contains(t, tool.InputSchema.Properties, "include_samples")
		return
	}
	t.Fatal("get_table_info not registered")
}
