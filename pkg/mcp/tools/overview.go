package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

const (
	defaultMaxSampleValues   = 10
	defaultRelationshipLimit = 20
	topTablesPerArea         = 5
)

// RegisterOverviewTools adds the schema exploration tools:
// get_database_overview, get_subject_areas, and get_table_info.
func RegisterOverviewTools(s *server.MCPServer, deps *Deps) {
	registerDatabaseOverviewTool(s, deps)
	registerSubjectAreasTool(s, deps)
	registerTableInfoTool(s, deps)
}

func registerDatabaseOverviewTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_database_overview",
		mcp.WithDescription(
			"Returns a high-level map of the connected database: dialect, schemas, table count, "+
				"and subject areas (groups of related tables) with their most central tables. "+
				"Start here to orient yourself before drilling into specific tables.",
		),
		mcp.WithBoolean(
			"include_subject_areas",
			mcp.Description("Include the subject area summaries (default true)"),
		),
		mcp.WithNumber(
			"area_limit",
			mcp.Description("Maximum number of subject areas to return (default all)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}
		card := deps.Coordinator.Card()

		overview := models.DatabaseOverview{
			Dialect:      card.Dialect,
			Schemas:      card.Schemas,
			TableCount:   card.TableCount(),
			SubjectAreas: []models.SubjectAreaInfo{},
		}

		if getOptionalBool(req, "include_subject_areas", true) {
			overview.SubjectAreas = subjectAreaInfos(card)
			if limit, ok := getOptionalInt(req, "area_limit"); ok && limit > 0 && limit < len(overview.SubjectAreas) {
				overview.SubjectAreas = overview.SubjectAreas[:limit]
			}
		}
		return jsonResult(overview)
	})
}

type subjectAreaDetail struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Summary   string   `json:"summary,omitempty"`
	TableKeys []string `json:"table_keys"`
}

type subjectAreasResponse struct {
	SubjectAreas []subjectAreaDetail `json:"subject_areas"`
}

func registerSubjectAreasTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_subject_areas",
		mcp.WithDescription(
			"Returns every subject area with its full table list. Subject areas partition the "+
				"foreign-key graph into communities of related tables, so they show which tables "+
				"belong together. Use get_table_info on interesting members.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}
		card := deps.Coordinator.Card()

		resp := subjectAreasResponse{SubjectAreas: []subjectAreaDetail{}}
		for _, area := range sortedAreas(card) {
			keys := append([]string(nil), area.TableKeys...)
			sort.Strings(keys)
			resp.SubjectAreas = append(resp.SubjectAreas, subjectAreaDetail{
				ID:        area.ID,
				Name:      area.Name,
				Summary:   area.Summary,
				TableKeys: keys,
			})
		}
		return jsonResult(resp)
	})
}

func registerTableInfoTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_table_info",
		mcp.WithDescription(
			"Returns everything known about one table: columns with semantic roles and profiled "+
				"value constraints, primary key, foreign-key relationships in both directions, and "+
				"suggested filters. Example: get_table_info(table_key='sales.orders').",
		),
		mcp.WithString(
			"table_key",
			mcp.Required(),
			mcp.Description("Qualified table key in the form '<schema>.<table>'"),
		),
		mcp.WithBoolean(
			"include_samples",
			mcp.Description("Include sampled values and ranges (default true)"),
		),
		mcp.WithString(
			"column_role_filter",
			mcp.Description("Only return columns with this role: key, id, date, metric, category, or text"),
		),
		mcp.WithNumber(
			"max_sample_values",
			mcp.Description("Cap on enumerated values per column (default 10)"),
		),
		mcp.WithNumber(
			"relationship_limit",
			mcp.Description("Cap on relationships returned (default 20)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if gate := readinessGate(deps); gate != nil {
			return gate, nil
		}
		card := deps.Coordinator.Card()

		tableKey, err := req.RequireString("table_key")
		if err != nil {
			return nil, err
		}
		tableKey = trimString(tableKey)
		if tableKey == "" {
			return NewErrorResult(models.CodeInvalidTableKey,
				"parameter 'table_key' cannot be empty"), nil
		}

		tbl := card.Table(tableKey)
		if tbl == nil {
			return NewErrorResultWithDetails(models.CodeInvalidTableKey,
				fmt.Sprintf("table %q not found; keys are '<schema>.<table>'", tableKey),
				map[string]any{"table_count": card.TableCount()}), nil
		}

		includeSamples := getOptionalBool(req, "include_samples", true)
		roleFilter := trimString(getOptionalString(req, "column_role_filter"))
		maxValues := defaultMaxSampleValues
		if v, ok := getOptionalInt(req, "max_sample_values"); ok && v > 0 {
			maxValues = v
		}
		relLimit := defaultRelationshipLimit
		if v, ok := getOptionalInt(req, "relationship_limit"); ok && v > 0 {
			relLimit = v
		}

		info := models.TableInfo{
			TableKey:    tbl.Key,
			Archetype:   string(tbl.Archetype),
			Summary:     tbl.Summary,
			RowEstimate: tbl.RowEstimate,
			PrimaryKey:  tbl.PrimaryKey,
			Columns:     []models.ColumnDetail{},
		}
		if area, ok := card.SubjectAreas[tbl.SubjectAreaID]; ok {
			info.SubjectArea = area.Name
		}

		for _, col := range tbl.Columns {
			if roleFilter != "" && string(col.Role) != roleFilter {
				continue
			}
			detail := models.ColumnDetail{
				Name:         col.Name,
				Type:         col.VendorType,
				Role:         string(col.Role),
				Nullable:     col.Nullable,
				IsPrimaryKey: col.IsPrimaryKey,
				IsForeignKey: col.IsForeignKey,
				NullRate:     col.NullRate,
				Patterns:     col.Patterns,
				SemanticTags: col.SemanticTags,
			}
			if includeSamples {
				detail.Values = col.Values
				if len(detail.Values) > maxValues {
					detail.Values = detail.Values[:maxValues]
				}
				detail.RangeMin = col.RangeMin
				detail.RangeMax = col.RangeMax
			}
			info.Columns = append(info.Columns, detail)
		}

		info.Relationships = tableRelationships(card, tbl, relLimit)
		info.CommonFilters = commonFilters(tbl, maxValues)
		return jsonResult(info)
	})
}

// tableRelationships lists outgoing FKs first, then incoming references from
// the rest of the card.
func tableRelationships(card *schema.Card, tbl *schema.TableProfile, limit int) []models.RelationshipInfo {
	var rels []models.RelationshipInfo
	for _, fk := range tbl.ForeignKeys {
		rels = append(rels, models.RelationshipInfo{
			LocalColumn:  fk.LocalColumn,
			RemoteTable:  fk.RemoteTableKey,
			RemoteColumn: fk.RemoteColumn,
			Direction:    "outgoing",
		})
	}
	for _, edge := range card.Edges {
		if edge.TargetTable != tbl.Key {
			continue
		}
		rels = append(rels, models.RelationshipInfo{
			LocalColumn:  edge.TargetColumn,
			RemoteTable:  edge.SourceTable,
			RemoteColumn: edge.SourceColumn,
			Direction:    "incoming",
		})
	}
	if len(rels) > limit {
		rels = rels[:limit]
	}
	return rels
}

// commonFilters suggests predicates from profiled constraints: enumerated
// category values and sampled date ranges.
func commonFilters(tbl *schema.TableProfile, maxValues int) []models.FilterCandidate {
	var filters []models.FilterCandidate
	for _, col := range tbl.Columns {
		qualified := tbl.Key + "." + col.Name
		switch {
		case col.Role == schema.RoleCategory && len(col.Values) > 0:
			values := col.Values
			if len(values) > maxValues {
				values = values[:maxValues]
			}
			filters = append(filters, models.FilterCandidate{
				Column:    qualified,
				Predicate: "IN (…)",
				Values:    values,
			})
		case col.Role == schema.RoleDate && col.RangeMin != nil && col.RangeMax != nil:
			filters = append(filters, models.FilterCandidate{
				Column:    qualified,
				Predicate: "BETWEEN",
				RangeMin:  col.RangeMin,
				RangeMax:  col.RangeMax,
			})
		}
	}
	return filters
}

func subjectAreaInfos(card *schema.Card) []models.SubjectAreaInfo {
	infos := make([]models.SubjectAreaInfo, 0, len(card.SubjectAreas))
	for _, area := range sortedAreas(card) {
		infos = append(infos, models.SubjectAreaInfo{
			ID:         area.ID,
			Name:       area.Name,
			Summary:    area.Summary,
			TableCount: len(area.TableKeys),
			TopTables:  topTables(card, area, topTablesPerArea),
		})
	}
	return infos
}

// sortedAreas orders areas largest first, name as tiebreak, so the listing is
// stable across rebuilds.
func sortedAreas(card *schema.Card) []*schema.SubjectArea {
	areas := make([]*schema.SubjectArea, 0, len(card.SubjectAreas))
	for _, area := range card.SubjectAreas {
		areas = append(areas, area)
	}
	sort.Slice(areas, func(i, j int) bool {
		if len(areas[i].TableKeys) != len(areas[j].TableKeys) {
			return len(areas[i].TableKeys) > len(areas[j].TableKeys)
		}
		return areas[i].Name < areas[j].Name
	})
	return areas
}

// topTables picks the most central members of an area.
func topTables(card *schema.Card, area *schema.SubjectArea, limit int) []string {
	keys := append([]string(nil), area.TableKeys...)
	sort.Slice(keys, func(i, j int) bool {
		a, b := card.Tables[keys[i]], card.Tables[keys[j]]
		if a.Centrality != b.Centrality {
			return a.Centrality > b.Centrality
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
