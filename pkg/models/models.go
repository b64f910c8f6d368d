// Package models defines the response shapes returned by the engine's tools.
package models

import "time"

// InitStatus reports the coordinator's readiness state machine.
type InitStatus struct {
	Phase        string     `json:"phase"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TableCount   int        `json:"table_count,omitempty"`
	Enriching    bool       `json:"enriching,omitempty"`
}

// SubjectAreaInfo summarizes one subject area for the overview tools.
type SubjectAreaInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Summary    string   `json:"summary,omitempty"`
	TableCount int      `json:"table_count"`
	TopTables  []string `json:"top_tables,omitempty"`
}

// DatabaseOverview is the response of get_database_overview.
type DatabaseOverview struct {
	Dialect      string            `json:"dialect"`
	Schemas      []string          `json:"schemas"`
	TableCount   int               `json:"table_count"`
	SubjectAreas []SubjectAreaInfo `json:"subject_areas"`
}

// ColumnDetail is one column in a get_table_info response.
type ColumnDetail struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Role         string   `json:"role"`
	Nullable     bool     `json:"nullable"`
	IsPrimaryKey bool     `json:"is_primary_key,omitempty"`
	IsForeignKey bool     `json:"is_foreign_key,omitempty"`
	NullRate     float64  `json:"null_rate"`
	Values       []string `json:"values,omitempty"`
	RangeMin     *string  `json:"range_min,omitempty"`
	RangeMax     *string  `json:"range_max,omitempty"`
	Patterns     []string `json:"patterns,omitempty"`
	SemanticTags []string `json:"semantic_tags,omitempty"`
}

// RelationshipInfo is one FK edge in a get_table_info response.
type RelationshipInfo struct {
	LocalColumn  string `json:"local_column"`
	RemoteTable  string `json:"remote_table"`
	RemoteColumn string `json:"remote_column"`
	Direction    string `json:"direction"` // outgoing or incoming
}

// TableInfo is the response of get_table_info.
type TableInfo struct {
	TableKey      string             `json:"table_key"`
	Archetype     string             `json:"archetype"`
	Summary       string             `json:"summary,omitempty"`
	SubjectArea   string             `json:"subject_area,omitempty"`
	RowEstimate   int64              `json:"row_estimate"`
	Columns       []ColumnDetail     `json:"columns"`
	PrimaryKey    []string           `json:"primary_key,omitempty"`
	Relationships []RelationshipInfo `json:"relationships,omitempty"`
	CommonFilters []FilterCandidate  `json:"common_filters,omitempty"`
}

// TableSearchHit is one result row of find_tables.
type TableSearchHit struct {
	TableKey   string             `json:"table_key"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components,omitempty"`
}

// ColumnSearchHit is one result row of find_columns.
type ColumnSearchHit struct {
	TableKey string  `json:"table_key"`
	Column   string  `json:"column"`
	Score    float64 `json:"score"`
}

// Expansion origins for ranked tables.
const (
	OriginSeed     = "seed"
	OriginExpanded = "expanded"
)

// RankedTable is one entry of a plan's relevant tables, with its component
// scores exposed for debugging and regression tests.
type RankedTable struct {
	TableKey       string  `json:"table_key"`
	Score          float64 `json:"score"`
	Lexical        float64 `json:"lexical"`
	Embedding      float64 `json:"embedding"`
	Centrality     float64 `json:"centrality"`
	ArchetypeBonus float64 `json:"archetype_bonus"`
	Origin         string  `json:"origin"`
	Archetype      string  `json:"archetype,omitempty"`
	Summary        string  `json:"summary,omitempty"`
}

// JoinStep is one edge of the join plan; both sides are fully qualified
// "<schema>.<table>.<column>".
type JoinStep struct {
	LeftColumn  string `json:"left_column"`
	RightColumn string `json:"right_column"`
}

// FilterCandidate suggests a predicate over a fully qualified column.
type FilterCandidate struct {
	Column    string   `json:"column"`
	Predicate string   `json:"predicate"` // "=", "IN (…)", "BETWEEN", ">= AND <"
	Values    []string `json:"values,omitempty"`
	RangeMin  *string  `json:"range_min,omitempty"`
	RangeMax  *string  `json:"range_max,omitempty"`
}

// SelectedColumn is one output column proposed by the planner.
type SelectedColumn struct {
	Column string `json:"column"` // fully qualified
	Role   string `json:"role"`
}

// Clarification is a question the caller should resolve before executing.
type Clarification struct {
	Question   string `json:"question"`
	ReasonCode string `json:"reason_code"`
	Blocking   bool   `json:"blocking"`
}

// PlanResult is the structured planning artifact of plan_query_for_intent.
type PlanResult struct {
	Request           string              `json:"request"`
	RelevantTables    []RankedTable       `json:"relevant_tables"`
	MainTable         string              `json:"main_table,omitempty"`
	JoinExamples      []string            `json:"join_examples,omitempty"`
	JoinPlan          []JoinStep          `json:"join_plan"`
	KeyColumns        map[string][]string `json:"key_columns,omitempty"`
	GroupByCandidates []string            `json:"group_by_candidates,omitempty"`
	FilterCandidates  []FilterCandidate   `json:"filter_candidates,omitempty"`
	SelectedColumns   []SelectedColumn    `json:"selected_columns,omitempty"`
	Clarifications    []Clarification     `json:"clarifications"`
	Assumptions       []string            `json:"assumptions,omitempty"`
	Confidence        float64             `json:"confidence"`
	DraftSQL          string              `json:"draft_sql,omitempty"`
}

// ResultColumn is a typed column descriptor in an execute result.
type ResultColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Execute statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ExecuteResult is the structured execution artifact of execute_query.
type ExecuteResult struct {
	SQL        string           `json:"sql"`
	Notes      []string         `json:"notes,omitempty"`
	Columns    []ResultColumn   `json:"columns,omitempty"`
	Rows       []map[string]any `json:"rows,omitempty"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated"`
	Status     string           `json:"status"`
	Error      *ErrorInfo       `json:"error,omitempty"`
	NextAction string           `json:"next_action"`
}
