// Package schema defines the schema card: an immutable, fingerprinted
// snapshot of reflected and derived database metadata.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// CardFormatVersion identifies the serialized card layout. Bump when the
// JSON shape changes incompatibly.
const CardFormatVersion = 1

// Role is the semantic classification of a column.
type Role string

const (
	RoleKey      Role = "key"
	RoleID       Role = "id"
	RoleDate     Role = "date"
	RoleMetric   Role = "metric"
	RoleCategory Role = "category"
	RoleText     Role = "text"
)

// Archetype is the dimensional role assigned to a table.
type Archetype string

const (
	ArchetypeFact        Archetype = "fact"
	ArchetypeDimension   Archetype = "dimension"
	ArchetypeBridge      Archetype = "bridge"
	ArchetypeReference   Archetype = "reference"
	ArchetypeOperational Archetype = "operational"
)

// Sampling state for a table profile.
const (
	SampledFull    = "full"
	SampledPartial = "partial"
	SampledNone    = "none"
)

// ColumnProfile carries reflected and sample-derived facts about one column.
type ColumnProfile struct {
	Name         string   `json:"name"`
	VendorType   string   `json:"vendor_type"`
	Nullable     bool     `json:"nullable"`
	IsPrimaryKey bool     `json:"is_primary_key"`
	IsForeignKey bool     `json:"is_foreign_key"`

	// FK target, set when IsForeignKey is true.
	FKTargetTable  string `json:"fk_target_table,omitempty"`
	FKTargetColumn string `json:"fk_target_column,omitempty"`

	NullRate      float64  `json:"null_rate"`
	DistinctRatio float64  `json:"distinct_ratio"`
	Patterns      []string `json:"patterns,omitempty"`
	SemanticTags  []string `json:"semantic_tags,omitempty"`
	Role          Role     `json:"role"`

	// Enumerated distinct values for low-cardinality columns, capped by the
	// value constraint threshold.
	Values []string `json:"values,omitempty"`

	// Sampled (min, max) for numeric and date columns, rendered as strings.
	RangeMin *string `json:"range_min,omitempty"`
	RangeMax *string `json:"range_max,omitempty"`
}

// FKEdge is an outgoing foreign key from a table.
type FKEdge struct {
	LocalColumn    string `json:"local_column"`
	RemoteTableKey string `json:"remote_table_key"`
	RemoteColumn   string `json:"remote_column"`
}

// TableProfile carries everything the engine knows about one table.
type TableProfile struct {
	Key    string `json:"key"`
	Schema string `json:"schema"`
	Name   string `json:"name"`

	Columns     []ColumnProfile `json:"columns"`
	PrimaryKey  []string        `json:"primary_key,omitempty"`
	ForeignKeys []FKEdge        `json:"foreign_keys,omitempty"`

	Archetype     Archetype `json:"archetype"`
	Summary       string    `json:"summary,omitempty"`
	SubjectAreaID string    `json:"subject_area_id,omitempty"`
	Centrality    float64   `json:"centrality"`

	MetricCount int  `json:"metric_count"`
	DateCount   int  `json:"date_count"`
	IsArchive   bool `json:"is_archive,omitempty"`
	IsAuditLike bool `json:"is_audit_like,omitempty"`

	RowEstimate int64  `json:"row_estimate"`
	Sampled     string `json:"sampled"`
}

// Column returns the named column profile, or nil.
func (t *TableProfile) Column(name string) *ColumnProfile {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnsByRole returns columns whose role is in the given set, in column order.
func (t *TableProfile) ColumnsByRole(roles ...Role) []ColumnProfile {
	want := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		want[r] = struct{}{}
	}
	var out []ColumnProfile
	for _, c := range t.Columns {
		if _, ok := want[c.Role]; ok {
			out = append(out, c)
		}
	}
	return out
}

// SubjectArea is a labeled community of tables from the FK graph.
type SubjectArea struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Summary   string   `json:"summary,omitempty"`
	TableKeys []string `json:"table_keys"`
}

// Edge is a resolved FK edge at the card level.
type Edge struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// BuildMeta records how the card was produced.
type BuildMeta struct {
	Version           string `json:"version"`
	EmbeddingsEnabled bool   `json:"embeddings_enabled"`
	FastStart         bool   `json:"fast_start"`
	PartialReflection bool   `json:"partial_reflection,omitempty"`
}

// Card is the root snapshot entity. Once installed it is never mutated;
// rebuilds install a new card.
type Card struct {
	FormatVersion int    `json:"format_version"`
	Dialect       string `json:"dialect"`

	// Fingerprint identifies the connection target (credentials excluded).
	Fingerprint string `json:"fingerprint"`

	Schemas      []string                 `json:"schemas"`
	SubjectAreas map[string]*SubjectArea  `json:"subject_areas"`
	Tables       map[string]*TableProfile `json:"tables"`
	Edges        []Edge                   `json:"edges"`

	BuiltAt        time.Time `json:"built_at"`
	ReflectionHash string    `json:"reflection_hash"`
	BuildMeta      BuildMeta `json:"build_meta"`
}

// TableKey joins schema and table name into the canonical "<schema>.<name>".
func TableKey(schemaName, tableName string) string {
	if schemaName == "" {
		return tableName
	}
	return schemaName + "." + tableName
}

// SplitTableKey splits "<schema>.<name>" back into its parts. A key without
// a dot is treated as a bare table name in the default schema.
func SplitTableKey(key string) (schemaName, tableName string) {
	if i := strings.Index(key, "."); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// Table resolves a table key case-insensitively.
func (c *Card) Table(key string) *TableProfile {
	if t, ok := c.Tables[key]; ok {
		return t
	}
	for k, t := range c.Tables {
		if strings.EqualFold(k, key) {
			return t
		}
	}
	return nil
}

// TableCount returns the number of tables in the card.
func (c *Card) TableCount() int {
	return len(c.Tables)
}

// Validate checks the card's structural invariants: every FK target resolves
// within the card and every table belongs to exactly one subject area.
func (c *Card) Validate() error {
	for key, tbl := range c.Tables {
		for _, fk := range tbl.ForeignKeys {
			target, ok := c.Tables[fk.RemoteTableKey]
			if !ok {
				return fmt.Errorf("table %s: fk target %s not in card", key, fk.RemoteTableKey)
			}
			if target.Column(fk.RemoteColumn) == nil {
				return fmt.Errorf("table %s: fk target column %s.%s not in card",
					key, fk.RemoteTableKey, fk.RemoteColumn)
			}
		}
	}

	seen := make(map[string]string, len(c.Tables))
	for id, area := range c.SubjectAreas {
		for _, key := range area.TableKeys {
			if _, ok := c.Tables[key]; !ok {
				return fmt.Errorf("subject area %s references unknown table %s", id, key)
			}
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("table %s in subject areas %s and %s", key, prev, id)
			}
			seen[key] = id
		}
	}
	for key := range c.Tables {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("table %s belongs to no subject area", key)
		}
	}
	return nil
}
