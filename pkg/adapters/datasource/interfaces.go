// Package datasource defines the driver abstraction the engine reflects,
// samples, and executes through, plus the adapter registry.
package datasource

import (
	"context"
)

const (
	// MaxQueryLimit caps the rows any single execution may fetch, regardless
	// of the configured row limit.
	MaxQueryLimit = 1000

	// DefaultSampleLimit is the fallback sample size when none is configured.
	DefaultSampleLimit = 100
)

// ReflectOptions narrow the scope of schema reflection.
type ReflectOptions struct {
	IncludeSchemas []string
	ExcludeSchemas []string
	// MaxTables caps the number of reflected tables; zero means no cap.
	MaxTables int
}

// SchemaDiscoverer enumerates schemas, tables, columns, keys, and FKs.
// Individual tables that fail to reflect are skipped and recorded as
// warnings; reflection fails only when zero tables are reflectable.
type SchemaDiscoverer interface {
	Reflect(ctx context.Context, opts ReflectOptions) (*RawSchema, error)
}

// RowSampler draws a bounded row sample from one table. Implementations use
// the dialect's native sample operator when available and fall back to a
// deterministic limited scan.
type RowSampler interface {
	SampleRows(ctx context.Context, schemaName, tableName string, limit int) (*QueryResult, error)
}

// QueryExecutor runs a read-only query, fetching at most limit rows.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, limit int) (*QueryResult, error)
}

// ConnectionTester verifies the target is reachable with valid credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// Adapter is the full driver surface the engine needs from one database.
type Adapter interface {
	SchemaDiscoverer
	RowSampler
	QueryExecutor
	ConnectionTester

	// Dialect returns the SQL dialect name served by this adapter.
	Dialect() string

	Close() error
}
