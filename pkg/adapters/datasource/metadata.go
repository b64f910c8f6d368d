package datasource

// RawSchema is the output of reflection, before any profiling.
type RawSchema struct {
	Dialect string
	Schemas []string
	Tables  []RawTable
	// Warnings records tables skipped during partial reflection.
	Warnings []string
}

// RawTable is one reflected table.
type RawTable struct {
	Schema      string
	Name        string
	Columns     []RawColumn
	PrimaryKey  []string
	ForeignKeys []RawForeignKey
	RowEstimate int64
}

// RawColumn is one reflected column with its vendor type preserved verbatim.
type RawColumn struct {
	Name            string
	VendorType      string
	Nullable        bool
	OrdinalPosition int
}

// RawForeignKey is one reflected outgoing foreign key.
type RawForeignKey struct {
	LocalColumn  string
	RemoteSchema string
	RemoteTable  string
	RemoteColumn string
}

// ColumnInfo describes a result column with its vendor type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds rows fetched by an executor or sampler.
type QueryResult struct {
	Columns  []ColumnInfo
	Rows     []map[string]any
	RowCount int
}
