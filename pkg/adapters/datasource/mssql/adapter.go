// Package mssql implements the datasource adapter for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

func init() {
	datasource.Register(datasource.DialectTSQL, func(ctx context.Context, databaseURL string, logger *zap.Logger) (datasource.Adapter, error) {
		return NewAdapter(ctx, databaseURL, logger)
	})
}

// Adapter provides SQL Server connectivity for reflection, sampling, and
// guarded execution.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a connection using SQL authentication from the URL.
func NewAdapter(ctx context.Context, databaseURL string, logger *zap.Logger) (*Adapter, error) {
	// The driver accepts sqlserver:// URLs directly; normalize the mssql://
	// alias.
	connStr := strings.Replace(databaseURL, "mssql://", "sqlserver://", 1)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Adapter{
		db:     db,
		logger: logger.Named("mssql-adapter"),
	}, nil
}

// Dialect returns the adapter's SQL dialect name.
func (a *Adapter) Dialect() string {
	return datasource.DialectTSQL
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func qualifiedTableName(schemaName, tableName string) string {
	quote := func(s string) string {
		return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
	}
	if schemaName == "" {
		return quote(tableName)
	}
	return quote(schemaName) + "." + quote(tableName)
}

// Reflect enumerates user tables via INFORMATION_SCHEMA with sys.partitions
// row estimates.
func (a *Adapter) Reflect(ctx context.Context, opts datasource.ReflectOptions) (*datasource.RawSchema, error) {
	raw := &datasource.RawSchema{Dialect: a.Dialect()}

	rows, err := a.db.QueryContext(ctx, `
		SELECT t.TABLE_SCHEMA, t.TABLE_NAME, COALESCE(SUM(p.rows), 0)
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.objects o
		  ON o.name = t.TABLE_NAME AND SCHEMA_NAME(o.schema_id) = t.TABLE_SCHEMA
		LEFT JOIN sys.partitions p
		  ON p.object_id = o.object_id AND p.index_id IN (0, 1)
		WHERE t.TABLE_TYPE = 'BASE TABLE'
		GROUP BY t.TABLE_SCHEMA, t.TABLE_NAME
		ORDER BY t.TABLE_SCHEMA, t.TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	type tableRef struct {
		schema   string
		name     string
		estimate int64
	}
	var refs []tableRef
	seenSchemas := make(map[string]bool)
	for rows.Next() {
		var r tableRef
		if err := rows.Scan(&r.schema, &r.name, &r.estimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		if datasource.SchemaExcluded(a.Dialect(), r.schema, opts) {
			continue
		}
		if !seenSchemas[r.schema] {
			seenSchemas[r.schema] = true
			raw.Schemas = append(raw.Schemas, r.schema)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	if opts.MaxTables > 0 && len(refs) > opts.MaxTables {
		refs = refs[:opts.MaxTables]
	}

	for _, ref := range refs {
		tbl, err := a.reflectTable(ctx, ref.schema, ref.name)
		if err != nil {
			a.logger.Warn("Skipping table that failed reflection",
				zap.String("schema", ref.schema),
				zap.String("table", ref.name),
				zap.Error(err))
			raw.Warnings = append(raw.Warnings,
				fmt.Sprintf("%s.%s: %v", ref.schema, ref.name, err))
			continue
		}
		tbl.RowEstimate = ref.estimate
		raw.Tables = append(raw.Tables, *tbl)
	}

	if len(raw.Tables) == 0 && len(refs) > 0 {
		return nil, fmt.Errorf("%w: all %d tables failed", apperrors.ErrReflection, len(refs))
	}
	return raw, nil
}

func (a *Adapter) reflectTable(ctx context.Context, schemaName, tableName string) (*datasource.RawTable, error) {
	tbl := &datasource.RawTable{Schema: schemaName, Name: tableName}

	colRows, err := a.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE,
		       CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
		       ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var c datasource.RawColumn
		var nullable int
		if err := colRows.Scan(&c.Name, &c.VendorType, &nullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.Nullable = nullable == 1
		tbl.Columns = append(tbl.Columns, c)
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(tbl.Columns) == 0 {
		return nil, fmt.Errorf("no columns visible")
	}

	pkRows, err := a.db.QueryContext(ctx, `
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		 AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		  AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
		ORDER BY kcu.ORDINAL_POSITION`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list primary key: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		tbl.PrimaryKey = append(tbl.PrimaryKey, col)
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key: %w", err)
	}

	fkRows, err := a.db.QueryContext(ctx, `
		SELECT pc.name, SCHEMA_NAME(rt.schema_id), rt.name, rc.name
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables st ON st.object_id = fkc.parent_object_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE SCHEMA_NAME(st.schema_id) = @p1 AND st.name = @p2`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var fk datasource.RawForeignKey
		if err := fkRows.Scan(&fk.LocalColumn, &fk.RemoteSchema, &fk.RemoteTable, &fk.RemoteColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		tbl.ForeignKeys = append(tbl.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return tbl, nil
}

// SampleRows draws a bounded sample using TABLESAMPLE with a TOP fallback
// for small tables.
func (a *Adapter) SampleRows(ctx context.Context, schemaName, tableName string, limit int) (*datasource.QueryResult, error) {
	if limit <= 0 {
		limit = datasource.DefaultSampleLimit
	}
	qualified := qualifiedTableName(schemaName, tableName)

	sampled := fmt.Sprintf("SELECT TOP (%d) * FROM %s TABLESAMPLE (5 PERCENT)", limit, qualified)
	if result, err := a.runQuery(ctx, sampled, limit); err == nil && result.RowCount > 0 {
		return result, nil
	}

	scan := fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, qualified)
	return a.runQuery(ctx, scan, limit)
}

// ExecuteQuery runs a query fetching at most limit rows via a TOP wrapper.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	queryToRun := sqlQuery
	if limit > 0 {
		if limit > datasource.MaxQueryLimit {
			limit = datasource.MaxQueryLimit
		}
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, sqlQuery)
	}
	return a.runQuery(ctx, queryToRun, limit)
}

func (a *Adapter) runQuery(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	rows, err := a.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return datasource.ScanRows(rows, limit)
}

var _ datasource.Adapter = (*Adapter)(nil)
