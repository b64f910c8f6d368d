// Package sqlite implements the datasource adapter for SQLite using the
// cgo-free modernc driver. It also backs the engine's integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

// schemaName is the logical schema SQLite tables are keyed under.
const schemaName = "main"

func init() {
	datasource.Register(datasource.DialectSQLite, func(ctx context.Context, databaseURL string, logger *zap.Logger) (datasource.Adapter, error) {
		return NewAdapter(ctx, databaseURL, logger)
	})
}

// Adapter provides SQLite connectivity for reflection, sampling, and guarded
// execution.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens the database file named by the URL. ":memory:" and
// shared-cache paths pass through untouched.
func NewAdapter(ctx context.Context, databaseURL string, logger *zap.Logger) (*Adapter, error) {
	path := pathFromURL(databaseURL)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Adapter{
		db:     db,
		logger: logger.Named("sqlite-adapter"),
	}, nil
}

func pathFromURL(databaseURL string) string {
	path := databaseURL
	for _, prefix := range []string{"sqlite://", "file://"} {
		if strings.HasPrefix(path, prefix) {
			path = strings.TrimPrefix(path, prefix)
			break
		}
	}
	if path == "" {
		path = ":memory:"
	}
	return path
}

// Dialect returns the adapter's SQL dialect name.
func (a *Adapter) Dialect() string {
	return datasource.DialectSQLite
}

// TestConnection verifies the database file is readable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Reflect enumerates tables from sqlite_master and describes each with the
// table_info and foreign_key_list pragmas.
func (a *Adapter) Reflect(ctx context.Context, opts datasource.ReflectOptions) (*datasource.RawSchema, error) {
	raw := &datasource.RawSchema{Dialect: a.Dialect()}
	if datasource.SchemaExcluded(a.Dialect(), schemaName, opts) {
		return raw, nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	if opts.MaxTables > 0 && len(names) > opts.MaxTables {
		names = names[:opts.MaxTables]
	}
	if len(names) > 0 {
		raw.Schemas = []string{schemaName}
	}

	for _, name := range names {
		tbl, err := a.reflectTable(ctx, name)
		if err != nil {
			a.logger.Warn("Skipping table that failed reflection",
				zap.String("table", name), zap.Error(err))
			raw.Warnings = append(raw.Warnings, fmt.Sprintf("%s.%s: %v", schemaName, name, err))
			continue
		}
		raw.Tables = append(raw.Tables, *tbl)
	}

	if len(raw.Tables) == 0 && len(names) > 0 {
		return nil, fmt.Errorf("%w: all %d tables failed", apperrors.ErrReflection, len(names))
	}
	return raw, nil
}

func (a *Adapter) reflectTable(ctx context.Context, tableName string) (*datasource.RawTable, error) {
	tbl := &datasource.RawTable{Schema: schemaName, Name: tableName}

	colRows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, fmt.Errorf("table_info pragma: %w", err)
	}
	defer colRows.Close()

	type pkCol struct {
		name  string
		order int
	}
	var pkCols []pkCol
	ordinal := 0
	for colRows.Next() {
		var (
			cid      int
			name     string
			colType  sql.NullString
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := colRows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		ordinal++
		vendorType := "text"
		if colType.Valid && colType.String != "" {
			vendorType = strings.ToLower(colType.String)
		}
		tbl.Columns = append(tbl.Columns, datasource.RawColumn{
			Name:            name,
			VendorType:      vendorType,
			Nullable:        notNull == 0 && pk == 0,
			OrdinalPosition: ordinal,
		})
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, order: pk})
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info: %w", err)
	}
	if len(tbl.Columns) == 0 {
		return nil, fmt.Errorf("no columns visible")
	}

	for order := 1; order <= len(pkCols); order++ {
		for _, pc := range pkCols {
			if pc.order == order {
				tbl.PrimaryKey = append(tbl.PrimaryKey, pc.name)
			}
		}
	}

	fkRows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, fmt.Errorf("foreign_key_list pragma: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var (
			id, seq                  int
			refTable, from           string
			to                       sql.NullString
			onUpdate, onDelete, match string
		)
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("scan foreign_key_list row: %w", err)
		}
		remoteColumn := "id"
		if to.Valid && to.String != "" {
			remoteColumn = to.String
		}
		tbl.ForeignKeys = append(tbl.ForeignKeys, datasource.RawForeignKey{
			LocalColumn:  from,
			RemoteSchema: schemaName,
			RemoteTable:  refTable,
			RemoteColumn: remoteColumn,
		})
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign_key_list: %w", err)
	}

	var count int64
	if err := a.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tableName))).Scan(&count); err == nil {
		tbl.RowEstimate = count
	}

	return tbl, nil
}

// SampleRows draws a deterministic limited scan.
func (a *Adapter) SampleRows(ctx context.Context, schema, tableName string, limit int) (*datasource.QueryResult, error) {
	if limit <= 0 {
		limit = datasource.DefaultSampleLimit
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(tableName), limit)
	return a.runQuery(ctx, query, limit)
}

// ExecuteQuery runs a query fetching at most limit rows.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	queryToRun := sqlQuery
	if limit > 0 {
		if limit > datasource.MaxQueryLimit {
			limit = datasource.MaxQueryLimit
		}
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
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
