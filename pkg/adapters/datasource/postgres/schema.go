package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

// Reflect enumerates user tables, columns, primary keys, and foreign keys
// via information_schema plus pg_class row estimates. Tables that fail to
// reflect are skipped with a warning; only zero reflectable tables is fatal.
func (a *Adapter) Reflect(ctx context.Context, opts datasource.ReflectOptions) (*datasource.RawSchema, error) {
	raw := &datasource.RawSchema{Dialect: a.Dialect()}

	rows, err := a.pool.Query(ctx, `
		SELECT t.table_schema, t.table_name, COALESCE(c.reltuples::bigint, 0)
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		ORDER BY t.table_schema, t.table_name`)
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

	colRows, err := a.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var c datasource.RawColumn
		if err := colRows.Scan(&c.Name, &c.VendorType, &c.Nullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		tbl.Columns = append(tbl.Columns, c)
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(tbl.Columns) == 0 {
		return nil, fmt.Errorf("no columns visible")
	}

	pkRows, err := a.pool.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schemaName, tableName)
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

	fkRows, err := a.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_schema, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2`, schemaName, tableName)
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
