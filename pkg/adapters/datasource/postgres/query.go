package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
)

// SampleRows draws a bounded sample using TABLESAMPLE SYSTEM; small tables
// where the sampled pages come back empty fall back to a plain limited scan.
func (a *Adapter) SampleRows(ctx context.Context, schemaName, tableName string, limit int) (*datasource.QueryResult, error) {
	if limit <= 0 {
		limit = datasource.DefaultSampleLimit
	}
	qualified := qualifiedTableName(schemaName, tableName)

	sampled := fmt.Sprintf("SELECT * FROM %s TABLESAMPLE SYSTEM (5) LIMIT %d", qualified, limit)
	result, err := a.runQuery(ctx, sampled, limit)
	if err == nil && result.RowCount > 0 {
		return result, nil
	}

	scan := fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualified, limit)
	return a.runQuery(ctx, scan, limit)
}

// ExecuteQuery runs a query inside a read-only transaction, fetching at most
// limit rows. The limit is applied by wrapping rather than rewriting so the
// caller's statement stays intact.
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
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: string(fd.Name),
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if limit > 0 && len(resultRows) >= limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to readable names.
// Unknown OIDs fall back to the numeric form.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "boolean"
	case 17:
		return "bytea"
	case 20:
		return "bigint"
	case 21:
		return "smallint"
	case 23:
		return "integer"
	case 25:
		return "text"
	case 114:
		return "json"
	case 700:
		return "real"
	case 701:
		return "double precision"
	case 1042:
		return "character"
	case 1043:
		return "character varying"
	case 1082:
		return "date"
	case 1114:
		return "timestamp"
	case 1184:
		return "timestamptz"
	case 1186:
		return "interval"
	case 1700:
		return "numeric"
	case 2950:
		return "uuid"
	case 3802:
		return "jsonb"
	default:
		return fmt.Sprintf("oid:%d", oid)
	}
}
