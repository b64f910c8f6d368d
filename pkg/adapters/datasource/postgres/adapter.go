// Package postgres implements the datasource adapter for PostgreSQL on top
// of pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DialectPostgres, func(ctx context.Context, databaseURL string, logger *zap.Logger) (datasource.Adapter, error) {
		return NewAdapter(ctx, databaseURL, logger)
	})
}

// Adapter provides PostgreSQL connectivity for reflection, sampling, and
// guarded execution.
type Adapter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAdapter connects a pgx pool to the given URL.
func NewAdapter(ctx context.Context, databaseURL string, logger *zap.Logger) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Adapter{
		pool:   pool,
		logger: logger.Named("postgres-adapter"),
	}, nil
}

// Dialect returns the adapter's SQL dialect name.
func (a *Adapter) Dialect() string {
	return datasource.DialectPostgres
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var result int
	if err := a.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// qualifiedTableName returns a properly quoted table reference. If schemaName
// is empty, returns just the quoted table name.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

var _ datasource.Adapter = (*Adapter)(nil)
