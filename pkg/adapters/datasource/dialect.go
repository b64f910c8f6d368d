package datasource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

// Dialect names served by adapters. These match the SQL-AST layer's dialect
// set where the two overlap.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
	DialectTSQL     = "tsql"
)

var schemeDialects = map[string]string{
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"mysql":      DialectMySQL,
	"sqlite":     DialectSQLite,
	"file":       DialectSQLite,
	"sqlserver":  DialectTSQL,
	"mssql":      DialectTSQL,
}

// DetectDialect maps a connection URL's scheme to a dialect name.
func DetectDialect(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if d, ok := schemeDialects[scheme]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrUnknownDialect, scheme)
}

// DefaultExcludedSchemas returns the vendor system schemas dropped during
// reflection for a dialect.
func DefaultExcludedSchemas(dialect string) []string {
	switch dialect {
	case DialectPostgres:
		return []string{"information_schema", "pg_catalog", "pg_toast"}
	case DialectMySQL:
		return []string{"information_schema", "mysql", "performance_schema", "sys"}
	case DialectTSQL:
		return []string{"INFORMATION_SCHEMA", "sys", "guest", "db_accessadmin",
			"db_backupoperator", "db_datareader", "db_datawriter", "db_ddladmin",
			"db_denydatareader", "db_denydatawriter", "db_owner", "db_securityadmin"}
	default:
		return nil
	}
}

// SchemaExcluded applies include/exclude filters plus the dialect defaults.
func SchemaExcluded(dialect, schemaName string, opts ReflectOptions) bool {
	if len(opts.IncludeSchemas) > 0 {
		included := false
		for _, s := range opts.IncludeSchemas {
			if strings.EqualFold(s, schemaName) {
				included = true
				break
			}
		}
		if !included {
			return true
		}
	}
	for _, s := range opts.ExcludeSchemas {
		if strings.EqualFold(s, schemaName) {
			return true
		}
	}
	for _, s := range DefaultExcludedSchemas(dialect) {
		if strings.EqualFold(s, schemaName) {
			return true
		}
	}
	return false
}
