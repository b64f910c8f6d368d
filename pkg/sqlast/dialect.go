// Package sqlast provides a lightweight SQL analysis layer: statement
// normalization, a tolerant parser for metadata extraction, dialect
// transpilation, and error assistance against a schema card.
package sqlast

import (
	"fmt"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

// Supported dialects.
const (
	DialectGeneric   = "generic"
	DialectPostgres  = "postgres"
	DialectMySQL     = "mysql"
	DialectSQLite    = "sqlite"
	DialectTSQL      = "tsql"
	DialectOracle    = "oracle"
	DialectSnowflake = "snowflake"
	DialectBigQuery  = "bigquery"
)

var knownDialects = map[string]struct{}{
	DialectGeneric: {}, DialectPostgres: {}, DialectMySQL: {},
	DialectSQLite: {}, DialectTSQL: {}, DialectOracle: {},
	DialectSnowflake: {}, DialectBigQuery: {},
}

// dialectAliases maps common vendor names onto the canonical dialect.
var dialectAliases = map[string]string{
	"postgresql": DialectPostgres,
	"pg":         DialectPostgres,
	"mssql":      DialectTSQL,
	"sqlserver":  DialectTSQL,
	"sqlite3":    DialectSQLite,
}

// NormalizeDialect canonicalizes a dialect name; empty means generic.
func NormalizeDialect(name string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(name))
	if d == "" {
		return DialectGeneric, nil
	}
	if canonical, ok := dialectAliases[d]; ok {
		return canonical, nil
	}
	if _, ok := knownDialects[d]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownDialect, name)
	}
	return d, nil
}

// usesLimit reports whether the dialect paginates with LIMIT.
func usesLimit(dialect string) bool {
	return dialect != DialectTSQL
}
