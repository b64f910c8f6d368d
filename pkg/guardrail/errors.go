// Package guardrail executes caller SQL behind an ordered safety pipeline:
// SELECT-only enforcement, dialect transpilation, validation, bounded
// execution, and result shaping.
package guardrail

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/schemalens/schemalens-engine/pkg/models"
)

// classifyDriverError maps a driver failure onto the error taxonomy.
func classifyDriverError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.CodeTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1054, 1146: // unknown column, table doesn't exist
			return models.CodeUnresolvedIdentifier
		case 1064:
			return models.CodeParseError
		case 1264, 1366: // out of range, incorrect value
			return models.CodeTypeMismatch
		}
		return models.CodeDriverError
	}

	return classifyMessage(err.Error())
}

// classifySQLState maps SQLSTATE classes: 42 covers syntax and unresolved
// names, 22 covers data exceptions, 23 constraint violations.
func classifySQLState(code string) string {
	switch code {
	case "42703", "42P01", "42704": // undefined column / table / object
		return models.CodeUnresolvedIdentifier
	case "57014": // query canceled
		return models.CodeTimeout
	}
	if len(code) >= 2 {
		switch code[:2] {
		case "42":
			return models.CodeParseError
		case "22":
			return models.CodeTypeMismatch
		case "23":
			return models.CodeDriverError
		}
	}
	return models.CodeDriverError
}

// classifyMessage covers drivers without typed errors (sqlite, mssql).
func classifyMessage(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "no such column"),
		strings.Contains(lower, "no such table"),
		strings.Contains(lower, "invalid column name"),
		strings.Contains(lower, "invalid object name"),
		strings.Contains(lower, "does not exist"):
		return models.CodeUnresolvedIdentifier
	case strings.Contains(lower, "syntax error"),
		strings.Contains(lower, "incorrect syntax"):
		return models.CodeParseError
	case strings.Contains(lower, "context deadline exceeded"),
		strings.Contains(lower, "timeout"):
		return models.CodeTimeout
	case strings.Contains(lower, "type mismatch"),
		strings.Contains(lower, "cannot convert"),
		strings.Contains(lower, "datatype mismatch"):
		return models.CodeTypeMismatch
	}
	return models.CodeDriverError
}
