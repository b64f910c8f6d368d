package models

// Error categories surfaced in results.
const (
	CategoryReadiness  = "readiness"
	CategoryInput      = "input"
	CategorySafety     = "safety"
	CategoryParse      = "parse"
	CategoryRuntime    = "runtime"
	CategoryTruncation = "truncation"
	CategoryCoverage   = "coverage"
)

// Error codes. Coverage codes double as clarification reason codes.
const (
	CodeServiceNotReady = "SERVICE_NOT_READY"

	CodeInvalidTableKey = "INVALID_TABLE_KEY"
	CodeUnknownDialect  = "UNKNOWN_DIALECT"

	CodeNonSelectStatement = "NON_SELECT_STATEMENT"
	CodeMultiStatement     = "MULTI_STATEMENT"

	CodeParseError           = "PARSE_ERROR"
	CodeUnresolvedIdentifier = "UNRESOLVED_IDENTIFIER"

	CodeTypeMismatch = "TYPE_MISMATCH"
	CodeDriverError  = "DRIVER_ERROR"
	CodeTimeout      = "TIMEOUT"

	CodeResultTruncated = "RESULT_TRUNCATED"

	CodeAmbiguousIntent     = "AMBIGUOUS_INTENT"
	CodeAmbiguousTimeRange  = "AMBIGUOUS_TIME_RANGE"
	CodeNoDateDimension     = "NO_DATE_DIMENSION"
	CodeNoMetric            = "NO_METRIC"
	CodeMultipleDateColumns = "MULTIPLE_DATE_COLUMNS"
	CodeUnjoinableSubset    = "UNJOINABLE_SUBSET"
	CodeNoTables            = "NO_TABLES"
)

// Next-action advisories attached to execute results.
const (
	NextActionNone         = "none"
	NextActionRefinePlan   = "refine_plan"
	NextActionPaginate     = "paginate"
	NextActionInspectTable = "inspect_table"
)

// ErrorInfo is the structured error value carried inside results. Failure
// modes visible to callers are values, never panics.
type ErrorInfo struct {
	Category    string   `json:"category"`
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Hints       []string `json:"hints,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

var codeCategories = map[string]string{
	CodeServiceNotReady:      CategoryReadiness,
	CodeInvalidTableKey:      CategoryInput,
	CodeUnknownDialect:       CategoryInput,
	CodeNonSelectStatement:   CategorySafety,
	CodeMultiStatement:       CategorySafety,
	CodeParseError:           CategoryParse,
	CodeUnresolvedIdentifier: CategoryParse,
	CodeTypeMismatch:         CategoryRuntime,
	CodeDriverError:          CategoryRuntime,
	CodeTimeout:              CategoryRuntime,
	CodeResultTruncated:      CategoryTruncation,
	CodeAmbiguousIntent:      CategoryCoverage,
	CodeAmbiguousTimeRange:   CategoryCoverage,
	CodeNoDateDimension:      CategoryCoverage,
	CodeNoMetric:             CategoryCoverage,
	CodeMultipleDateColumns:  CategoryCoverage,
	CodeUnjoinableSubset:     CategoryCoverage,
	CodeNoTables:             CategoryCoverage,
}

// Safety violations are the only unrecoverable codes: rewriting the same
// statement cannot make it acceptable.
var unrecoverableCodes = map[string]struct{}{
	CodeNonSelectStatement: {},
	CodeMultiStatement:     {},
}

// NewError builds an ErrorInfo with category and recoverability derived from
// the code.
func NewError(code, message string, hints ...string) *ErrorInfo {
	category, ok := codeCategories[code]
	if !ok {
		category = CategoryRuntime
	}
	_, unrecoverable := unrecoverableCodes[code]
	return &ErrorInfo{
		Category:    category,
		Code:        code,
		Message:     message,
		Hints:       hints,
		Recoverable: !unrecoverable,
	}
}
