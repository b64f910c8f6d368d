package guardrail

import (
	"context"
	"errors"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
	"github.com/schemalens/schemalens-engine/pkg/logging"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/sqlast"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

// Config bounds execution.
type Config struct {
	RowLimit     int
	MaxCellChars int
}

// Runner is the execution guardrail. Every statement passes the same ordered
// steps; the first failure wins and no later step runs.
type Runner struct {
	executor datasource.QueryExecutor
	ast      *sqlast.Service
	dialect  string
	cardFn   func() *schema.Card
	cfg      Config
	logger   *zap.Logger
}

// New builds a runner bound to one executor and dialect. cardFn supplies the
// current schema card for error assistance; it may return nil before the
// first build completes.
func New(executor datasource.QueryExecutor, ast *sqlast.Service, dialect string,
	cardFn func() *schema.Card, cfg Config, logger *zap.Logger) *Runner {

	if cfg.RowLimit <= 0 || cfg.RowLimit > datasource.MaxQueryLimit {
		cfg.RowLimit = datasource.MaxQueryLimit
	}
	return &Runner{
		executor: executor,
		ast:      ast,
		dialect:  dialect,
		cardFn:   cardFn,
		cfg:      cfg,
		logger:   logger.Named("guardrail"),
	}
}

// Execute runs one statement through the pipeline and always returns a
// structured result; failures are values on the result, never panics.
func (r *Runner) Execute(ctx context.Context, sql string) *models.ExecuteResult {
	result := &models.ExecuteResult{
		SQL:        sql,
		Status:     models.StatusOK,
		NextAction: models.NextActionNone,
	}

	// Step 1: single SELECT only. Nothing else ever reaches the driver.
	normalized, err := sqlast.Normalize(sql)
	if err != nil {
		if errors.Is(err, apperrors.ErrMultipleStatements) {
			return r.fail(result, models.CodeMultiStatement,
				"multiple statements are not allowed; submit one SELECT")
		}
		return r.fail(result, models.CodeParseError, err.Error())
	}
	stmt, err := r.ast.Parse(normalized, r.dialect)
	if err != nil {
		return r.fail(result, models.CodeParseError, err.Error())
	}
	if !stmt.IsSelect {
		return r.fail(result, models.CodeNonSelectStatement,
			fmt.Sprintf("only SELECT statements are executed, got %s", stmt.Kind))
	}
	if injection, _ := libinjection.IsSQLi(normalized); injection {
		result.Notes = append(result.Notes, "statement matches a known injection pattern")
	}

	// Step 2: transpile to the active dialect.
	transpiled, err := r.ast.AutoTranspile(normalized, r.dialect)
	if err != nil {
		return r.fail(result, models.CodeParseError, err.Error())
	}
	if transpiled != normalized {
		result.Notes = append(result.Notes,
			fmt.Sprintf("statement rewritten for %s", r.dialect))
	}
	result.SQL = transpiled

	// Step 3: validate; notes are advisory.
	report, err := r.ast.Validate(transpiled, r.dialect)
	if err != nil {
		return r.fail(result, models.CodeParseError, err.Error())
	}
	result.Notes = append(result.Notes, report.Notes...)

	// Step 4: execute with a one-row truncation probe.
	queryResult, err := r.executor.ExecuteQuery(ctx, transpiled, r.cfg.RowLimit+1)
	if err != nil {
		return r.driverFail(result, transpiled, err)
	}

	// Steps 5 and 6: truncate and shape.
	r.shape(result, queryResult)

	r.logger.Debug("query executed",
		zap.String("query", logging.SanitizeQuery(transpiled)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated))
	return result
}

// shape applies the row and cell budgets and builds typed column descriptors.
func (r *Runner) shape(result *models.ExecuteResult, qr *datasource.QueryResult) {
	rows := qr.Rows
	if len(rows) > r.cfg.RowLimit {
		rows = rows[:r.cfg.RowLimit]
		result.Truncated = true
		result.NextAction = models.NextActionPaginate
		result.Notes = append(result.Notes,
			fmt.Sprintf("result truncated to %d rows; narrow the query or paginate", r.cfg.RowLimit))
	}

	for _, col := range qr.Columns {
		result.Columns = append(result.Columns, models.ResultColumn{
			Name: col.Name,
			Type: col.Type,
		})
	}

	shaped := make([]map[string]any, len(rows))
	for i, row := range rows {
		out := make(map[string]any, len(row))
		for name, value := range row {
			if s, ok := value.(string); ok {
				cell, cut := textutil.TruncateCell(s, r.cfg.MaxCellChars)
				if cut {
					out[name] = cell
					continue
				}
			}
			out[name] = value
		}
		shaped[i] = out
	}
	result.Rows = shaped
	result.RowCount = len(shaped)
}

// fail finalizes a pipeline rejection before any driver call.
func (r *Runner) fail(result *models.ExecuteResult, code, message string) *models.ExecuteResult {
	result.Status = models.StatusError
	result.Error = models.NewError(code, message)
	result.NextAction = models.NextActionRefinePlan
	return result
}

// driverFail classifies a driver error and attaches assist hints.
func (r *Runner) driverFail(result *models.ExecuteResult, sql string, err error) *models.ExecuteResult {
	code := classifyDriverError(err)
	var card *schema.Card
	if r.cardFn != nil {
		card = r.cardFn()
	}
	hints := r.ast.AssistError(sql, err.Error(), r.dialect, card)

	result.Status = models.StatusError
	result.Error = models.NewError(code, logging.SanitizeError(err), hints...)
	result.NextAction = models.NextActionRefinePlan

	r.logger.Warn("query failed",
		zap.String("query", logging.SanitizeQuery(sql)),
		zap.String("code", code))
	return result
}
