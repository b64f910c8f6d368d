// Package profile derives column roles, patterns, value constraints, and
// semantic tags from reflected structure plus sampled rows.
package profile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

// Config bounds profiling work.
type Config struct {
	SampleRows               int
	ValueConstraintThreshold int
}

// DefaultConfig returns the stock profiling budgets.
func DefaultConfig() Config {
	return Config{SampleRows: 100, ValueConstraintThreshold: 20}
}

var (
	emailRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	urlRe     = regexp.MustCompile(`^https?://\S+$`)
	phoneRe   = regexp.MustCompile(`^\+?[0-9][0-9\-\s().]{6,}$`)
	percentRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?\s?%$`)

	idSuffixRe = regexp.MustCompile(`(?i)(^id$|_id$|_key$|guid|uuid)`)
)

// measureTokens suggest a numeric column is an additive measure.
var measureTokens = map[string]struct{}{
	"amount": {}, "total": {}, "price": {}, "cost": {}, "qty": {},
	"quantity": {}, "revenue": {}, "balance": {}, "count": {}, "value": {},
	"rate": {}, "score": {}, "weight": {}, "discount": {}, "fee": {},
	"tax": {}, "paid": {}, "num": {}, "sum": {}, "duration": {},
}

// ProfileTable builds a table profile from reflected structure and an
// optional row sample. Archetype, centrality, and subject area are filled in
// later by the graph builder.
func ProfileTable(raw datasource.RawTable, sample *datasource.QueryResult, cfg Config) *schema.TableProfile {
	key := schema.TableKey(raw.Schema, raw.Name)
	tbl := &schema.TableProfile{
		Key:         key,
		Schema:      raw.Schema,
		Name:        raw.Name,
		PrimaryKey:  append([]string(nil), raw.PrimaryKey...),
		RowEstimate: raw.RowEstimate,
		IsArchive:   textutil.IsArchiveLabel(raw.Name),
		Sampled:     SampledState(raw, sample, cfg),
	}

	pkSet := make(map[string]struct{}, len(raw.PrimaryKey))
	for _, pk := range raw.PrimaryKey {
		pkSet[strings.ToLower(pk)] = struct{}{}
	}
	fkByColumn := make(map[string]datasource.RawForeignKey, len(raw.ForeignKeys))
	for _, fk := range raw.ForeignKeys {
		fkByColumn[strings.ToLower(fk.LocalColumn)] = fk
		tbl.ForeignKeys = append(tbl.ForeignKeys, schema.FKEdge{
			LocalColumn:    fk.LocalColumn,
			RemoteTableKey: schema.TableKey(fk.RemoteSchema, fk.RemoteTable),
			RemoteColumn:   fk.RemoteColumn,
		})
	}

	for _, rawCol := range raw.Columns {
		col := profileColumn(rawCol, pkSet, fkByColumn, sample, cfg)
		tbl.Columns = append(tbl.Columns, col)
		switch col.Role {
		case schema.RoleMetric:
			tbl.MetricCount++
		case schema.RoleDate:
			tbl.DateCount++
		}
	}
	return tbl
}

// SampledState reports whether the sample covered the table.
func SampledState(raw datasource.RawTable, sample *datasource.QueryResult, cfg Config) string {
	switch {
	case sample == nil || sample.RowCount == 0:
		return schema.SampledNone
	case sample.RowCount < cfg.SampleRows && int64(sample.RowCount) < raw.RowEstimate:
		return schema.SampledPartial
	default:
		return schema.SampledFull
	}
}

func profileColumn(rawCol datasource.RawColumn, pkSet map[string]struct{},
	fkByColumn map[string]datasource.RawForeignKey,
	sample *datasource.QueryResult, cfg Config) schema.ColumnProfile {

	col := schema.ColumnProfile{
		Name:       rawCol.Name,
		VendorType: rawCol.VendorType,
		Nullable:   rawCol.Nullable,
	}
	lower := strings.ToLower(rawCol.Name)
	if _, ok := pkSet[lower]; ok {
		col.IsPrimaryKey = true
	}
	if fk, ok := fkByColumn[lower]; ok {
		col.IsForeignKey = true
		col.FKTargetTable = schema.TableKey(fk.RemoteSchema, fk.RemoteTable)
		col.FKTargetColumn = fk.RemoteColumn
	}

	values := sampledValues(sample, rawCol.Name)
	stats := summarize(values)
	col.NullRate = stats.nullRate
	col.DistinctRatio = stats.distinctRatio
	col.Patterns = stats.patterns
	col.SemanticTags = DetectSemanticTags(stats.strings)

	col.Role = inferRole(col, rawCol, stats, cfg)

	if col.Role == schema.RoleCategory && len(stats.distinct) > 0 &&
		len(stats.distinct) <= cfg.ValueConstraintThreshold {
		col.Values = stats.distinct
	}
	if (isNumericType(rawCol.VendorType) || isTemporalType(rawCol.VendorType)) && stats.min != "" {
		minCopy, maxCopy := stats.min, stats.max
		col.RangeMin = &minCopy
		col.RangeMax = &maxCopy
	}
	return col
}

// inferRole applies the ordered role rules.
func inferRole(col schema.ColumnProfile, rawCol datasource.RawColumn, stats valueStats, cfg Config) schema.Role {
	switch {
	case col.IsPrimaryKey:
		return schema.RoleKey
	case col.IsForeignKey || idSuffixRe.MatchString(rawCol.Name):
		return schema.RoleID
	case isTemporalType(rawCol.VendorType):
		return schema.RoleDate
	case isNumericType(rawCol.VendorType) && suggestsMeasure(rawCol.Name) &&
		(stats.sampleSize == 0 || stats.distinctRatio > 0.2):
		// Unsampled columns fall back to the name and type heuristic so
		// fast-start cards still carry metrics.
		return schema.RoleMetric
	case stats.sampleSize > 0 && float64(len(stats.distinct)) <= float64(cfg.ValueConstraintThreshold):
		return schema.RoleCategory
	case isTextType(rawCol.VendorType) && stats.avgLength > 32:
		return schema.RoleText
	default:
		return schema.RoleCategory
	}
}

func suggestsMeasure(name string) bool {
	for _, tok := range textutil.Tokens(name) {
		if _, ok := measureTokens[tok]; ok {
			return true
		}
	}
	return false
}

func isTemporalType(vendorType string) bool {
	t := strings.ToLower(vendorType)
	return strings.Contains(t, "date") || strings.Contains(t, "time")
}

func isNumericType(vendorType string) bool {
	t := strings.ToLower(vendorType)
	for _, kw := range []string{"int", "numeric", "decimal", "float", "double", "real", "money", "number"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isTextType(vendorType string) bool {
	t := strings.ToLower(vendorType)
	for _, kw := range []string{"char", "text", "string", "clob"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func sampledValues(sample *datasource.QueryResult, column string) []any {
	if sample == nil {
		return nil
	}
	var out []any
	for _, row := range sample.Rows {
		if v, ok := row[column]; ok {
			out = append(out, v)
		}
	}
	return out
}

type valueStats struct {
	sampleSize    int
	nullRate      float64
	distinctRatio float64
	distinct      []string
	strings       []string
	patterns      []string
	avgLength     float64
	min, max      string
}

func summarize(values []any) valueStats {
	var stats valueStats
	stats.sampleSize = len(values)
	if stats.sampleSize == 0 {
		return stats
	}

	distinct := make(map[string]struct{})
	var (
		nulls        int
		totalLen     int
		nonNull      int
		emails, urls int
		phones, pcts int
		haveNum      bool
		minNum       float64
		maxNum       float64
		haveTime     bool
		minTime      time.Time
		maxTime      time.Time
	)

	for _, v := range values {
		if v == nil {
			nulls++
			continue
		}
		nonNull++
		s := stringify(v)
		distinct[s] = struct{}{}
		totalLen += len(s)

		switch val := v.(type) {
		case string:
			stats.strings = append(stats.strings, val)
			trimmed := strings.TrimSpace(val)
			if emailRe.MatchString(trimmed) {
				emails++
			}
			if urlRe.MatchString(trimmed) {
				urls++
			}
			if phoneRe.MatchString(trimmed) {
				phones++
			}
			if percentRe.MatchString(trimmed) {
				pcts++
			}
		case time.Time:
			if !haveTime || val.Before(minTime) {
				minTime = val
			}
			if !haveTime || val.After(maxTime) {
				maxTime = val
			}
			haveTime = true
		default:
			if f, ok := toFloat(v); ok {
				if !haveNum || f < minNum {
					minNum = f
				}
				if !haveNum || f > maxNum {
					maxNum = f
				}
				haveNum = true
			}
		}
	}

	stats.nullRate = float64(nulls) / float64(stats.sampleSize)
	if nonNull > 0 {
		stats.distinctRatio = float64(len(distinct)) / float64(nonNull)
		stats.avgLength = float64(totalLen) / float64(nonNull)
	}

	stats.distinct = make([]string, 0, len(distinct))
	for s := range distinct {
		stats.distinct = append(stats.distinct, s)
	}
	sort.Strings(stats.distinct)

	// A pattern counts when at least half the non-null samples match it.
	half := (nonNull + 1) / 2
	if emails >= half && emails > 0 {
		stats.patterns = append(stats.patterns, "email")
	}
	if urls >= half && urls > 0 {
		stats.patterns = append(stats.patterns, "url")
	}
	if phones >= half && phones > 0 {
		stats.patterns = append(stats.patterns, "phone")
	}
	if pcts >= half && pcts > 0 {
		stats.patterns = append(stats.patterns, "percent")
	}

	switch {
	case haveNum:
		stats.min = trimFloat(minNum)
		stats.max = trimFloat(maxNum)
	case haveTime:
		stats.min = minTime.Format(time.RFC3339)
		stats.max = maxTime.Format(time.RFC3339)
	}
	return stats
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return trimFloat(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.4f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
