package planner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/graph"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/retrieval"
	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

const (
	// DraftConfidenceThreshold gates draft SQL emission.
	DraftConfidenceThreshold = 0.6

	defaultMaxTables       = 8
	defaultSeedCount       = 5
	defaultColumnsPerTable = 3
)

// Confidence weights.
const (
	confidenceDispersionWeight   = 0.4
	confidenceRoleWeight         = 0.3
	confidenceConnectivityWeight = 0.3
)

var (
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// temporalCues imply the request wants a time scope.
var temporalCues = map[string]struct{}{
	"date": {}, "day": {}, "daily": {}, "week": {}, "weekly": {}, "month": {},
	"monthly": {}, "quarter": {}, "year": {}, "yearly": {}, "recent": {},
	"latest": {}, "last": {}, "today": {}, "yesterday": {}, "trend": {},
	"since": {}, "before": {}, "after": {}, "during": {},
}

var aggregationCues = map[string]struct{}{
	"sum": {}, "total": {}, "totals": {}, "count": {}, "avg": {},
	"average": {}, "revenue": {}, "max": {}, "min": {}, "mean": {},
	"aggregate": {}, "per": {}, "top": {},
}

// Config tunes planning behavior; zero values take defaults.
type Config struct {
	MaxTables       int
	SeedCount       int
	ColumnsPerTable int
	Strategy        string
	Alpha           float64
	ExpandStrategy  string
}

func (c *Config) applyDefaults() {
	if c.MaxTables <= 0 {
		c.MaxTables = defaultMaxTables
	}
	if c.SeedCount <= 0 {
		c.SeedCount = defaultSeedCount
	}
	if c.ColumnsPerTable <= 0 {
		c.ColumnsPerTable = defaultColumnsPerTable
	}
	if c.Strategy == "" {
		c.Strategy = retrieval.StrategyCombined
	}
	if c.ExpandStrategy == "" {
		c.ExpandStrategy = ExpandFKFollowing
	}
}

// Planner plans queries over one schema card. Planning is deterministic: the
// same request against the same card yields the same plan.
type Planner struct {
	card      *schema.Card
	retriever *retrieval.Engine
	fkGraph   *graph.Graph
	cfg       Config
	logger    *zap.Logger
}

// New builds a planner over the card and its retrieval engine.
func New(card *schema.Card, retriever *retrieval.Engine, cfg Config, logger *zap.Logger) *Planner {
	cfg.applyDefaults()
	return &Planner{
		card:      card,
		retriever: retriever,
		fkGraph:   graph.Build(card.Tables),
		cfg:       cfg,
		logger:    logger.Named("planner"),
	}
}

// Plan produces the structured plan for a request.
func (p *Planner) Plan(ctx context.Context, request string) *models.PlanResult {
	plan := &models.PlanResult{
		Request:        request,
		JoinPlan:       []models.JoinStep{},
		Clarifications: []models.Clarification{},
	}

	if len(p.card.Tables) == 0 {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question:   "The database has no tables; connect to a populated database.",
			ReasonCode: models.CodeNoTables,
			Blocking:   true,
		})
		return plan
	}

	toks := textutil.Tokens(request)
	aggIntent := hasCue(toks, aggregationCues)
	temporalIntent := hasCue(toks, temporalCues) || yearRe.MatchString(request)

	seeds := p.retriever.SearchTables(ctx, request, p.cfg.SeedCount, p.cfg.Strategy, p.cfg.Alpha)
	seeds = positiveSeeds(seeds)
	if len(seeds) == 0 {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question:   "No table matches the request; name the subject or a table.",
			ReasonCode: models.CodeAmbiguousIntent,
			Blocking:   true,
		})
		return plan
	}

	plan.RelevantTables = expand(p.card, p.fkGraph, seeds, p.cfg.MaxTables,
		p.cfg.ExpandStrategy, true)
	p.fillCentrality(plan.RelevantTables)

	plan.MainTable = p.chooseMainTable(plan.RelevantTables)
	joined := p.buildJoinPlan(plan)
	p.fillKeyColumns(plan, joined)
	p.fillGroupByCandidates(plan, joined)
	p.fillFilterCandidates(plan, request, temporalIntent)
	p.fillSelectedColumns(plan, joined)
	p.addClarifications(plan, request, aggIntent, temporalIntent)
	plan.Confidence = p.confidence(plan, aggIntent, temporalIntent, joined)

	if len(plan.Clarifications) == 0 && plan.Confidence >= DraftConfidenceThreshold {
		plan.DraftSQL = p.draftSQL(plan, toks, aggIntent)
	}

	p.logger.Debug("plan built",
		zap.String("main_table", plan.MainTable),
		zap.Int("tables", len(plan.RelevantTables)),
		zap.Float64("confidence", plan.Confidence),
		zap.Bool("draft", plan.DraftSQL != ""))
	return plan
}

func positiveSeeds(seeds []models.TableSearchHit) []models.TableSearchHit {
	out := seeds[:0]
	for _, s := range seeds {
		if s.Score > 0 {
			out = append(out, s)
		}
	}
	return out
}

func (p *Planner) fillCentrality(tables []models.RankedTable) {
	for i := range tables {
		if tbl := p.card.Tables[tables[i].TableKey]; tbl != nil {
			tables[i].Centrality = tbl.Centrality
		}
	}
}

// Main-table preference bonuses, applied on top of the retrieval score. The
// fact bonus dominates; among non-facts, a table carrying measures and a time
// axis beats a bare lexical match.
const (
	mainTableFactBonus   = 4.0
	mainTableMetricBonus = 2.0
	mainTableDateBonus   = 1.0
)

// chooseMainTable ranks candidates by score plus structural preference. Ties
// break on the lexically smaller table key.
func (p *Planner) chooseMainTable(tables []models.RankedTable) string {
	best, bestScore := "", 0.0
	for _, t := range tables {
		s := t.Score
		if t.Archetype == string(schema.ArchetypeFact) {
			s += mainTableFactBonus
		}
		if tbl := p.card.Tables[t.TableKey]; tbl != nil {
			if tbl.MetricCount > 0 {
				s += mainTableMetricBonus
			}
			if tbl.DateCount > 0 {
				s += mainTableDateBonus
			}
		}
		if best == "" || s > bestScore || (s == bestScore && t.TableKey < best) {
			best, bestScore = t.TableKey, s
		}
	}
	return best
}

// buildJoinPlan grows a spanning tree over the relevant tables by BFS from
// the main table, visiting cheaper edges first with lexical order breaking
// ties. Returns the set of tables covered by the tree (main included).
// Unreachable tables become an UNJOINABLE_SUBSET clarification.
func (p *Planner) buildJoinPlan(plan *models.PlanResult) map[string]bool {
	relevant := make(map[string]bool, len(plan.RelevantTables))
	for _, t := range plan.RelevantTables {
		relevant[t.TableKey] = true
	}

	joined := map[string]bool{plan.MainTable: true}
	frontier := []string{plan.MainTable}
	for len(frontier) > 0 {
		var next []string
		for _, key := range frontier {
			for _, n := range neighborsByWeight(p.fkGraph, key) {
				if joined[n] || !relevant[n] {
					continue
				}
				step, ok := p.joinStep(key, n)
				if !ok {
					continue
				}
				joined[n] = true
				plan.JoinPlan = append(plan.JoinPlan, step)
				plan.JoinExamples = append(plan.JoinExamples,
					fmt.Sprintf("%s = %s", step.LeftColumn, step.RightColumn))
				next = append(next, n)
			}
		}
		frontier = next
	}

	var orphans []string
	for key := range relevant {
		if !joined[key] {
			orphans = append(orphans, key)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question: fmt.Sprintf("Tables %s have no join path to %s; drop them or describe the link.",
				strings.Join(orphans, ", "), plan.MainTable),
			ReasonCode: models.CodeUnjoinableSubset,
			Blocking:   false,
		})
	}
	return joined
}

// joinStep resolves the FK columns linking two adjacent tables. The FK side
// is always the left column.
func (p *Planner) joinStep(a, b string) (models.JoinStep, bool) {
	if tbl := p.card.Tables[a]; tbl != nil {
		for _, fk := range tbl.ForeignKeys {
			if fk.RemoteTableKey == b {
				return models.JoinStep{
					LeftColumn:  qualify(a, fk.LocalColumn),
					RightColumn: qualify(b, fk.RemoteColumn),
				}, true
			}
		}
	}
	if tbl := p.card.Tables[b]; tbl != nil {
		for _, fk := range tbl.ForeignKeys {
			if fk.RemoteTableKey == a {
				return models.JoinStep{
					LeftColumn:  qualify(b, fk.LocalColumn),
					RightColumn: qualify(a, fk.RemoteColumn),
				}, true
			}
		}
	}
	return models.JoinStep{}, false
}

// fillKeyColumns collects primary keys of joined tables plus FK columns used
// in the join plan.
func (p *Planner) fillKeyColumns(plan *models.PlanResult, joined map[string]bool) {
	keyCols := make(map[string][]string, len(joined))
	for key := range joined {
		tbl := p.card.Tables[key]
		if tbl == nil {
			continue
		}
		keyCols[key] = append(keyCols[key], tbl.PrimaryKey...)
	}
	for _, step := range plan.JoinPlan {
		for _, ref := range []string{step.LeftColumn, step.RightColumn} {
			table, column := splitColumnRef(ref)
			if !containsFold(keyCols[table], column) {
				keyCols[table] = append(keyCols[table], column)
			}
		}
	}
	for key := range keyCols {
		sort.Strings(keyCols[key])
	}
	plan.KeyColumns = keyCols
}

// fillGroupByCandidates offers category and date columns from the main table
// and its directly joined dimension-side tables.
func (p *Planner) fillGroupByCandidates(plan *models.PlanResult, joined map[string]bool) {
	tables := []string{plan.MainTable}
	for key := range joined {
		if key == plan.MainTable {
			continue
		}
		tbl := p.card.Tables[key]
		if tbl == nil {
			continue
		}
		switch tbl.Archetype {
		case schema.ArchetypeDimension, schema.ArchetypeReference:
			tables = append(tables, key)
		}
	}
	sort.Strings(tables[1:])

	for _, key := range tables {
		tbl := p.card.Tables[key]
		if tbl == nil {
			continue
		}
		for _, col := range tbl.ColumnsByRole(schema.RoleCategory, schema.RoleDate) {
			plan.GroupByCandidates = append(plan.GroupByCandidates, qualify(key, col.Name))
		}
	}
}

// fillFilterCandidates suggests predicates from enumerated values and sampled
// ranges. An explicit year in the request becomes a concrete date range on
// the main table's date column and sorts first.
func (p *Planner) fillFilterCandidates(plan *models.PlanResult, request string, temporalIntent bool) {
	if year := yearRe.FindString(request); year != "" && temporalIntent {
		if dateCol := p.mainDateColumn(plan.MainTable); dateCol != "" {
			lo := year + "-01-01"
			hi := fmt.Sprintf("%d-01-01", atoiYear(year)+1)
			plan.FilterCandidates = append(plan.FilterCandidates, models.FilterCandidate{
				Column:    qualify(plan.MainTable, dateCol),
				Predicate: "BETWEEN",
				RangeMin:  &lo,
				RangeMax:  &hi,
			})
		}
	}

	for _, ranked := range plan.RelevantTables {
		tbl := p.card.Tables[ranked.TableKey]
		if tbl == nil {
			continue
		}
		for _, col := range tbl.Columns {
			switch {
			case len(col.Values) == 1:
				plan.FilterCandidates = append(plan.FilterCandidates, models.FilterCandidate{
					Column:    qualify(ranked.TableKey, col.Name),
					Predicate: "=",
					Values:    col.Values,
				})
			case len(col.Values) > 1:
				plan.FilterCandidates = append(plan.FilterCandidates, models.FilterCandidate{
					Column:    qualify(ranked.TableKey, col.Name),
					Predicate: "IN (…)",
					Values:    col.Values,
				})
			case col.Role == schema.RoleDate && col.RangeMin != nil && col.RangeMax != nil:
				plan.FilterCandidates = append(plan.FilterCandidates, models.FilterCandidate{
					Column:    qualify(ranked.TableKey, col.Name),
					Predicate: "BETWEEN",
					RangeMin:  col.RangeMin,
					RangeMax:  col.RangeMax,
				})
			case col.Role == schema.RoleMetric && col.RangeMin != nil && col.RangeMax != nil:
				plan.FilterCandidates = append(plan.FilterCandidates, models.FilterCandidate{
					Column:    qualify(ranked.TableKey, col.Name),
					Predicate: ">= AND <",
					RangeMin:  col.RangeMin,
					RangeMax:  col.RangeMax,
				})
			}
		}
	}
}

// rolePriority orders columns for selection: time axis first, then measures,
// then dimensions.
var rolePriority = map[schema.Role]int{
	schema.RoleDate:     0,
	schema.RoleMetric:   1,
	schema.RoleCategory: 2,
	schema.RoleKey:      3,
	schema.RoleText:     4,
	schema.RoleID:       5,
}

// fillSelectedColumns proposes output columns: primary keys plus the top
// columns per table by role priority.
func (p *Planner) fillSelectedColumns(plan *models.PlanResult, joined map[string]bool) {
	tables := make([]string, 0, len(joined))
	for key := range joined {
		tables = append(tables, key)
	}
	sort.Strings(tables)
	// Main table leads.
	for i, key := range tables {
		if key == plan.MainTable && i > 0 {
			tables = append([]string{key}, append(tables[:i], tables[i+1:]...)...)
			break
		}
	}

	for _, key := range tables {
		tbl := p.card.Tables[key]
		if tbl == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, pk := range tbl.PrimaryKey {
			plan.SelectedColumns = append(plan.SelectedColumns, models.SelectedColumn{
				Column: qualify(key, pk),
				Role:   string(schema.RoleKey),
			})
			seen[strings.ToLower(pk)] = true
		}

		idx := make([]int, 0, len(tbl.Columns))
		for i := range tbl.Columns {
			if !seen[strings.ToLower(tbl.Columns[i].Name)] {
				idx = append(idx, i)
			}
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return rolePriority[tbl.Columns[idx[a]].Role] < rolePriority[tbl.Columns[idx[b]].Role]
		})
		for i, n := 0, 0; i < len(idx) && n < p.cfg.ColumnsPerTable; i++ {
			col := tbl.Columns[idx[i]]
			plan.SelectedColumns = append(plan.SelectedColumns, models.SelectedColumn{
				Column: qualify(key, col.Name),
				Role:   string(col.Role),
			})
			n++
		}
	}
}

// addClarifications raises the coverage questions a caller must settle.
func (p *Planner) addClarifications(plan *models.PlanResult, request string,
	aggIntent, temporalIntent bool) {

	dateCols := p.relevantColumnsByRole(plan, schema.RoleDate)
	metricCols := p.relevantColumnsByRole(plan, schema.RoleMetric)

	if temporalIntent && len(dateCols) == 0 {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question:   "The request implies a time scope but no date column exists in the matched tables.",
			ReasonCode: models.CodeNoDateDimension,
			Blocking:   false,
		})
	}
	if temporalIntent && len(dateCols) > 0 &&
		!yearRe.MatchString(request) && !isoDateRe.MatchString(request) {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question:   "Which time range should apply? The request names no concrete dates.",
			ReasonCode: models.CodeAmbiguousTimeRange,
			Blocking:   true,
		})
	}
	if aggIntent && len(metricCols) == 0 {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question:   "The request implies aggregation but no numeric measure exists in the matched tables.",
			ReasonCode: models.CodeNoMetric,
			Blocking:   false,
		})
	}
	if temporalIntent && p.mainDateColumnCount(plan.MainTable) > 1 {
		plan.Clarifications = append(plan.Clarifications, models.Clarification{
			Question: fmt.Sprintf("Table %s has several date columns; which one is the time axis?",
				plan.MainTable),
			ReasonCode: models.CodeMultipleDateColumns,
			Blocking:   false,
		})
	}

	if dateCol := p.mainDateColumn(plan.MainTable); dateCol != "" && temporalIntent {
		plan.Assumptions = append(plan.Assumptions,
			fmt.Sprintf("using %s as the time axis", qualify(plan.MainTable, dateCol)))
	}
}

// confidence combines score dispersion, role coverage, and join connectivity.
func (p *Planner) confidence(plan *models.PlanResult, aggIntent, temporalIntent bool,
	joined map[string]bool) float64 {

	var dispersion float64
	if n := len(plan.RelevantTables); n > 0 {
		top1 := plan.RelevantTables[0].Score
		topK := plan.RelevantTables[0].Score
		for _, t := range plan.RelevantTables {
			if t.Score > top1 {
				top1 = t.Score
			}
			if t.Score < topK {
				topK = t.Score
			}
		}
		if top1 > 0 {
			dispersion = (top1 - topK) / top1
		}
		if n == 1 {
			dispersion = 1
		}
	}

	var required, covered int
	if aggIntent {
		required++
		if len(p.relevantColumnsByRole(plan, schema.RoleMetric)) > 0 {
			covered++
		}
	}
	if temporalIntent {
		required++
		if len(p.relevantColumnsByRole(plan, schema.RoleDate)) > 0 {
			covered++
		}
	}
	roleCoverage := 1.0
	if required > 0 {
		roleCoverage = float64(covered) / float64(required)
	}

	connectivity := 1.0
	if len(plan.RelevantTables) > 0 {
		connectivity = float64(len(joined)) / float64(len(plan.RelevantTables))
	}

	c := confidenceDispersionWeight*dispersion +
		confidenceRoleWeight*roleCoverage +
		confidenceConnectivityWeight*connectivity
	return clamp01(c)
}

// draftSQL renders a fully qualified starting query. Aggregating requests get
// a grouped aggregate; others get a plain projection. Star selects are never
// produced.
func (p *Planner) draftSQL(plan *models.PlanResult, queryToks []string, aggIntent bool) string {
	mainTbl := p.card.Tables[plan.MainTable]
	if mainTbl == nil {
		return ""
	}

	var b strings.Builder
	groupCols := matchedGroupColumns(plan.GroupByCandidates, queryToks)

	if aggIntent {
		metrics := mainTbl.ColumnsByRole(schema.RoleMetric)
		if len(metrics) == 0 {
			return ""
		}
		metric := qualify(plan.MainTable, metrics[0].Name)
		var selects []string
		selects = append(selects, groupCols...)
		selects = append(selects, fmt.Sprintf("SUM(%s) AS total_%s", metric, metrics[0].Name))
		b.WriteString("SELECT " + strings.Join(selects, ", "))
	} else {
		cols := draftProjection(plan, 6)
		if len(cols) == 0 {
			return ""
		}
		b.WriteString("SELECT " + strings.Join(cols, ", "))
	}

	b.WriteString("\nFROM " + plan.MainTable)
	for _, step := range plan.JoinPlan {
		rightTable, _ := splitColumnRef(step.RightColumn)
		leftTable, _ := splitColumnRef(step.LeftColumn)
		joinTable := rightTable
		if rightTable == plan.MainTable {
			joinTable = leftTable
		}
		fmt.Fprintf(&b, "\nJOIN %s ON %s = %s", joinTable, step.LeftColumn, step.RightColumn)
	}

	var where []string
	for _, f := range plan.FilterCandidates {
		if f.Predicate == "BETWEEN" && f.RangeMin != nil && f.RangeMax != nil &&
			strings.HasPrefix(f.Column, plan.MainTable+".") {
			where = append(where,
				fmt.Sprintf("%s BETWEEN '%s' AND '%s'", f.Column, *f.RangeMin, *f.RangeMax))
			break
		}
	}
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	if aggIntent && len(groupCols) > 0 {
		b.WriteString("\nGROUP BY " + strings.Join(groupCols, ", "))
	}
	return b.String()
}

// matchedGroupColumns keeps the group-by candidates the request actually
// mentions.
func matchedGroupColumns(candidates []string, queryToks []string) []string {
	querySet := make(map[string]struct{}, len(queryToks))
	for _, tok := range queryToks {
		querySet[tok] = struct{}{}
		for _, v := range textutil.Variants(tok) {
			querySet[v] = struct{}{}
		}
	}
	var out []string
	for _, cand := range candidates {
		_, column := splitColumnRef(cand)
		matched := false
		for _, tok := range textutil.Tokens(column) {
			if _, ok := querySet[tok]; ok {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, cand)
		}
	}
	return out
}

// draftProjection picks non-aggregated output columns from the selected set,
// main table first.
func draftProjection(plan *models.PlanResult, max int) []string {
	var out []string
	for _, sel := range plan.SelectedColumns {
		if len(out) == max {
			break
		}
		out = append(out, sel.Column)
	}
	return out
}

func (p *Planner) relevantColumnsByRole(plan *models.PlanResult, role schema.Role) []string {
	var out []string
	for _, ranked := range plan.RelevantTables {
		tbl := p.card.Tables[ranked.TableKey]
		if tbl == nil {
			continue
		}
		for _, col := range tbl.ColumnsByRole(role) {
			out = append(out, qualify(ranked.TableKey, col.Name))
		}
	}
	return out
}

func (p *Planner) mainDateColumn(mainTable string) string {
	tbl := p.card.Tables[mainTable]
	if tbl == nil {
		return ""
	}
	if dates := tbl.ColumnsByRole(schema.RoleDate); len(dates) > 0 {
		return dates[0].Name
	}
	return ""
}

func (p *Planner) mainDateColumnCount(mainTable string) int {
	tbl := p.card.Tables[mainTable]
	if tbl == nil {
		return 0
	}
	return len(tbl.ColumnsByRole(schema.RoleDate))
}

// neighborsByWeight orders a node's neighbors by ascending edge weight, then
// lexically, keeping the spanning tree deterministic in cyclic graphs.
func neighborsByWeight(g *graph.Graph, key string) []string {
	adj := g.Neighbors(key)
	out := make([]string, 0, len(adj))
	for n := range adj {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if adj[out[i]] != adj[out[j]] {
			return adj[out[i]] < adj[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// qualify renders "<schema>.<table>.<column>".
func qualify(tableKey, column string) string {
	return tableKey + "." + column
}

// splitColumnRef splits "<schema>.<table>.<column>" into table key and column.
func splitColumnRef(ref string) (tableKey, column string) {
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

func containsFold(s []string, v string) bool {
	for _, x := range s {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func atoiYear(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hasCue(toks []string, cues map[string]struct{}) bool {
	for _, tok := range toks {
		if _, ok := cues[tok]; ok {
			return true
		}
	}
	return false
}
