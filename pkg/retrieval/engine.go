package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

// Retrieval strategies.
const (
	StrategyLexical         = "lexical"
	StrategyEmbeddingTable  = "embedding_table"
	StrategyEmbeddingColumn = "embedding_column"
	StrategyCombined        = "combined"
)

const (
	// DefaultAlpha weights lexical vs embedding scores in combined fusion.
	DefaultAlpha = 0.6

	// archiveScorePenalty halves archive-table scores unless the request
	// asks for historical data.
	archiveScorePenalty = 0.5

	// Aggregation-intent bonuses.
	bonusMetricBearing = 0.08
	bonusDateBearing   = 0.04
	bonusFact          = 0.06

	// overlapBonusWeight rewards direct table-name mentions in the request.
	overlapBonusWeight = 0.12

	// columnPoolPerTable caps how many column hits feed one table's
	// max-pooled embedding score.
	columnPoolPerTable = 200
)

// Engine answers table and column searches over one schema card. Lexical
// documents are built up front; embedding indexes arrive later through
// EnableEmbeddings and are optional.
type Engine struct {
	card   *schema.Card
	logger *zap.Logger

	tableDocs  map[string]*docVector
	columnDocs map[string]map[string]*docVector

	mu          sync.RWMutex
	encoder     Encoder
	tableIndex  *vectorIndex
	columnIndex *vectorIndex
}

// NewEngine builds a lexical-only engine for the card.
func NewEngine(card *schema.Card, logger *zap.Logger) *Engine {
	e := &Engine{
		card:       card,
		logger:     logger.Named("retrieval"),
		tableDocs:  make(map[string]*docVector, len(card.Tables)),
		columnDocs: make(map[string]map[string]*docVector, len(card.Tables)),
	}
	for key, tbl := range card.Tables {
		e.tableDocs[key] = buildTableDoc(tbl)
		cols := make(map[string]*docVector, len(tbl.Columns))
		for i := range tbl.Columns {
			col := &tbl.Columns[i]
			cols[col.Name] = buildColumnDoc(tbl, col)
		}
		e.columnDocs[key] = cols
	}
	return e
}

// EmbeddingsReady reports whether embedding strategies can run.
func (e *Engine) EmbeddingsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tableIndex != nil
}

// EnableEmbeddings encodes table and column texts and installs the vector
// indexes. maxColsPerTable caps how many columns per table get embedded;
// role-bearing columns go first. Errors leave the engine lexical-only.
func (e *Engine) EnableEmbeddings(ctx context.Context, encoder Encoder, maxColsPerTable int) error {
	tableKeys := make([]string, 0, len(e.card.Tables))
	for key := range e.card.Tables {
		tableKeys = append(tableKeys, key)
	}
	sort.Strings(tableKeys)

	tableTexts := make([]string, 0, len(tableKeys))
	var colKeys []string
	var colTexts []string
	for _, key := range tableKeys {
		tbl := e.card.Tables[key]
		tableTexts = append(tableTexts, tableEmbeddingText(tbl))
		for _, col := range embeddableColumns(tbl, maxColsPerTable) {
			colKeys = append(colKeys, columnRefKey(key, col.Name))
			colTexts = append(colTexts, columnEmbeddingText(tbl, col))
		}
	}

	tableVecs, err := encoder.Encode(ctx, tableTexts)
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}
	colVecs, err := encoder.Encode(ctx, colTexts)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	e.mu.Lock()
	e.encoder = encoder
	e.tableIndex = newVectorIndex(tableKeys, tableVecs)
	e.columnIndex = newVectorIndex(colKeys, colVecs)
	e.mu.Unlock()

	e.logger.Info("embedding indexes built",
		zap.String("model", encoder.Model()),
		zap.Int("tables", len(tableKeys)),
		zap.Int("columns", len(colKeys)))
	return nil
}

// SearchTables ranks tables against a free-text request. Unknown or
// unavailable strategies silently degrade to lexical.
func (e *Engine) SearchTables(ctx context.Context, query string, limit int,
	strategy string, alpha float64) []models.TableSearchHit {

	if limit <= 0 {
		limit = 10
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	strategy = e.effectiveStrategy(strategy)

	queryToks := textutil.Tokens(query)
	lexical := e.lexicalTableScores(queryToks)

	var embedding map[string]float64
	switch strategy {
	case StrategyEmbeddingTable, StrategyCombined:
		embedding = e.embeddingTableScores(ctx, query)
	case StrategyEmbeddingColumn:
		embedding = e.embeddingColumnScores(ctx, query)
	}
	if embedding == nil && strategy != StrategyLexical {
		strategy = StrategyLexical
	}

	base := make(map[string]float64, len(lexical))
	normLex := minMaxNormalize(lexical)
	normEmb := minMaxNormalize(embedding)
	switch strategy {
	case StrategyLexical:
		base = lexical
	case StrategyEmbeddingTable, StrategyEmbeddingColumn:
		base = embedding
	case StrategyCombined:
		// Fuse after min-max normalization so the two score families share
		// a scale.
		for key := range e.card.Tables {
			base[key] = alpha*normLex[key] + (1-alpha)*normEmb[key]
		}
	}

	aggIntent := aggregationIntent(queryToks)
	wantArchives := archiveCue(query)

	hits := make([]models.TableSearchHit, 0, len(base))
	for key, score := range base {
		tbl := e.card.Tables[key]
		components := map[string]float64{
			"lexical":   normLex[key],
			"embedding": normEmb[key],
		}

		if tbl.IsArchive && !wantArchives {
			score *= archiveScorePenalty
			components["archive_penalty"] = archiveScorePenalty
		}
		if aggIntent {
			var bonus float64
			if tbl.MetricCount > 0 {
				bonus += bonusMetricBearing
			}
			if tbl.DateCount > 0 {
				bonus += bonusDateBearing
			}
			if tbl.Archetype == schema.ArchetypeFact {
				bonus += bonusFact
			}
			if bonus > 0 {
				score += bonus
				components["intent_bonus"] = bonus
			}
		}
		if overlap := nameOverlap(queryToks, tbl); overlap > 0 {
			bonus := overlapBonusWeight * overlap
			score += bonus
			components["overlap_bonus"] = bonus
		}

		hits = append(hits, models.TableSearchHit{
			TableKey:   key,
			Score:      score,
			Components: components,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].TableKey < hits[j].TableKey
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SearchColumns ranks columns against a keyword, optionally restricted to one
// table. Embedding hits refine lexical scores when the column index exists.
func (e *Engine) SearchColumns(ctx context.Context, keyword string, limit int,
	tableKey string) []models.ColumnSearchHit {

	if limit <= 0 {
		limit = 20
	}
	queryToks := textutil.Tokens(keyword)

	scores := make(map[string]float64)
	for key, cols := range e.columnDocs {
		if tableKey != "" && !strings.EqualFold(key, tableKey) {
			continue
		}
		for name, doc := range cols {
			if s := doc.cosine(queryToks); s > 0 {
				scores[columnRefKey(key, name)] = s
			}
		}
	}

	e.mu.RLock()
	colIndex := e.columnIndex
	e.mu.RUnlock()
	if colIndex != nil {
		if vec := e.encodeQuery(ctx, keyword); vec != nil {
			norm := minMaxNormalize(scores)
			merged := make(map[string]float64, len(norm))
			for _, hit := range colIndex.search(vec, 0) {
				key, _ := splitColumnRef(hit.key)
				if tableKey != "" && !strings.EqualFold(key, tableKey) {
					continue
				}
				merged[hit.key] = DefaultAlpha*norm[hit.key] + (1-DefaultAlpha)*hit.score
			}
			scores = merged
		}
	}

	hits := make([]models.ColumnSearchHit, 0, len(scores))
	for _, ref := range rankKeys(scores) {
		key, col := splitColumnRef(ref)
		hits = append(hits, models.ColumnSearchHit{
			TableKey: key,
			Column:   col,
			Score:    scores[ref],
		})
		if len(hits) == limit {
			break
		}
	}
	return hits
}

// effectiveStrategy downgrades embedding strategies when no index exists.
func (e *Engine) effectiveStrategy(strategy string) string {
	switch strategy {
	case StrategyLexical, StrategyEmbeddingTable, StrategyEmbeddingColumn, StrategyCombined:
	default:
		strategy = StrategyCombined
	}
	if strategy != StrategyLexical && !e.EmbeddingsReady() {
		e.logger.Debug("embeddings unavailable, using lexical retrieval",
			zap.String("requested", strategy))
		return StrategyLexical
	}
	return strategy
}

func (e *Engine) lexicalTableScores(queryToks []string) map[string]float64 {
	scores := make(map[string]float64, len(e.tableDocs))
	for key, doc := range e.tableDocs {
		scores[key] = doc.cosine(queryToks)
	}
	return scores
}

func (e *Engine) embeddingTableScores(ctx context.Context, query string) map[string]float64 {
	e.mu.RLock()
	index := e.tableIndex
	e.mu.RUnlock()
	if index == nil {
		return nil
	}
	vec := e.encodeQuery(ctx, query)
	if vec == nil {
		return nil
	}
	scores := make(map[string]float64, index.size())
	for _, hit := range index.search(vec, 0) {
		scores[hit.key] = hit.score
	}
	return scores
}

// embeddingColumnScores max-pools column similarities per table.
func (e *Engine) embeddingColumnScores(ctx context.Context, query string) map[string]float64 {
	e.mu.RLock()
	index := e.columnIndex
	e.mu.RUnlock()
	if index == nil {
		return nil
	}
	vec := e.encodeQuery(ctx, query)
	if vec == nil {
		return nil
	}
	scores := make(map[string]float64)
	for _, hit := range index.search(vec, columnPoolPerTable) {
		key, _ := splitColumnRef(hit.key)
		if hit.score > scores[key] {
			scores[key] = hit.score
		}
	}
	return scores
}

func (e *Engine) encodeQuery(ctx context.Context, query string) []float32 {
	e.mu.RLock()
	encoder := e.encoder
	e.mu.RUnlock()
	if encoder == nil {
		return nil
	}
	vecs, err := encoder.Encode(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		e.logger.Warn("query embedding failed, using lexical retrieval", zap.Error(err))
		return nil
	}
	return vecs[0]
}

// tableEmbeddingText prefers the derived summary; before enrichment a plain
// rendering of name and columns stands in.
func tableEmbeddingText(tbl *schema.TableProfile) string {
	if tbl.Summary != "" {
		return tbl.Summary
	}
	names := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("%s table %s with columns %s",
		textutil.NormalizeIdentifier(tbl.Schema), textutil.NormalizeIdentifier(tbl.Name),
		strings.Join(names, ", "))
}

func columnEmbeddingText(tbl *schema.TableProfile, col *schema.ColumnProfile) string {
	parts := []string{
		fmt.Sprintf("%s column %s of table %s",
			string(col.Role), textutil.NormalizeIdentifier(col.Name),
			textutil.NormalizeIdentifier(tbl.Name)),
	}
	if len(col.Values) > 0 {
		parts = append(parts, "values "+strings.Join(col.Values, ", "))
	}
	return strings.Join(parts, "; ")
}

// embeddableColumns picks up to max columns, preferring the roles a request
// is most likely to mention.
func embeddableColumns(tbl *schema.TableProfile, max int) []*schema.ColumnProfile {
	if max <= 0 || len(tbl.Columns) <= max {
		out := make([]*schema.ColumnProfile, 0, len(tbl.Columns))
		for i := range tbl.Columns {
			out = append(out, &tbl.Columns[i])
		}
		return out
	}

	rolePriority := map[schema.Role]int{
		schema.RoleMetric:   0,
		schema.RoleDate:     1,
		schema.RoleCategory: 2,
		schema.RoleText:     3,
		schema.RoleID:       4,
		schema.RoleKey:      5,
	}
	idx := make([]int, len(tbl.Columns))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rolePriority[tbl.Columns[idx[a]].Role] < rolePriority[tbl.Columns[idx[b]].Role]
	})

	out := make([]*schema.ColumnProfile, 0, max)
	for _, i := range idx[:max] {
		out = append(out, &tbl.Columns[i])
	}
	return out
}

func columnRefKey(tableKey, column string) string {
	return tableKey + "|" + column
}

func splitColumnRef(ref string) (tableKey, column string) {
	if i := strings.LastIndex(ref, "|"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}
