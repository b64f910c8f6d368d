// Package retrieval ranks tables and columns against a request using lexical
// token vectors, optional embeddings, and score fusion.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

// Token weights for the searchable text of a table. Table names dominate,
// column names matter, schema and roles disambiguate.
const (
	weightTableName  = 2.0
	weightSchemaName = 0.5
	weightColumnName = 1.0
	weightRole       = 0.5
	weightVariant    = 0.3
	archiveDocScale  = 0.2
)

// docVector is a weighted token-frequency vector with its precomputed norm.
type docVector struct {
	weights map[string]float64
	norm    float64
}

func newDocVector() *docVector {
	return &docVector{weights: make(map[string]float64)}
}

func (d *docVector) add(tok string, w float64) {
	d.weights[tok] += w
}

func (d *docVector) addWithVariants(text string, w float64) {
	for _, tok := range textutil.Tokens(text) {
		d.add(tok, w)
		for _, v := range textutil.Variants(tok) {
			d.add(v, weightVariant*w)
		}
	}
}

func (d *docVector) finalize() {
	var sum float64
	for _, w := range d.weights {
		sum += w * w
	}
	d.norm = math.Sqrt(sum)
}

// scale multiplies every weight; used for archive damping.
func (d *docVector) scale(f float64) {
	for tok := range d.weights {
		d.weights[tok] *= f
	}
}

// cosine scores a query token bag against the document.
func (d *docVector) cosine(queryToks []string) float64 {
	if d.norm == 0 || len(queryToks) == 0 {
		return 0
	}
	queryFreq := make(map[string]float64, len(queryToks))
	for _, tok := range queryToks {
		queryFreq[tok]++
	}
	var dot, qsum float64
	for tok, qf := range queryFreq {
		dot += qf * d.weights[tok]
		qsum += qf * qf
	}
	if dot == 0 {
		return 0
	}
	return dot / (d.norm * math.Sqrt(qsum))
}

// buildTableDoc builds the lexical document for one table.
func buildTableDoc(tbl *schema.TableProfile) *docVector {
	doc := newDocVector()
	doc.addWithVariants(tbl.Name, weightTableName)
	if tbl.Schema != "" {
		doc.addWithVariants(tbl.Schema, weightSchemaName)
	}
	for _, col := range tbl.Columns {
		doc.addWithVariants(col.Name, weightColumnName)
		doc.add(string(col.Role), weightRole)
	}
	if tbl.IsArchive {
		doc.scale(archiveDocScale)
	}
	doc.finalize()
	return doc
}

// buildColumnDoc builds the lexical document for one column.
func buildColumnDoc(tbl *schema.TableProfile, col *schema.ColumnProfile) *docVector {
	doc := newDocVector()
	doc.addWithVariants(col.Name, weightColumnName*2)
	doc.addWithVariants(tbl.Name, weightSchemaName)
	doc.add(string(col.Role), weightRole)
	doc.finalize()
	return doc
}

// nameOverlap returns the fraction of a table's name tokens present in the
// query.
func nameOverlap(queryToks []string, tbl *schema.TableProfile) float64 {
	nameToks := textutil.Tokens(tbl.Name)
	if len(nameToks) == 0 {
		return 0
	}
	querySet := make(map[string]struct{}, len(queryToks))
	for _, tok := range queryToks {
		querySet[tok] = struct{}{}
		for _, v := range textutil.Variants(tok) {
			querySet[v] = struct{}{}
		}
	}
	overlap := 0
	for _, tok := range nameToks {
		if _, ok := querySet[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(nameToks))
}

// aggregationIntent reports whether the request implies aggregation.
func aggregationIntent(queryToks []string) bool {
	for _, tok := range queryToks {
		switch tok {
		case "sum", "total", "totals", "count", "avg", "average", "revenue",
			"max", "min", "mean", "aggregate", "per":
			return true
		}
	}
	return false
}

// archiveCue reports whether the request explicitly asks for archival data.
func archiveCue(query string) bool {
	lower := strings.ToLower(query)
	for _, cue := range []string{"archive", "archived", "history", "historical", "backup", "old "} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// minMaxNormalize rescales scores into [0, 1] within the candidate set.
// A flat distribution maps to all-ones so fusion keeps relative order from
// the other component.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make(map[string]float64, len(scores))
	if hi == lo {
		flat := 0.0
		if hi > 0 {
			flat = 1
		}
		for k := range scores {
			out[k] = flat
		}
		return out
	}
	for k, v := range scores {
		out[k] = (v - lo) / (hi - lo)
	}
	return out
}

// rankKeys sorts keys by score descending with lexical tie-break.
func rankKeys(scores map[string]float64) []string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
