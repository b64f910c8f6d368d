package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

const (
	// referenceMaxRows is the row-estimate ceiling for reference tables.
	referenceMaxRows = 10_000

	// auditCentralityQuantile marks the centrality cut above which a
	// generically named table counts as audit-like plumbing.
	auditCentralityQuantile = 0.8
)

// genericDimensionTokens name lookup-style tables that join everywhere
// without carrying business meaning of their own.
var genericDimensionTokens = map[string]struct{}{
	"type": {}, "types": {}, "status": {}, "statuses": {}, "state": {},
	"states": {}, "code": {}, "codes": {}, "category": {}, "categories": {},
	"class": {}, "kind": {}, "flag": {}, "flags": {}, "lookup": {},
	"ref": {}, "reference": {}, "audit": {}, "log": {}, "logs": {},
}

// Classify assigns archetypes and summaries. The rules run in order:
// bridge, fact, dimension, reference, operational. Dimension detection needs
// fact assignments, so facts and bridges are settled in a first pass.
func Classify(tables map[string]*schema.TableProfile, centrality map[string]float64) {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// First pass: bridge and fact.
	for _, key := range keys {
		tbl := tables[key]
		switch {
		case isBridge(tbl):
			tbl.Archetype = schema.ArchetypeBridge
		case len(tbl.ForeignKeys) >= 2 && tbl.MetricCount >= 1:
			tbl.Archetype = schema.ArchetypeFact
		}
	}

	// Tables referenced by at least one fact.
	factReferenced := make(map[string]bool)
	for _, tbl := range tables {
		if tbl.Archetype != schema.ArchetypeFact {
			continue
		}
		for _, fk := range tbl.ForeignKeys {
			factReferenced[fk.RemoteTableKey] = true
		}
	}

	// Second pass: dimension, reference, operational.
	for _, key := range keys {
		tbl := tables[key]
		if tbl.Archetype != "" {
			continue
		}
		switch {
		case len(tbl.PrimaryKey) > 0 && factReferenced[key]:
			tbl.Archetype = schema.ArchetypeDimension
		case tbl.RowEstimate <= referenceMaxRows && len(tbl.ForeignKeys) == 0:
			tbl.Archetype = schema.ArchetypeReference
		default:
			tbl.Archetype = schema.ArchetypeOperational
		}
	}

	auditCut := centralityQuantile(centrality, auditCentralityQuantile)
	for _, key := range keys {
		tbl := tables[key]
		tbl.Centrality = centrality[key]
		tbl.IsAuditLike = isAuditLike(tbl, auditCut)
		tbl.Summary = summarize(tbl, tables)
	}
}

// isBridge: exactly two FKs whose columns make up the whole primary key.
func isBridge(tbl *schema.TableProfile) bool {
	if len(tbl.ForeignKeys) != 2 || len(tbl.PrimaryKey) < 2 {
		return false
	}
	fkCols := make(map[string]struct{}, len(tbl.ForeignKeys))
	for _, fk := range tbl.ForeignKeys {
		fkCols[strings.ToLower(fk.LocalColumn)] = struct{}{}
	}
	if len(fkCols) != len(tbl.PrimaryKey) {
		return false
	}
	for _, pk := range tbl.PrimaryKey {
		if _, ok := fkCols[strings.ToLower(pk)]; !ok {
			return false
		}
	}
	return true
}

// isAuditLike marks high-centrality tables with generic lookup names; they
// join everywhere but rarely answer a business question.
func isAuditLike(tbl *schema.TableProfile, centralityCut float64) bool {
	if tbl.Centrality < centralityCut || centralityCut == 0 {
		return false
	}
	toks := textutil.Tokens(tbl.Name)
	if len(toks) == 0 {
		return false
	}
	generic := 0
	for _, tok := range toks {
		if _, ok := genericDimensionTokens[tok]; ok {
			generic++
		}
	}
	return generic*2 >= len(toks)
}

func centralityQuantile(centrality map[string]float64, q float64) float64 {
	if len(centrality) == 0 {
		return 0
	}
	values := make([]float64, 0, len(centrality))
	for _, v := range centrality {
		values = append(values, v)
	}
	sort.Float64s(values)
	idx := int(q * float64(len(values)-1))
	return values[idx]
}

// summarize renders the one-sentence table description: archetype, dominant
// roles, and join partners.
func summarize(tbl *schema.TableProfile, tables map[string]*schema.TableProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a %s table", tbl.Name, tbl.Archetype)

	if keys := columnNames(tbl, schema.RoleKey); len(keys) > 0 {
		fmt.Fprintf(&b, "; keys: %s", strings.Join(keys, ", "))
	}
	if dates := columnNames(tbl, schema.RoleDate); len(dates) > 0 {
		fmt.Fprintf(&b, "; dates: %s", strings.Join(capped(dates, 3), ", "))
	}
	if metrics := columnNames(tbl, schema.RoleMetric); len(metrics) > 0 {
		fmt.Fprintf(&b, "; measures: %s", strings.Join(capped(metrics, 3), ", "))
	}
	if cats := columnNames(tbl, schema.RoleCategory); len(cats) > 0 {
		fmt.Fprintf(&b, "; top dims: %s", strings.Join(capped(cats, 3), ", "))
	}

	var joins []string
	for _, fk := range tbl.ForeignKeys {
		if _, ok := tables[fk.RemoteTableKey]; ok {
			_, name := schema.SplitTableKey(fk.RemoteTableKey)
			joins = append(joins, name)
		}
	}
	if len(joins) > 0 {
		sort.Strings(joins)
		fmt.Fprintf(&b, "; joins: %s", strings.Join(capped(joins, 4), ", "))
	}
	b.WriteString(".")
	return b.String()
}

func columnNames(tbl *schema.TableProfile, role schema.Role) []string {
	var out []string
	for _, c := range tbl.ColumnsByRole(role) {
		out = append(out, c.Name)
	}
	return out
}

func capped(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
