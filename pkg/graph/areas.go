package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

// BuildSubjectAreas turns communities into labeled subject areas and stamps
// each member table with its area id. Area ids are content-addressed so an
// unchanged community keeps its id across rebuilds.
func BuildSubjectAreas(communities [][]string, tables map[string]*schema.TableProfile,
	centrality map[string]float64) map[string]*schema.SubjectArea {

	areas := make(map[string]*schema.SubjectArea, len(communities))
	for _, members := range communities {
		if len(members) == 0 {
			continue
		}
		id := schema.SubjectAreaID(members)
		area := &schema.SubjectArea{
			ID:        id,
			Name:      areaName(members, centrality),
			Summary:   areaSummary(members, tables),
			TableKeys: append([]string(nil), members...),
		}
		sort.Strings(area.TableKeys)
		areas[id] = area

		for _, key := range members {
			if tbl, ok := tables[key]; ok {
				tbl.SubjectAreaID = id
			}
		}
	}
	return areas
}

// areaName uses the highest-centrality member's normalized table name, with
// lexical order as the tie-break for determinism.
func areaName(members []string, centrality map[string]float64) string {
	best := members[0]
	for _, key := range members[1:] {
		if centrality[key] > centrality[best] ||
			(centrality[key] == centrality[best] && key < best) {
			best = key
		}
	}
	_, tableName := schema.SplitTableKey(best)
	return textutil.NormalizeIdentifier(tableName)
}

// areaSummary names the dominant tokens across member table names.
func areaSummary(members []string, tables map[string]*schema.TableProfile) string {
	counts := make(map[string]int)
	for _, key := range members {
		tbl, ok := tables[key]
		if !ok {
			continue
		}
		for _, tok := range textutil.Tokens(tbl.Name) {
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return fmt.Sprintf("%d tables around %s", len(members), strings.Join(tokens, ", "))
}
