// Package planner turns a free-text request into a structured query plan:
// relevant tables, a join plan, candidate columns, clarifications, and an
// optional SQL draft.
package planner

import (
	"sort"

	"github.com/schemalens/schemalens-engine/pkg/graph"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

// Expansion strategies.
const (
	ExpandFKFollowing = "fk_following"
	ExpandSimple      = "simple"
)

const (
	expandMaxDepth = 2

	// Utility weights for expansion candidates.
	utilityProximityWeight  = 0.5
	utilityArchetypeWeight  = 0.3
	utilityCentralityWeight = 0.2
)

// expand walks the FK graph outward from the seed tables and returns seeds
// plus the most useful neighbors, capped at maxTables. Seeds always survive
// the cap.
func expand(card *schema.Card, g *graph.Graph, seeds []models.TableSearchHit,
	maxTables int, strategy string, strictArchiveExclude bool) []models.RankedTable {

	if maxTables <= 0 {
		maxTables = 8
	}
	maxDepth := expandMaxDepth
	if strategy == ExpandSimple {
		maxDepth = 1
	}

	seedSet := make(map[string]bool, len(seeds))
	out := make([]models.RankedTable, 0, maxTables)
	for _, s := range seeds {
		seedSet[s.TableKey] = true
		tbl := card.Tables[s.TableKey]
		if tbl == nil {
			continue
		}
		out = append(out, models.RankedTable{
			TableKey:  s.TableKey,
			Score:     s.Score,
			Lexical:   s.Components["lexical"],
			Embedding: s.Components["embedding"],
			Origin:    models.OriginSeed,
			Archetype: string(tbl.Archetype),
			Summary:   tbl.Summary,
		})
	}

	seedArchetype := dominantSeedArchetype(card, seeds)

	// BFS from all seeds at once; depth is the distance to the nearest seed.
	depth := make(map[string]int, len(seedSet))
	frontier := make([]string, 0, len(seedSet))
	for key := range seedSet {
		depth[key] = 0
		frontier = append(frontier, key)
	}
	sort.Strings(frontier)

	var candidates []models.RankedTable
	for len(frontier) > 0 {
		var next []string
		for _, key := range frontier {
			if depth[key] >= maxDepth {
				continue
			}
			neighbors := sortedNeighbors(g, key)
			for _, n := range neighbors {
				if _, seen := depth[n]; seen {
					continue
				}
				depth[n] = depth[key] + 1
				tbl := card.Tables[n]
				if tbl == nil {
					continue
				}
				if tbl.IsArchive && strictArchiveExclude {
					continue
				}
				candidates = append(candidates, models.RankedTable{
					TableKey:       n,
					Score:          candidateUtility(tbl, seedArchetype, depth[n]),
					Centrality:     tbl.Centrality,
					ArchetypeBonus: archetypeBonus(tbl.Archetype, seedArchetype),
					Origin:         models.OriginExpanded,
					Archetype:      string(tbl.Archetype),
					Summary:        tbl.Summary,
				})
				next = append(next, n)
			}
		}
		frontier = next
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].TableKey < candidates[j].TableKey
	})
	for _, c := range candidates {
		if len(out) >= maxTables {
			break
		}
		out = append(out, c)
	}
	return out
}

// candidateUtility scores an expansion candidate. Proximity is relative to
// the nearest seed.
func candidateUtility(tbl *schema.TableProfile, seedArchetype schema.Archetype, d int) float64 {
	proximity := 1.0 / float64(d)
	return utilityProximityWeight*proximity +
		utilityArchetypeWeight*archetypeBonus(tbl.Archetype, seedArchetype) +
		utilityCentralityWeight*tbl.Centrality
}

// archetypeBonus favors the archetype that complements the seeds: dimensions
// around a fact seed, facts around a dimension seed.
func archetypeBonus(candidate, seed schema.Archetype) float64 {
	switch seed {
	case schema.ArchetypeFact:
		switch candidate {
		case schema.ArchetypeDimension:
			return 1.0
		case schema.ArchetypeBridge, schema.ArchetypeReference:
			return 0.7
		}
	case schema.ArchetypeDimension, schema.ArchetypeReference:
		switch candidate {
		case schema.ArchetypeFact:
			return 1.0
		case schema.ArchetypeBridge:
			return 0.7
		}
	}
	if candidate == schema.ArchetypeOperational {
		return 0.2
	}
	return 0.5
}

// dominantSeedArchetype is the archetype of the strongest seed.
func dominantSeedArchetype(card *schema.Card, seeds []models.TableSearchHit) schema.Archetype {
	best := schema.Archetype("")
	bestScore := -1.0
	for _, s := range seeds {
		tbl := card.Tables[s.TableKey]
		if tbl == nil {
			continue
		}
		if s.Score > bestScore {
			best, bestScore = tbl.Archetype, s.Score
		}
	}
	return best
}

func sortedNeighbors(g *graph.Graph, key string) []string {
	adj := g.Neighbors(key)
	out := make([]string, 0, len(adj))
	for n := range adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
