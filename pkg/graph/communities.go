package graph

import (
	"sort"

	"github.com/schemalens/schemalens-engine/pkg/schema"
)

// Communities detects table communities by greedy modularity optimization:
// every node starts alone, and the merge with the best modularity gain is
// applied until no merge improves modularity. Isolated nodes end up in
// singleton communities; MergeSmall deals with those afterwards.
func (g *Graph) Communities() [][]string {
	if len(g.nodes) == 0 {
		return nil
	}

	community := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		community[n] = i
	}

	m := g.totalWeight()
	if m == 0 {
		return g.membersOf(community)
	}

	for {
		bestGain := 0.0
		bestA, bestB := -1, -1

		// Candidate merges are pairs of communities linked by an edge.
		linked := make(map[[2]int]bool)
		for _, n := range g.nodes {
			for neighbor := range g.adj[n] {
				ca, cb := community[n], community[neighbor]
				if ca == cb {
					continue
				}
				if ca > cb {
					ca, cb = cb, ca
				}
				linked[[2]int{ca, cb}] = true
			}
		}
		if len(linked) == 0 {
			break
		}

		pairs := make([][2]int, 0, len(linked))
		for p := range linked {
			pairs = append(pairs, p)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i][0] != pairs[j][0] {
				return pairs[i][0] < pairs[j][0]
			}
			return pairs[i][1] < pairs[j][1]
		})

		for _, p := range pairs {
			gain := g.modularityGain(community, p[0], p[1], m)
			if gain > bestGain {
				bestGain = gain
				bestA, bestB = p[0], p[1]
			}
		}
		if bestA < 0 {
			break
		}
		for n, c := range community {
			if c == bestB {
				community[n] = bestA
			}
		}
	}

	return g.membersOf(community)
}

// modularityGain computes the modularity change of merging communities a and b.
func (g *Graph) modularityGain(community map[string]int, a, b int, m float64) float64 {
	var eAB, degA, degB float64
	for _, n := range g.nodes {
		switch community[n] {
		case a:
			degA += g.Degree(n)
			for neighbor, w := range g.adj[n] {
				if community[neighbor] == b {
					eAB += w
				}
			}
		case b:
			degB += g.Degree(n)
		}
	}
	return eAB/m - degA*degB/(2*m*m)
}

func (g *Graph) membersOf(community map[string]int) [][]string {
	byID := make(map[int][]string)
	for _, n := range g.nodes {
		byID[community[n]] = append(byID[community[n]], n)
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([][]string, 0, len(byID))
	for _, id := range ids {
		members := byID[id]
		sort.Strings(members)
		out = append(out, members)
	}
	return out
}

// MergeSmall folds communities smaller than minSize into the neighbor
// community they share the most edge weight with. Communities with no linked
// neighbor stay as they are; relaxing the threshold is better than inventing
// a connection.
func (g *Graph) MergeSmall(communities [][]string, minSize int) [][]string {
	if minSize <= 1 || len(communities) <= 1 {
		return communities
	}

	merged := make([][]string, len(communities))
	copy(merged, communities)

	// Keyed by first member; members stay sorted, and an isolated community
	// never gains edges from merges elsewhere.
	isolated := make(map[string]bool)

	for {
		smallest := -1
		for i, c := range merged {
			if len(c) > 0 && len(c) < minSize && !isolated[c[0]] {
				if smallest < 0 || len(c) < len(merged[smallest]) {
					smallest = i
				}
			}
		}
		if smallest < 0 {
			break
		}

		target := g.bestNeighborCommunity(merged, smallest)
		if target < 0 {
			// Nothing shares an edge with it; skip it and keep merging the rest.
			isolated[merged[smallest][0]] = true
			continue
		}
		merged[target] = append(merged[target], merged[smallest]...)
		sort.Strings(merged[target])
		merged = append(merged[:smallest], merged[smallest+1:]...)
	}
	return merged
}

func (g *Graph) bestNeighborCommunity(communities [][]string, idx int) int {
	member := make(map[string]int)
	for i, c := range communities {
		for _, n := range c {
			member[n] = i
		}
	}

	weights := make(map[int]float64)
	for _, n := range communities[idx] {
		for neighbor, w := range g.adj[n] {
			if other := member[neighbor]; other != idx {
				weights[other] += w
			}
		}
	}

	best, bestWeight := -1, 0.0
	ids := make([]int, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if weights[id] > bestWeight {
			best, bestWeight = id, weights[id]
		}
	}
	return best
}

// CoalesceArchives merges all communities whose members are majority-archive
// into a single community, keeping historical snapshots from fragmenting the
// area map.
func CoalesceArchives(communities [][]string, tables map[string]*schema.TableProfile) [][]string {
	var kept [][]string
	var archives []string

	for _, c := range communities {
		archiveCount := 0
		for _, key := range c {
			if tbl, ok := tables[key]; ok && tbl.IsArchive {
				archiveCount++
			}
		}
		if archiveCount*2 > len(c) {
			archives = append(archives, c...)
		} else {
			kept = append(kept, c)
		}
	}
	if len(archives) > 0 {
		sort.Strings(archives)
		kept = append(kept, archives)
	}
	return kept
}
