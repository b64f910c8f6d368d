// Package graph builds the FK graph over reflected tables, computes
// centrality, partitions the graph into subject areas, and classifies tables
// into archetypes.
package graph

import (
	"math"
	"sort"

	"github.com/schemalens/schemalens-engine/pkg/schema"
)

const (
	powerIterations = 100
	convergenceTol  = 1e-6
)

// Graph is an undirected weighted graph with tables as nodes and FK
// relationships as edges. Edge weight is the number of FK columns linking
// the two tables.
type Graph struct {
	nodes []string
	adj   map[string]map[string]float64
}

// Build constructs the graph from table profiles. FK edges whose target is
// not in the table set are ignored; card validation catches those upstream.
func Build(tables map[string]*schema.TableProfile) *Graph {
	g := &Graph{adj: make(map[string]map[string]float64, len(tables))}
	for key := range tables {
		g.nodes = append(g.nodes, key)
		g.adj[key] = make(map[string]float64)
	}
	sort.Strings(g.nodes)

	for key, tbl := range tables {
		for _, fk := range tbl.ForeignKeys {
			if _, ok := tables[fk.RemoteTableKey]; !ok || fk.RemoteTableKey == key {
				continue
			}
			g.adj[key][fk.RemoteTableKey]++
			g.adj[fk.RemoteTableKey][key]++
		}
	}
	return g
}

// Nodes returns the table keys in lexical order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Neighbors returns the adjacency map of one node.
func (g *Graph) Neighbors(key string) map[string]float64 {
	return g.adj[key]
}

// HasEdge reports whether two tables are directly linked.
func (g *Graph) HasEdge(a, b string) bool {
	_, ok := g.adj[a][b]
	return ok
}

// EdgeWeight returns the weight of the edge between two tables, or zero.
func (g *Graph) EdgeWeight(a, b string) float64 {
	return g.adj[a][b]
}

// Degree returns the weighted degree of a node.
func (g *Graph) Degree(key string) float64 {
	var d float64
	for _, w := range g.adj[key] {
		d += w
	}
	return d
}

// totalWeight is the sum of all edge weights (each edge counted once).
func (g *Graph) totalWeight() float64 {
	var total float64
	for _, neighbors := range g.adj {
		for _, w := range neighbors {
			total += w
		}
	}
	return total / 2
}

// Centrality computes eigenvector centrality by power iteration, falling
// back to degree centrality when the iteration does not converge. Scores are
// normalized to [0, 1].
func (g *Graph) Centrality() map[string]float64 {
	if len(g.nodes) == 0 {
		return map[string]float64{}
	}

	scores := make(map[string]float64, len(g.nodes))
	for _, n := range g.nodes {
		scores[n] = 1.0 / float64(len(g.nodes))
	}

	converged := false
	for range powerIterations {
		next := make(map[string]float64, len(g.nodes))
		for _, n := range g.nodes {
			var sum float64
			for neighbor, w := range g.adj[n] {
				sum += w * scores[neighbor]
			}
			next[n] = sum
		}

		var norm float64
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			// No edges at all; every table is equally (un)central.
			break
		}
		var delta float64
		for _, n := range g.nodes {
			next[n] /= norm
			delta += math.Abs(next[n] - scores[n])
		}
		scores = next
		if delta < convergenceTol {
			converged = true
			break
		}
	}

	if !converged {
		return g.DegreeCentrality()
	}
	return normalize(scores)
}

// DegreeCentrality scores each node by weighted degree, normalized to [0, 1].
func (g *Graph) DegreeCentrality() map[string]float64 {
	scores := make(map[string]float64, len(g.nodes))
	for _, n := range g.nodes {
		scores[n] = g.Degree(n)
	}
	return normalize(scores)
}

func normalize(scores map[string]float64) map[string]float64 {
	var max float64
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = v / max
	}
	return out
}
