// Package vector holds the in-memory vector index: an ordered set of
// embedded nodes with exact and graph-assisted top-k retrieval.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// Node is one embedded unit of text.
type Node struct {
	ID         string
	SourcePath string // relative to input/
	Chunk      int    // position of the chunk within its document
	Title      string
	Text       string
	Vector     []float32
}

// Match is a ranked search hit. Position is the node's insertion position.
type Match struct {
	Node     *Node
	Position int
	Score    float32
}

// ErrDimensionMismatch indicates a vector whose length differs from the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Index is an ordered collection of nodes sharing one embedding model and
// dimension. It is built once and not mutated after it is published.
type Index struct {
	modelID string
	dims    int
	nodes   []Node
	graph   *Graph
}

// NewIndex creates an empty index for vectors of dims entries.
func NewIndex(modelID string, dims int) *Index {
	return &Index{modelID: modelID, dims: dims}
}

// Add appends a node, enforcing the index dimension.
func (x *Index) Add(n Node) error {
	if len(n.Vector) != x.dims {
		return ErrDimensionMismatch{Expected: x.dims, Got: len(n.Vector)}
	}
	x.nodes = append(x.nodes, n)
	return nil
}

// ModelID returns the embedding model that produced the vectors.
func (x *Index) ModelID() string { return x.modelID }

// Dimensions returns the uniform vector dimension.
func (x *Index) Dimensions() int { return x.dims }

// Len returns the number of nodes.
func (x *Index) Len() int { return len(x.nodes) }

// Nodes returns the nodes in insertion order. Callers must not modify them.
func (x *Index) Nodes() []Node { return x.nodes }

// Node returns the node at position i.
func (x *Index) Node(i int) *Node { return &x.nodes[i] }

// DocumentCount returns the number of distinct source paths.
func (x *Index) DocumentCount() int {
	seen := make(map[string]struct{})
	for i := range x.nodes {
		seen[x.nodes[i].SourcePath] = struct{}{}
	}
	return len(seen)
}

// Graph returns the attached approximate graph, or nil.
func (x *Index) Graph() *Graph { return x.graph }

// AttachGraph attaches a graph built over this index's nodes.
func (x *Index) AttachGraph(g *Graph) error {
	if g != nil && g.Len() != len(x.nodes) {
		return fmt.Errorf("graph holds %d nodes, index holds %d", g.Len(), len(x.nodes))
	}
	x.graph = g
	return nil
}

// Search scores every node against query by cosine similarity and returns
// the k best. Equal scores keep insertion order.
func (x *Index) Search(query []float32, k int) ([]Match, error) {
	if len(query) != x.dims {
		return nil, ErrDimensionMismatch{Expected: x.dims, Got: len(query)}
	}
	positions := make([]int, len(x.nodes))
	for i := range positions {
		positions[i] = i
	}
	return x.rank(query, positions, k), nil
}

// SearchApprox uses the attached graph to pick candidates, then re-scores
// them exactly. Without a graph it is Search. It also falls back to Search
// when the graph cannot decide the selection: a zero query vector, too few
// candidates, or a tie at the k-th place.
func (x *Index) SearchApprox(query []float32, k int) ([]Match, error) {
	if x.graph == nil || isZero(query) {
		return x.Search(query, k)
	}
	if len(query) != x.dims {
		return nil, ErrDimensionMismatch{Expected: x.dims, Got: len(query)}
	}
	if k <= 0 {
		return []Match{}, nil
	}
	candidates := x.graph.Search(query, max(k*8, 64))
	ranked := x.rank(query, candidates, k+1)
	if len(ranked) < min(k+1, len(x.nodes)) {
		return x.Search(query, k)
	}
	if len(ranked) > k {
		if ranked[k-1].Score == ranked[k].Score {
			return x.Search(query, k)
		}
		ranked = ranked[:k]
	}
	return ranked, nil
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func (x *Index) rank(query []float32, positions []int, k int) []Match {
	if k <= 0 || len(positions) == 0 {
		return []Match{}
	}
	matches := make([]Match, 0, len(positions))
	for _, p := range positions {
		matches = append(matches, Match{
			Node:     &x.nodes[p],
			Position: p,
			Score:    Cosine(query, x.nodes[p].Vector),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Position < matches[j].Position
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
