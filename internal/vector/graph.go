package vector

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/coder/hnsw"
)

// GraphConfig tunes the HNSW graph.
type GraphConfig struct {
	M        int // max neighbors per node (default 16)
	EfSearch int // candidate list size during search (default 64)
	Seed     int64
}

// DefaultGraphConfig returns the parameters used for persisted graphs.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{M: 16, EfSearch: 64, Seed: 1}
}

// Graph is an HNSW graph over an Index, keyed by insertion position.
// It only proposes candidates; ranking is always done by Index.
type Graph struct {
	g    *hnsw.Graph[uint64]
	dims int
}

func newHNSW(cfg GraphConfig) *hnsw.Graph[uint64] {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	// A fixed seed makes level assignment, and so the graph, reproducible.
	g.Rng = rand.New(rand.NewSource(cfg.Seed))
	return g
}

// BuildGraph inserts every node of idx in order.
func BuildGraph(idx *Index, cfg GraphConfig) *Graph {
	g := newHNSW(cfg)
	for i := range idx.nodes {
		vec := make([]float32, len(idx.nodes[i].Vector))
		copy(vec, idx.nodes[i].Vector)
		normalizeInPlace(vec)
		g.Add(hnsw.MakeNode(uint64(i), vec))
	}
	return &Graph{g: g, dims: idx.dims}
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return g.g.Len() }

// Search returns the positions of up to n approximate nearest neighbors.
func (g *Graph) Search(query []float32, n int) []int {
	if g.g.Len() == 0 || n <= 0 {
		return nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	nodes := g.g.Search(q, n)
	positions := make([]int, 0, len(nodes))
	for _, node := range nodes {
		positions = append(positions, int(node.Key))
	}
	return positions
}

// Export writes the graph in coder/hnsw's binary format.
func (g *Graph) Export(w io.Writer) error {
	if err := g.g.Export(w); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	return nil
}

// ImportGraph reads a graph written by Export and checks it against idx.
func ImportGraph(r io.Reader, idx *Index, cfg GraphConfig) (*Graph, error) {
	g := newHNSW(cfg)
	// coder/hnsw Import needs an io.ByteReader
	if err := g.Import(bufio.NewReader(r)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	if g.Len() != idx.Len() {
		return nil, fmt.Errorf("graph holds %d nodes, index holds %d", g.Len(), idx.Len())
	}
	return &Graph{g: g, dims: idx.dims}, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
