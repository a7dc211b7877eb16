package vector

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, vecs ...[]float32) *Index {
	t.Helper()
	idx := NewIndex("test-model", len(vecs[0]))
	for i, v := range vecs {
		require.NoError(t, idx.Add(Node{
			ID:         fmt.Sprintf("n%d", i),
			SourcePath: fmt.Sprintf("doc%d.txt", i%2),
			Text:       fmt.Sprintf("node %d", i),
			Vector:     v,
		}))
	}
	return idx
}

func TestIndex_Add_RejectsWrongDimension(t *testing.T) {
	idx := NewIndex("m", 3)

	err := idx.Add(Node{ID: "a", Vector: []float32{1, 2}})

	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
	assert.Zero(t, idx.Len())
}

func TestIndex_Search_RanksByCosine(t *testing.T) {
	// Given: a=[1,0,0], b=[0,1,0], c=[0.9,0.1,0]
	idx := newTestIndex(t,
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{0.9, 0.1, 0},
	)

	// When: searching near a with k=2
	matches, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)

	// Then: a then c
	require.Len(t, matches, 2)
	assert.Equal(t, "n0", matches[0].Node.ID)
	assert.Equal(t, "n2", matches[1].Node.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, 2, matches[1].Position)
}

func TestIndex_Search_TiesKeepInsertionOrder(t *testing.T) {
	// Given: four identical vectors
	v := []float32{0.5, 0.5}
	idx := newTestIndex(t, v, v, v, v)

	// When: searching with k=3
	matches, err := idx.Search([]float32{1, 1}, 3)
	require.NoError(t, err)

	// Then: the first three by insertion order are returned
	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, i, m.Position)
	}
}

func TestIndex_Search_KLargerThanIndex(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 0}, []float32{0, 1})

	matches, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = idx.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_Search_QueryDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 0})

	_, err := idx.Search([]float32{1, 0, 0}, 1)
	assert.ErrorAs(t, err, new(ErrDimensionMismatch))
}

func TestIndex_DocumentCount(t *testing.T) {
	idx := newTestIndex(t, []float32{1}, []float32{1}, []float32{1})
	assert.Equal(t, 2, idx.DocumentCount())
}

func TestCosine_ZeroVector(t *testing.T) {
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func randomIndex(t *testing.T, n, dims int, seed int64) *Index {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	idx := NewIndex("random", dims)
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		require.NoError(t, idx.Add(Node{ID: fmt.Sprintf("n%d", i), Vector: v}))
	}
	return idx
}

func TestIndex_SearchApprox_FindsExactNeighbour(t *testing.T) {
	// Given: 300 random vectors with a graph attached
	idx := randomIndex(t, 300, 16, 7)
	require.NoError(t, idx.AttachGraph(BuildGraph(idx, DefaultGraphConfig())))

	// When: querying with a stored vector
	target := idx.Node(123).Vector
	approx, err := idx.SearchApprox(target, 3)
	require.NoError(t, err)
	exact, err := idx.Search(target, 3)
	require.NoError(t, err)

	// Then: the top hit is the node itself, as with exact search
	require.NotEmpty(t, approx)
	assert.Equal(t, 123, approx[0].Position)
	assert.Equal(t, exact[0].Position, approx[0].Position)
}

func TestIndex_SearchApprox_TiesMatchExactSearch(t *testing.T) {
	tests := []struct {
		name  string
		query []float32
	}{
		{name: "zero query", query: []float32{0, 0, 0, 0}},
		{name: "duplicate vectors", query: []float32{0, 0, 1, 0}},
	}

	// Given: 300 nodes spread over four directions, so many scores tie
	idx := NewIndex("ties", 4)
	for i := 0; i < 300; i++ {
		v := make([]float32, 4)
		v[i%4] = 1
		require.NoError(t, idx.Add(Node{ID: fmt.Sprintf("n%d", i), Vector: v}))
	}
	require.NoError(t, idx.AttachGraph(BuildGraph(idx, DefaultGraphConfig())))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: searching with and without the graph
			exact, err := idx.Search(tt.query, 2)
			require.NoError(t, err)
			approx, err := idx.SearchApprox(tt.query, 2)
			require.NoError(t, err)

			// Then: ties resolve by insertion order either way
			assert.Equal(t, exact, approx)
		})
	}
}

func TestIndex_SearchApprox_WithoutGraphIsExact(t *testing.T) {
	idx := randomIndex(t, 50, 8, 3)
	q := idx.Node(10).Vector

	approx, err := idx.SearchApprox(q, 5)
	require.NoError(t, err)
	exact, err := idx.Search(q, 5)
	require.NoError(t, err)

	assert.Equal(t, exact, approx)
}

func TestGraph_ExportImport(t *testing.T) {
	// Given: a graph over 100 nodes
	idx := randomIndex(t, 100, 8, 11)
	g := BuildGraph(idx, DefaultGraphConfig())

	// When: exported and imported
	var buf bytes.Buffer
	require.NoError(t, g.Export(&buf))
	loaded, err := ImportGraph(&buf, idx, DefaultGraphConfig())
	require.NoError(t, err)

	// Then: it holds every node and still finds stored vectors
	assert.Equal(t, 100, loaded.Len())
	positions := loaded.Search(idx.Node(42).Vector, 5)
	assert.Contains(t, positions, 42)
}

func TestIndex_AttachGraph_RejectsSizeMismatch(t *testing.T) {
	small := randomIndex(t, 10, 4, 1)
	big := randomIndex(t, 20, 4, 1)

	err := small.AttachGraph(BuildGraph(big, DefaultGraphConfig()))
	assert.Error(t, err)
	assert.Nil(t, small.Graph())
}
