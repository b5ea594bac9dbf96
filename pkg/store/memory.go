package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/xhad/newsqa/internal/types"
)

// MemoryIndex is a brute-force cosine similarity index.
type MemoryIndex struct {
	entries []Entry
	mags    []float64
	dim     int
}

// NewMemoryIndex precomputes magnitudes for entries. All embeddings must share
// one dimension.
func NewMemoryIndex(entries []Entry) (*MemoryIndex, error) {
	idx := &MemoryIndex{}
	if len(entries) == 0 {
		return idx, nil
	}
	dim, err := checkEntries(entries)
	if err != nil {
		return nil, err
	}
	idx.entries = append([]Entry(nil), entries...)
	idx.dim = dim
	idx.mags = make([]float64, len(entries))
	for i := range entries {
		idx.mags[i] = magnitude(entries[i].Embedding)
	}
	return idx, nil
}

func (m *MemoryIndex) Len() int       { return len(m.entries) }
func (m *MemoryIndex) Dimension() int { return m.dim }

// Search returns the top-k entries by cosine similarity. Ties keep insertion
// order so results are deterministic.
func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]Match, error) {
	if len(m.entries) == 0 {
		return nil, fmt.Errorf("%w: index is empty", types.ErrRetrieval)
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query dim %d != index dim %d", types.ErrRetrieval, len(query), m.dim)
	}
	qm := magnitude(query)
	if qm == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(m.entries))
	for i, e := range m.entries {
		if m.mags[i] == 0 {
			continue
		}
		s := dot(query, e.Embedding) / (qm * m.mags[i])
		if math.IsNaN(s) {
			continue
		}
		matches = append(matches, Match{Entry: e, Score: s})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })

	if k <= 0 || k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
