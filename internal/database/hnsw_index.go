package database

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// HNSWIndex wraps the HNSW graph for face descriptor search.
// The graph ranks by float32 Euclidean distance; exact float64 descriptors are kept
// alongside so callers compare with full precision.
type HNSWIndex struct {
	graph       *hnsw.Graph[string]
	descriptors map[string]facematch.Descriptor
	mu          sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		descriptors: make(map[string]facematch.Descriptor),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given candidates.
func (h *HNSWIndex) Build(candidates []facematch.Candidate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.descriptors = make(map[string]facematch.Descriptor, len(candidates))
	for _, c := range candidates {
		h.addLocked(c)
	}
}

// Add adds a single descriptor to the index.
func (h *HNSWIndex) Add(c facematch.Candidate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(c)
}

func (h *HNSWIndex) addLocked(c facematch.Candidate) {
	if len(c.Descriptor) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(c.ID, c.Descriptor.Float32()))
	h.descriptors[c.ID] = c.Descriptor
}

// Search finds up to k nearest descriptors ordered by exact Euclidean distance.
func (h *HNSWIndex) Search(query facematch.Descriptor, k int) ([]facematch.Candidate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil
	}

	type ranked struct {
		c    facematch.Candidate
		dist float64
	}
	var results []ranked
	for _, n := range h.graph.Search(query.Float32(), k) {
		d, ok := h.descriptors[n.Key]
		if !ok {
			continue
		}
		dist, err := facematch.EuclideanDistance(query, d)
		if err != nil {
			return nil, err
		}
		results = append(results, ranked{c: facematch.Candidate{ID: n.Key, Descriptor: d}, dist: dist})
	}
	slices.SortStableFunc(results, func(a, b ranked) int { return cmp.Compare(a.dist, b.dist) })

	out := make([]facematch.Candidate, len(results))
	for i, r := range results {
		out[i] = r.c
	}
	return out, nil
}

// Count returns the number of indexed descriptors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.descriptors)
}

// Save persists the graph to path. An empty index removes the file.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if path == "" {
		return nil
	}
	if h.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// Load imports a graph saved by Save and attaches the exact descriptors it indexes.
// Candidates missing from the saved graph are added so the index is never stale.
func (h *HNSWIndex) Load(path string, candidates []facematch.Candidate) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newGraph()
	// Import decodes with io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = g
	h.descriptors = make(map[string]facematch.Descriptor, len(candidates))
	for _, c := range candidates {
		if _, ok := g.Lookup(c.ID); ok {
			h.descriptors[c.ID] = c.Descriptor
			continue
		}
		h.addLocked(c)
	}
	if h.graph.Len() == 0 {
		return errors.New("loaded HNSW index is empty")
	}
	return nil
}
