// Package memory is an in-process vector store for offline use and tests.
package memory

import (
	"context"
	"errors"
	"math"
	"sync"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	index     map[string]int
	vectors   [][]float32
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{index: map[string]int{}} }

// EnsureCollection fixes the vector dimension on first use.
func (s *Storage) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return errors.New("vector dimension mismatch")
	}
	s.dimension = dimension
	return nil
}

// Upsert stores normalized vectors, replacing points with the same id.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i, c := range chunks {
		v := normalize(vectors[i])
		id := vectorstore.PointID(c)
		if at, ok := s.index[id]; ok {
			s.chunks[at], s.vectors[at] = c, v
			continue
		}
		s.index[id] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, v)
	}
	return nil
}

// Search returns the topK most similar chunks that match filter.
func (s *Storage) Search(_ context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, errors.New("query vector dimension mismatch")
	}
	q := normalize(vector)

	var candidates []int
	var scores []float64
	for i := range s.vectors {
		if !filter.Match(s.chunks[i]) {
			continue
		}
		candidates = append(candidates, i)
		scores = append(scores, dot(s.vectors[i], q))
	}
	order := argsortDesc(scores)
	if topK > len(order) {
		topK = len(order)
	}
	results := make([]domain.SearchHit, 0, topK)
	for _, j := range order[:topK] {
		results = append(results, domain.SearchHit{Chunk: s.chunks[candidates[j]], Score: scores[j]})
	}
	return results, nil
}

// DeleteByDocumentType removes every point of one document.
func (s *Storage) DeleteByDocumentType(_ context.Context, documentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chunks []domain.Chunk
	var vectors [][]float32
	index := map[string]int{}
	for i, c := range s.chunks {
		if c.DocumentType == documentType {
			continue
		}
		index[vectorstore.PointID(c)] = len(chunks)
		chunks = append(chunks, c)
		vectors = append(vectors, s.vectors[i])
	}
	s.chunks, s.vectors, s.index = chunks, vectors, index
	return nil
}

// Len returns the number of stored points.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func normalize(v []float32) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// argsortDesc orders indexes by descending value; equal values keep
// insertion order so results are deterministic.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	mergesort(idxs, make([]int, len(idxs)), vals)
	return idxs
}

func mergesort(idxs, buf []int, vals []float64) {
	if len(idxs) < 2 {
		return
	}
	mid := len(idxs) / 2
	mergesort(idxs[:mid], buf[:mid], vals)
	mergesort(idxs[mid:], buf[mid:], vals)
	copy(buf, idxs)
	i, j, k := 0, mid, 0
	for i < mid && j < len(idxs) {
		if vals[buf[j]] > vals[buf[i]] {
			idxs[k] = buf[j]
			j++
		} else {
			idxs[k] = buf[i]
			i++
		}
		k++
	}
	for ; i < mid; i, k = i+1, k+1 {
		idxs[k] = buf[i]
	}
	for ; j < len(idxs); j, k = j+1, k+1 {
		idxs[k] = buf[j]
	}
}
