// Package corpus aggregates per-document artifacts into one read-only corpus.
package corpus

import (
	"maps"

	"legalrag/internal/domain"
)

// DocumentInfo is the canonical identity stamped onto a document's artifacts.
type DocumentInfo struct {
	Title string `yaml:"title" mapstructure:"title"`
	Type  string `yaml:"type" mapstructure:"type"`
}

// Registry maps an artifact folder name to its document identity.
type Registry map[string]DocumentInfo

// DefaultRegistry returns the folders shipped with the reference corpus.
func DefaultRegistry() Registry {
	return Registry{
		"a_cost":   {Title: "Costituzione della Repubblica Italiana", Type: "costituzione"},
		"b_regcam": {Title: "Regolamento della Camera dei Deputati", Type: "regolamento_parlamentare"},
	}
}

// Corpus is an immutable snapshot of structures, summaries and chunks.
// Callers must not modify the slices it returns.
type Corpus struct {
	documents []domain.DocumentStructure
	summaries map[string]string
	chunks    []domain.Chunk
}

// Source yields the corpus snapshot a turn should work on.
type Source interface {
	Current() *Corpus
}

// New builds a corpus from already-parsed parts.
func New(documents []domain.DocumentStructure, summaries map[string]string, chunks []domain.Chunk) *Corpus {
	return &Corpus{
		documents: documents,
		summaries: maps.Clone(summaries),
		chunks:    chunks,
	}
}

// Current makes a fixed corpus usable as a Source.
func (c *Corpus) Current() *Corpus { return c }

// Documents returns the document structures in aggregation order.
func (c *Corpus) Documents() []domain.DocumentStructure { return c.documents }

// Chunks returns every chunk in aggregation order.
func (c *Corpus) Chunks() []domain.Chunk { return c.chunks }

// Summary looks up the summary of a section by its exact title.
func (c *Corpus) Summary(title string) (string, bool) {
	s, ok := c.summaries[title]
	return s, ok
}

// Stats summarizes the corpus size.
type Stats struct {
	Documents int `json:"documents"`
	Summaries int `json:"summaries"`
	Chunks    int `json:"chunks"`
}

func (c *Corpus) Stats() Stats {
	return Stats{
		Documents: len(c.documents),
		Summaries: len(c.summaries),
		Chunks:    len(c.chunks),
	}
}
