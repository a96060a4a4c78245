package domain

import "context"

// EmbedMode selects the asymmetric embedding task.
type EmbedMode int

const (
	// ModeDocument embeds passages stored in the index.
	ModeDocument EmbedMode = iota
	// ModeQuery embeds user questions at retrieval time.
	ModeQuery
)

func (m EmbedMode) String() string {
	if m == ModeQuery {
		return "query"
	}
	return "document"
}

// Embedder converts free text into vectors. Texts must be embedded in the
// same mode family they are compared against: documents at index time,
// queries at retrieval time.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// Preparer is implemented by embedders that need a pass over the corpus
// before they can embed anything.
type Preparer interface {
	Prepare(corpus []string) error
}

// VectorStore answers similarity queries restricted by an optional filter.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]SearchHit, error)
}

// VectorIndex is the write side of a vector store, used by the index command.
type VectorIndex interface {
	VectorStore
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	DeleteByDocumentType(ctx context.Context, documentType string) error
}

// Classifier sends a routing prompt to a language model and returns its raw text.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Generator produces an answer from a system prompt, a context block and a question.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, context, question string) (string, error)
}
