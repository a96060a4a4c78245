package session

import (
	"fmt"
	"strings"

	"legalrag/internal/corpus"
	"legalrag/internal/domain"
)

const (
	contextSeparator = "\n\n---\n\n"
	excerptsHeading  = "**Relevant excerpts (ordered by relevance):**\n"
)

// AssembleContext builds the generation context for retrieved hits: the
// summaries of the sections they belong to, then the hits themselves in
// rank order. Section titles are taken most specific first and each title
// is used once.
func AssembleContext(hits []domain.SearchHit, c *corpus.Corpus) string {
	var summaries []string
	seen := map[string]struct{}{}
	for _, h := range hits {
		for _, title := range h.Chunk.SectionTitles() {
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
			if s, ok := c.Summary(title); ok && s != "" {
				summaries = append(summaries, fmt.Sprintf("**Section context (%s):**\n%s", title, s))
			}
		}
	}

	excerpts := make([]string, 0, len(hits))
	for _, h := range hits {
		excerpts = append(excerpts, fmt.Sprintf("Source: [%s] Art. %s, Comma %s.\nText: %s",
			h.Chunk.DocumentTitle, h.Chunk.ArticleID, h.Chunk.ParagraphID, h.Chunk.Text))
	}

	var b strings.Builder
	if len(summaries) > 0 {
		b.WriteString(strings.Join(summaries, contextSeparator))
		b.WriteString(contextSeparator)
	}
	b.WriteString(excerptsHeading)
	b.WriteString(strings.Join(excerpts, contextSeparator))
	return b.String()
}
