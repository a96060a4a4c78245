// Package resolver answers structural questions by walking document outlines.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"legalrag/internal/corpus"
	"legalrag/internal/domain"
	"legalrag/internal/structure"
)

// NotRecognized is the answer to a structural question with no usable entity.
const NotRecognized = "Structural query not recognized."

// DefaultAliases maps document names users say to canonical document types.
func DefaultAliases() map[string]string {
	return map[string]string{
		"costituzione": "costituzione",
		"regolamento":  "regolamento_parlamentare",
	}
}

// ResolveDocumentType maps a natural-language document name to its type.
// Canonical types resolve to themselves.
func ResolveDocumentType(aliases map[string]string, name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}
	if t, ok := aliases[key]; ok {
		return t, true
	}
	for _, t := range aliases {
		if t == key {
			return t, true
		}
	}
	return "", false
}

// Resolver answers structural intents. It holds no mutable state.
type Resolver struct {
	aliases map[string]string
}

// New creates a resolver. A nil alias map uses DefaultAliases.
func New(aliases map[string]string) *Resolver {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Resolver{aliases: aliases}
}

// Resolve returns the user-facing answer for a structural analysis.
// Articles take precedence over section names.
func (r *Resolver) Resolve(qa domain.QueryAnalysis, c *corpus.Corpus) string {
	docs := r.candidates(qa.Entities.Document, c)
	switch {
	case !qa.Entities.Article.IsZero():
		ids := qa.Entities.Article.IDs()
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			lines = append(lines, r.locateArticle(id, qa.Entities.Document, docs))
		}
		return strings.Join(lines, "\n")
	case qa.Entities.SectionName != "":
		return r.locateSection(qa.Entities.SectionName, qa.Entities.Document, docs)
	default:
		return NotRecognized
	}
}

func (r *Resolver) candidates(document string, c *corpus.Corpus) []domain.DocumentStructure {
	all := c.Documents()
	docType, ok := ResolveDocumentType(r.aliases, document)
	if !ok {
		return all
	}
	out := make([]domain.DocumentStructure, 0, 1)
	for _, d := range all {
		if d.DocumentType == docType {
			out = append(out, d)
		}
	}
	return out
}

func (r *Resolver) locateArticle(id, document string, docs []domain.DocumentStructure) string {
	for _, d := range docs {
		path, err := structure.FindPathToArticle(d, id)
		if errors.Is(err, structure.ErrNotFound) {
			continue
		}
		return fmt.Sprintf("Article %s is in the document '%s' under the path: %s.",
			id, d.DocumentTitle, strings.Join(path, " -> "))
	}
	return fmt.Sprintf("Article %s could not be found %s.", id, where(document))
}

func (r *Resolver) locateSection(section, document string, docs []domain.DocumentStructure) string {
	for _, d := range docs {
		node, err := structure.FindNodeByTitle(d, section)
		if errors.Is(err, structure.ErrNotFound) {
			continue
		}
		return fmt.Sprintf("In the document '%s', the section matching '%s' is: \"%s\".",
			d.DocumentTitle, section, node.Title)
	}
	return fmt.Sprintf("No section matching '%s' was found %s.", section, where(document))
}

func where(document string) string {
	if document == "" {
		return "in any document"
	}
	return fmt.Sprintf("in the document '%s'", document)
}
