// Package domain holds the types shared by every legalrag component.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StructureNode is one section of a document's table of contents.
type StructureNode struct {
	NodeID   string          `json:"node_id"`
	Level    int             `json:"level"`
	Title    string          `json:"title"`
	Articles ArticleList     `json:"articles"`
	Children []StructureNode `json:"children"`
}

// DocumentStructure is the hierarchical outline of one legal document.
type DocumentStructure struct {
	DocumentTitle string          `json:"document_title"`
	DocumentType  string          `json:"document_type"`
	Structure     []StructureNode `json:"structure"`
}

// ArticleList holds article identifiers. Artifacts may encode them as
// numbers or strings; both decode to trimmed strings.
type ArticleList []string

func (l *ArticleList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("articles: %w", err)
	}
	out := make(ArticleList, 0, len(raw))
	for _, r := range raw {
		s, err := FlexString(r)
		if err != nil {
			return fmt.Errorf("articles: %w", err)
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

// FlexString decodes a JSON string or number into its trimmed string form.
func FlexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

// Chunk is one paragraph (comma) of an article together with its
// provenance. JSON keys follow the upstream artifact format.
type Chunk struct {
	DocumentTitle string   `json:"document_title"`
	DocumentType  string   `json:"document_type"`
	Level1Title   string   `json:"livello_1_title,omitempty"`
	Level2Title   string   `json:"livello_2_title,omitempty"`
	Level3Title   string   `json:"livello_3_title,omitempty"`
	ArticleID     string   `json:"articolo"`
	ParagraphID   string   `json:"comma"`
	Text          string   `json:"testo_originale_comma"`
	Keywords      []string `json:"keywords"`
	Tags          []string `json:"tags"`
}

func (c *Chunk) UnmarshalJSON(data []byte) error {
	type plain Chunk
	aux := struct {
		*plain
		ArticleID   json.RawMessage `json:"articolo"`
		ParagraphID json.RawMessage `json:"comma"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if c.ArticleID, err = FlexString(aux.ArticleID); err != nil {
		return fmt.Errorf("articolo: %w", err)
	}
	if c.ParagraphID, err = FlexString(aux.ParagraphID); err != nil {
		return fmt.Errorf("comma: %w", err)
	}
	return nil
}

// SectionTitles returns the non-empty hierarchy titles, most specific first.
func (c Chunk) SectionTitles() []string {
	out := make([]string, 0, 3)
	for _, t := range []string{c.Level3Title, c.Level2Title, c.Level1Title} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SearchHit is a retrieved chunk with its vector score and lexical bonus.
type SearchHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Bonus float64 `json:"bonus"`
}

// FinalScore is the score used for ordering after reranking.
func (h SearchHit) FinalScore() float64 { return h.Score + h.Bonus }

// Filter restricts a vector search. Both conditions are ANDed; the article
// identifiers are ORed among themselves. The zero value matches everything.
type Filter struct {
	DocumentType string
	Articles     []string
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return f.DocumentType == "" && len(f.Articles) == 0 }

// Match evaluates the filter against a chunk's payload.
func (f Filter) Match(c Chunk) bool {
	if f.DocumentType != "" && c.DocumentType != f.DocumentType {
		return false
	}
	if len(f.Articles) == 0 {
		return true
	}
	for _, a := range f.Articles {
		if c.ArticleID == a {
			return true
		}
	}
	return false
}
