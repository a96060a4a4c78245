package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is the routing class of a question.
type Intent string

const (
	IntentStructural Intent = "structural"
	IntentContent    Intent = "content"
	IntentGeneral    Intent = "general"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentStructural, IntentContent, IntentGeneral:
		return true
	}
	return false
}

// ArticleRef names either one article or several. The zero value names none.
type ArticleRef struct {
	ids  []string
	many bool
}

// SingleArticle references one article.
func SingleArticle(id string) ArticleRef {
	id = strings.TrimSpace(id)
	if id == "" {
		return ArticleRef{}
	}
	return ArticleRef{ids: []string{id}}
}

// ManyArticles references a list of articles. Blank identifiers are dropped.
func ManyArticles(ids ...string) ArticleRef {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return ArticleRef{}
	}
	return ArticleRef{ids: out, many: true}
}

// IsZero reports whether no article is referenced.
func (a ArticleRef) IsZero() bool { return len(a.ids) == 0 }

// IsMany reports whether the reference was given as a list.
func (a ArticleRef) IsMany() bool { return a.many }

// IDs returns a copy of the referenced identifiers.
func (a ArticleRef) IDs() []string { return append([]string(nil), a.ids...) }

func (a ArticleRef) String() string { return strings.Join(a.ids, ", ") }

func (a ArticleRef) MarshalJSON() ([]byte, error) {
	switch {
	case a.IsZero():
		return []byte("null"), nil
	case a.many:
		return json.Marshal(a.ids)
	default:
		return json.Marshal(a.ids[0])
	}
}

// UnmarshalJSON accepts a string, a number, a list of either, or null.
func (a *ArticleRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		ids := make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := FlexString(r)
			if err != nil {
				return fmt.Errorf("article: %w", err)
			}
			ids = append(ids, s)
		}
		*a = ManyArticles(ids...)
		return nil
	}
	s, err := FlexString(data)
	if err != nil {
		return fmt.Errorf("article: %w", err)
	}
	*a = SingleArticle(s)
	return nil
}

// Entities are the references extracted from a question. Empty fields are absent.
type Entities struct {
	Document    string     `json:"document,omitempty"`
	Article     ArticleRef `json:"article,omitzero"`
	SectionName string     `json:"section_name,omitempty"`
}

// QueryAnalysis is the router's classification of a question.
type QueryAnalysis struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
}

// GeneralAnalysis is the fallback used whenever classification fails.
func GeneralAnalysis() QueryAnalysis {
	return QueryAnalysis{Intent: IntentGeneral}
}
