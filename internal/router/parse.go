package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"legalrag/internal/domain"
)

var (
	errNoJSON = errors.New("no JSON object in classifier output")

	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// intentAliases maps the labels a classifier may emit to intents.
var intentAliases = map[string]domain.Intent{
	"structural":          domain.IntentStructural,
	"content":             domain.IntentContent,
	"general":             domain.IntentGeneral,
	"ricerca_strutturale": domain.IntentStructural,
	"ricerca_contenuto":   domain.IntentContent,
	"ricerca_generale":    domain.IntentGeneral,
}

// ExtractJSON returns the first well-formed JSON object in text. A fenced
// code block is preferred; otherwise every '{' is tried in order.
func ExtractJSON(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return m[1], nil
	}
	for i := strings.IndexByte(text, '{'); i >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
			return string(raw), nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", errNoJSON
}

type rawAnalysis struct {
	Intent   string                     `json:"intent"`
	Entities map[string]json.RawMessage `json:"entities"`
}

// ParseAnalysis decodes classifier output into a QueryAnalysis. Both the
// English field names and the Italian ones (documento, articolo,
// nome_sezione) are accepted.
func ParseAnalysis(text string) (domain.QueryAnalysis, error) {
	obj, err := ExtractJSON(text)
	if err != nil {
		return domain.QueryAnalysis{}, err
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return domain.QueryAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	intent, ok := intentAliases[strings.ToLower(strings.TrimSpace(raw.Intent))]
	if !ok {
		return domain.QueryAnalysis{}, fmt.Errorf("unknown intent %q", raw.Intent)
	}

	qa := domain.QueryAnalysis{Intent: intent}
	if v := pick(raw.Entities, "document", "documento"); v != nil {
		s, err := domain.FlexString(v)
		if err != nil {
			return domain.QueryAnalysis{}, fmt.Errorf("document: %w", err)
		}
		qa.Entities.Document = strings.ToLower(s)
	}
	if v := pick(raw.Entities, "article", "articolo"); v != nil {
		if err := json.Unmarshal(v, &qa.Entities.Article); err != nil {
			return domain.QueryAnalysis{}, err
		}
	}
	if v := pick(raw.Entities, "section_name", "nome_sezione"); v != nil {
		s, err := domain.FlexString(v)
		if err != nil {
			return domain.QueryAnalysis{}, fmt.Errorf("section_name: %w", err)
		}
		qa.Entities.SectionName = s
	}
	return qa, nil
}

func pick(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := m[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v
		}
	}
	return nil
}
