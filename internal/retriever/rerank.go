package retriever

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"legalrag/internal/domain"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// QueryTokens returns the distinct lowercase words of query with at least
// minLen characters, in first-occurrence order.
func QueryTokens(query string, minLen int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if utf8.RuneCountInString(w) < minLen {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// KeywordMatches counts the (token, keyword) pairs where the token is a
// substring of the lowercased keyword.
func KeywordMatches(tokens, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, tok := range tokens {
			if strings.Contains(kw, tok) {
				n++
			}
		}
	}
	return n
}

// Rerank adds bonus per keyword match to every hit and sorts by final
// score, descending. Ties keep their input order. The input is not modified.
func Rerank(hits []domain.SearchHit, tokens []string, bonus float64) []domain.SearchHit {
	out := make([]domain.SearchHit, len(hits))
	for i, h := range hits {
		h.Bonus = bonus * float64(KeywordMatches(tokens, h.Chunk.Keywords))
		out[i] = h
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore() > out[j].FinalScore()
	})
	return out
}
