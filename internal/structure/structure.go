// Package structure answers position questions against a document outline.
package structure

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"legalrag/internal/domain"
)

// ErrNotFound is returned when an article or section is absent from a document.
var ErrNotFound = errors.New("structure: not found")

var (
	romanNumerals = map[string]string{
		"i": "1", "ii": "2", "iii": "3", "iv": "4", "v": "5",
		"vi": "6", "vii": "7", "viii": "8", "ix": "9", "x": "10",
	}
	romanWord = regexp.MustCompile(`\b(viii|vii|iii|ii|iv|ix|vi|i|v|x)\b`)

	// Upper-case numerals past X, which NormalizeTitle leaves untouched.
	largeRoman = regexp.MustCompile(`\b(?:X[IVX]+|XL[IVX]*|L[IVX]+)\b`)
)

// NormalizeArticleID canonicalizes an article identifier for comparison.
func NormalizeArticleID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// FindPathToArticle returns the titles from the root down to the deepest
// node that lists articleID. Nodes are visited depth-first in document
// order, so the first occurrence wins.
func FindPathToArticle(doc domain.DocumentStructure, articleID string) ([]string, error) {
	id := NormalizeArticleID(articleID)
	if id == "" {
		return nil, ErrNotFound
	}
	path, ok := findPath(doc.Structure, id)
	if !ok {
		return nil, ErrNotFound
	}
	return path, nil
}

func findPath(nodes []domain.StructureNode, id string) ([]string, bool) {
	for _, n := range nodes {
		if listsArticle(n, id) {
			return []string{n.Title}, true
		}
		if sub, ok := findPath(n.Children, id); ok {
			return append([]string{n.Title}, sub...), true
		}
	}
	return nil, false
}

func listsArticle(n domain.StructureNode, id string) bool {
	for _, a := range n.Articles {
		if NormalizeArticleID(a) == id {
			return true
		}
	}
	return false
}

// FindNodeByTitle returns the first node, depth-first, whose normalized
// title contains the normalized fragment.
func FindNodeByTitle(doc domain.DocumentStructure, fragment string) (domain.StructureNode, error) {
	needle := NormalizeTitle(fragment)
	if needle == "" {
		return domain.StructureNode{}, ErrNotFound
	}
	if n, ok := findNode(doc.Structure, needle); ok {
		return n, nil
	}
	return domain.StructureNode{}, ErrNotFound
}

func findNode(nodes []domain.StructureNode, needle string) (domain.StructureNode, bool) {
	for _, n := range nodes {
		if strings.Contains(NormalizeTitle(n.Title), needle) {
			return n, true
		}
		if found, ok := findNode(n.Children, needle); ok {
			return found, true
		}
	}
	return domain.StructureNode{}, false
}

// NormalizeTitle lowercases s, maps whole-word roman numerals I..X to
// arabic digits and strips whitespace and hyphens. It is idempotent.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = romanWord.ReplaceAllStringFunc(s, func(w string) string { return romanNumerals[w] })
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// UntranslatedNumerals lists roman numerals in title that NormalizeTitle
// does not map, so fragment matching against them needs the literal form.
func UntranslatedNumerals(title string) []string {
	return largeRoman.FindAllString(title, -1)
}
