// Package vectorstore holds what the vector store backends share: point
// identity and the payload schema.
package vectorstore

import (
	"github.com/google/uuid"

	"legalrag/internal/domain"
)

// pointNamespace scopes the deterministic point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("legalrag/chunks"))

// Payload keys stored alongside each vector.
const (
	KeyDocumentTitle = "document_title"
	KeyDocumentType  = "document_type"
	KeyLevel1Title   = "livello_1_title"
	KeyLevel2Title   = "livello_2_title"
	KeyLevel3Title   = "livello_3_title"
	KeyArticle       = "articolo"
	KeyParagraph     = "comma"
	KeyText          = "testo_originale_comma"
	KeyKeywords      = "keywords"
	KeyTags          = "tags"
)

// IndexedKeys are the payload fields that get a keyword index.
var IndexedKeys = []string{
	KeyDocumentTitle, KeyDocumentType, KeyArticle,
	KeyLevel1Title, KeyLevel2Title, KeyLevel3Title, KeyTags,
}

// PointID derives a stable id from a chunk's position, so re-indexing the
// same paragraph overwrites its point.
func PointID(c domain.Chunk) string {
	name := c.DocumentType + "/" + c.ArticleID + "/" + c.ParagraphID
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// Payload flattens a chunk into the stored payload.
func Payload(c domain.Chunk) map[string]any {
	return map[string]any{
		KeyDocumentTitle: c.DocumentTitle,
		KeyDocumentType:  c.DocumentType,
		KeyLevel1Title:   c.Level1Title,
		KeyLevel2Title:   c.Level2Title,
		KeyLevel3Title:   c.Level3Title,
		KeyArticle:       c.ArticleID,
		KeyParagraph:     c.ParagraphID,
		KeyText:          c.Text,
		KeyKeywords:      toAny(c.Keywords),
		KeyTags:          toAny(c.Tags),
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
