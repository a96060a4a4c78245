package router

import "fmt"

const classificationPrompt = `You analyse questions about Italian legal documents. Classify the user question and extract its key entities. Return a JSON object.

**INTENTS:**
- "content": questions about what one or more articles say (e.g. "cosa dice l'articolo 5?", "spiega gli articoli 3 e 4 della Costituzione").
- "structural": questions about how a document is organised (e.g. "quanti capi ha la parte 1 del regolamento?", "qual è il titolo del capo I?", "a quale parte appartiene l'art. 50?").
- "general": thematic questions naming no article or section (e.g. "parlami delle immunità parlamentari").

**ENTITIES:**
- "document": the document name (e.g. "costituzione", "regolamento"). Omit it when the question names none.
- "article": an article number or a list of numbers (e.g. "5", ["3", "4"], "V").
- "section_name": the name or number of a section (e.g. "parte 1", "principi fondamentali", "capo 1", "capo x", "titolo 2").

**EXAMPLES:**
- "spiega l'art. 1 della costituzione" -> {"intent": "content", "entities": {"article": "1", "document": "costituzione"}}
- "quanti titoli ha la parte 2 della costituzione?" -> {"intent": "structural", "entities": {"section_name": "parte 2", "document": "costituzione"}}
- "cosa dice l'art. 5 del regolamento?" -> {"intent": "content", "entities": {"article": "5", "document": "regolamento"}}
- "parlami della libertà di stampa" -> {"intent": "general", "entities": {}}

**Analyse the following question and output ONLY the JSON object:**
**User question:** %q`

// BuildPrompt renders the classification prompt for a question.
func BuildPrompt(question string) string {
	return fmt.Sprintf(classificationPrompt, question)
}
