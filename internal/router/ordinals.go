package router

import (
	"regexp"
	"strings"
)

var ordinals = map[string]string{
	"primo": "1", "secondo": "2", "terzo": "3", "quarto": "4", "quinto": "5",
	"sesto": "6", "settimo": "7", "ottavo": "8", "nono": "9", "decimo": "10",
	"prima": "1", "seconda": "2",
}

var ordinalWord = regexp.MustCompile(`(?i)\b(primo|secondo|terzo|quarto|quinto|sesto|settimo|ottavo|nono|decimo|prima|seconda)\b`)

// PreprocessOrdinals replaces Italian ordinal words with arabic digits,
// matching whole words regardless of case.
func PreprocessOrdinals(q string) string {
	return ordinalWord.ReplaceAllStringFunc(q, func(w string) string {
		return ordinals[strings.ToLower(w)]
	})
}
