package analysis

import (
	"strings"
	"unicode"
)

const topWords = 50

var stopwords = map[string]bool{
	"de": true, "la": true, "que": true, "el": true, "en": true, "y": true, "a": true,
	"los": true, "se": true, "del": true, "las": true, "un": true, "por": true, "con": true,
	"no": true, "una": true, "su": true, "para": true, "es": true, "al": true, "lo": true,
	"como": true, "mas": true, "pero": true, "sus": true, "le": true, "ya": true, "o": true,
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
}

// wordCloud is the "nube_palabras" tool: the most frequent words of the Y text column,
// ignoring punctuation, stopwords and words of two letters or fewer.
func wordCloud(t *Table, req Request) (Result, error) {
	if req.Y == "" {
		return nil, inputErrorf("Seleccione la columna de texto.")
	}
	var words []string
	for _, cell := range t.Strings(req.Y) {
		if cell == "" {
			continue
		}
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
				return unicode.ToLower(r)
			}
			return -1
		}, cell)
		for _, w := range strings.Fields(clean) {
			if len([]rune(w)) > 2 && !stopwords[w] {
				words = append(words, w)
			}
		}
	}
	counts := valueCounts(words)
	if len(counts) > topWords {
		counts = counts[:topWords]
	}
	out := make([]map[string]any, len(counts))
	for i, c := range counts {
		out[i] = map[string]any{"text": c.Value, "value": c.Count}
	}
	return Result{"palabras": out}, nil
}
