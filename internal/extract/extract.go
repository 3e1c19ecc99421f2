// Package extract provides the heuristic text utilities backing the
// fallback summarizer and concept extractor: sentence splitting and
// proper-noun concept detection. LLM-backed extraction lives in
// internal/llm; this package keeps the engine usable (and testable)
// without network collaborators.
package extract

import (
	"strings"
	"unicode"
)

// stopwords are capitalized words that never count as concepts.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "i": true, "it": true, "he": true, "she": true,
	"they": true, "we": true, "you": true, "this": true, "that": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// Sentences splits text into sentences on terminator punctuation followed
// by whitespace. It is a heuristic: abbreviations with trailing periods
// may over-split, which is acceptable for summarization fallback.
func Sentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Concepts extracts candidate concept identifiers from text: runs of
// capitalized words appearing past the start of a sentence, deduplicated
// in order of first appearance. Sentence-initial words are skipped because
// their capitalization carries no signal.
func Concepts(text string) []string {
	var concepts []string
	seen := make(map[string]bool)

	for _, sentence := range Sentences(text) {
		words := strings.Fields(sentence)
		var run []string
		flush := func() {
			if len(run) == 0 {
				return
			}
			concept := strings.Join(run, " ")
			run = nil
			if !seen[concept] {
				seen[concept] = true
				concepts = append(concepts, concept)
			}
		}
		for i, word := range words {
			trimmed := strings.TrimFunc(word, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
			if i == 0 || trimmed == "" || !startsUpper(trimmed) || stopwords[strings.ToLower(trimmed)] {
				flush()
				continue
			}
			run = append(run, trimmed)
		}
		flush()
	}
	return concepts
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
