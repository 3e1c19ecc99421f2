package vectorize

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// TextVectorizer turns raw text into a fixed-length bag-of-words vector.
// Corpus-fitted vectorizers live outside this module; implementations here
// only need stable output for identical input.
type TextVectorizer interface {
	Vectorize(text string) Vector
	Dims() int
}

// ConceptVectorizer turns a list of concept identifiers into a fixed-length
// presence vector. Association scores are deliberately not applied at this
// stage; weighted aggregation happens downstream.
type ConceptVectorizer interface {
	VectorizeConcepts(concepts []string) Vector
	Dims() int
}

// HashingTextVectorizer hashes lowercased word tokens into a fixed number
// of buckets and counts occurrences. It needs no training and produces
// stable vectors for identical text.
type HashingTextVectorizer struct {
	dims int
}

// NewHashingTextVectorizer creates a hashing bag-of-words vectorizer with
// the given dimensionality.
func NewHashingTextVectorizer(dims int) *HashingTextVectorizer {
	if dims <= 0 {
		dims = 100
	}
	return &HashingTextVectorizer{dims: dims}
}

// Dims returns the vector length.
func (v *HashingTextVectorizer) Dims() int { return v.dims }

// Vectorize produces the term-count vector for text. Empty text yields an
// all-zero vector, never an error.
func (v *HashingTextVectorizer) Vectorize(text string) Vector {
	out := make(Vector, v.dims)
	for _, tok := range Tokenize(text) {
		out[bucket(tok, v.dims)]++
	}
	return out
}

// HashingConceptVectorizer hashes concept identifiers into a fixed number
// of presence buckets.
type HashingConceptVectorizer struct {
	dims int
}

// NewHashingConceptVectorizer creates a hashing concept vectorizer with the
// given dimensionality.
func NewHashingConceptVectorizer(dims int) *HashingConceptVectorizer {
	if dims <= 0 {
		dims = 100
	}
	return &HashingConceptVectorizer{dims: dims}
}

// Dims returns the vector length.
func (v *HashingConceptVectorizer) Dims() int { return v.dims }

// VectorizeConcepts produces the presence vector for a concept id list.
// No concepts yields an all-zero vector.
func (v *HashingConceptVectorizer) VectorizeConcepts(concepts []string) Vector {
	out := make(Vector, v.dims)
	for _, c := range concepts {
		out[bucket(strings.ToLower(c), v.dims)] = 1
	}
	return out
}

// Tokenize splits text into lowercased word tokens (letters, digits, and
// embedded apostrophes).
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '\'' && b.Len() > 0:
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func bucket(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}
