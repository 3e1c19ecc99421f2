package vectorize

import (
	"time"

	"github.com/ppiankov/storyline/internal/model"
)

// Weights are the per-block scalars applied after normalization, in fixed
// block order: recency, text, concepts.
type Weights struct {
	Time    float64
	Text    float64
	Concept float64
}

// Builder assembles the fixed-layout feature vectors the hierarchy indexes:
// column 0 is the recency scalar, the next Text.Dims() columns the
// bag-of-words block, and the remaining Concepts.Dims() columns the concept
// block. Each block is L2-normalized per column across the whole batch and
// then scaled by its weight.
type Builder struct {
	Text     TextVectorizer
	Concepts ConceptVectorizer
	Epoch    time.Time
}

// NewBuilder creates a vector builder over the given vectorizers.
func NewBuilder(text TextVectorizer, concepts ConceptVectorizer, epoch time.Time) *Builder {
	return &Builder{Text: text, Concepts: concepts, Epoch: epoch}
}

// Dims returns the total vector length.
func (b *Builder) Dims() int {
	return 1 + b.Text.Dims() + b.Concepts.Dims()
}

// Build produces one feature vector per doc. Docs with empty text or no
// concepts get all-zero blocks; zero blocks are valid downstream input.
func (b *Builder) Build(docs []model.Doc, w Weights) []Vector {
	textDims := b.Text.Dims()
	conceptDims := b.Concepts.Dims()
	rows := make([]Vector, len(docs))

	for i, doc := range docs {
		row := make(Vector, 1+textDims+conceptDims)
		row[0] = doc.CreatedAt.Sub(b.Epoch).Seconds()
		copy(row[1:1+textDims], b.Text.Vectorize(doc.Text))
		copy(row[1+textDims:], b.Concepts.VectorizeConcepts(doc.ConceptIDs()))
		rows[i] = row
	}

	NormalizeColumns(rows, 0, 1)
	NormalizeColumns(rows, 1, 1+textDims)
	NormalizeColumns(rows, 1+textDims, 1+textDims+conceptDims)

	ScaleColumns(rows, 0, 1, w.Time)
	ScaleColumns(rows, 1, 1+textDims, w.Text)
	ScaleColumns(rows, 1+textDims, 1+textDims+conceptDims, w.Concept)

	return rows
}
