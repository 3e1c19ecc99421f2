// Package similarity implements the normalized [0,1] pairwise similarity
// between clusterables that drives title/image selection and cluster
// membership checks.
package similarity

import (
	"errors"
	"time"

	"github.com/ppiankov/storyline/internal/cache"
	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/vectorize"
)

// ErrEmptyCluster is returned when parent/child similarity is requested
// against a cluster with no members. That comparison is undefined; callers
// must not receive a silent 0 or 1.
var ErrEmptyCluster = errors.New("similarity: cluster has no members")

// Weights are the peer-similarity combination weights for the concept,
// text, and temporal terms.
type Weights struct {
	Concept float64
	Text    float64
	Time    float64
}

// DefaultWeights weight concepts and recency twice as heavily as raw text
// overlap.
func DefaultWeights() Weights {
	return Weights{Concept: 2, Text: 1, Time: 2}
}

// Model computes peer and parent/child similarity between Docs. Each doc's
// own two-part vectorization (concept presence, bag of words) is memoized
// in the cache; this pair is distinct from the batch feature vectors the
// hierarchy indexes.
type Model struct {
	text      vectorize.TextVectorizer
	concepts  vectorize.ConceptVectorizer
	weights   Weights
	idealTime time.Duration
	memo      cache.Cache
}

// NewModel creates a similarity model. memo may be nil to disable
// memoization.
func NewModel(text vectorize.TextVectorizer, concepts vectorize.ConceptVectorizer, weights Weights, idealTime time.Duration, memo cache.Cache) *Model {
	return &Model{
		text:      text,
		concepts:  concepts,
		weights:   weights,
		idealTime: idealTime,
		memo:      memo,
	}
}

// Similarity computes peer similarity between two docs: Jaccard-based
// similarity of their concept and text vectors plus a temporal proximity
// term, combined by the configured weights and normalized into [0,1].
func (m *Model) Similarity(a, b model.Doc) float64 {
	simConcept := partSimilarity(m.conceptVec(a), m.conceptVec(b))
	simText := partSimilarity(m.textVec(a), m.textVec(b))
	simTime := m.timeScore(a.CreatedAt, b.CreatedAt)

	total := m.weights.Concept + m.weights.Text + m.weights.Time
	return (m.weights.Concept*simConcept + m.weights.Text*simText + m.weights.Time*simTime) / total
}

// ClusterSimilarity computes parent/child similarity: the mean peer
// similarity of candidate against every member of the cluster.
func (m *Model) ClusterSimilarity(members []model.Doc, candidate model.Doc) (float64, error) {
	if len(members) == 0 {
		return 0, ErrEmptyCluster
	}
	var sum float64
	for _, member := range members {
		sum += m.Similarity(member, candidate)
	}
	return sum / float64(len(members)), nil
}

// MostSimilar returns the index of the doc with the highest mean similarity
// to the rest of the set, the pick used for title and image sources. Ties
// go to the earliest index. The empty set is an error.
func (m *Model) MostSimilar(docs []model.Doc) (int, error) {
	if len(docs) == 0 {
		return 0, ErrEmptyCluster
	}
	best, bestScore := 0, -1.0
	for i := range docs {
		var sum float64
		for j := range docs {
			if i == j {
				continue
			}
			sum += m.Similarity(docs[i], docs[j])
		}
		mean := 0.0
		if len(docs) > 1 {
			mean = sum / float64(len(docs)-1)
		}
		if mean > bestScore {
			best, bestScore = i, mean
		}
	}
	return best, nil
}

// partSimilarity converts Jaccard distance to similarity. Two all-zero
// vectors have undefined Jaccard distance; by policy they count as
// maximally dissimilar (similarity 0), not identical: contentless items
// must never cluster on their shared emptiness.
func partSimilarity(a, b vectorize.Vector) float64 {
	d, ok := vectorize.JaccardDistance(a, b)
	if !ok {
		return 0
	}
	return 1 - d
}

// timeScore is 1 inside the ideal window and decays hyperbolically with the
// elapsed gap beyond it.
func (m *Model) timeScore(a, b time.Time) float64 {
	elapsed := a.Sub(b)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	if elapsed < m.idealTime {
		return 1
	}
	return m.idealTime.Seconds() / elapsed.Seconds()
}

func (m *Model) textVec(d model.Doc) vectorize.Vector {
	key := cache.DocKey("text", d.ID, d.UpdatedAt)
	if m.memo != nil {
		if v, ok := m.memo.Get(key); ok {
			return v.(vectorize.Vector)
		}
	}
	v := m.text.Vectorize(d.Text)
	if m.memo != nil {
		m.memo.Set(key, v, 0)
	}
	return v
}

func (m *Model) conceptVec(d model.Doc) vectorize.Vector {
	key := cache.DocKey("concept", d.ID, d.UpdatedAt)
	if m.memo != nil {
		if v, ok := m.memo.Get(key); ok {
			return v.(vectorize.Vector)
		}
	}
	v := m.concepts.VectorizeConcepts(d.ConceptIDs())
	if m.memo != nil {
		m.memo.Set(key, v, 0)
	}
	return v
}
