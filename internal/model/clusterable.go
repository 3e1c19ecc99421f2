package model

import (
	"sort"
	"time"
)

// ConceptAssociation links a concept identifier to its importance for one
// owning clusterable. Scores are non-negative weights; NormalizeAssociations
// rescales a set so it sums to 1.
type ConceptAssociation struct {
	Concept string  `json:"concept"`
	Score   float64 `json:"score"`
}

// Doc is the clusterable view shared by articles, events, and stories.
// Similarity and vectorization operate on Docs so the three entity types
// stay explicit (no reflection over attributes) while sharing one numeric
// model.
type Doc struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Text      string
	Image     string
	Concepts  []ConceptAssociation
}

// Clusterable is anything groupable by similarity: an Article, an Event, or
// a Story.
type Clusterable interface {
	// Doc returns the comparable view used for vectorization and similarity.
	Doc() Doc
}

// ConceptIDs returns the concept identifiers of a Doc in association order.
func (d Doc) ConceptIDs() []string {
	ids := make([]string, 0, len(d.Concepts))
	for _, a := range d.Concepts {
		ids = append(ids, a.Concept)
	}
	return ids
}

// NormalizeAssociations rescales association scores so they sum to 1.
// Zero-sum input is returned unchanged: a contentless item keeps its empty
// (or all-zero) associations rather than failing.
func NormalizeAssociations(assocs []ConceptAssociation) []ConceptAssociation {
	var total float64
	for _, a := range assocs {
		total += a.Score
	}
	if total <= 0 {
		return assocs
	}
	out := make([]ConceptAssociation, len(assocs))
	for i, a := range assocs {
		out[i] = ConceptAssociation{Concept: a.Concept, Score: a.Score / total}
	}
	return out
}

// SortAssociations orders associations by descending score, then concept id
// for stable output.
func SortAssociations(assocs []ConceptAssociation) {
	sort.Slice(assocs, func(i, j int) bool {
		if assocs[i].Score != assocs[j].Score {
			return assocs[i].Score > assocs[j].Score
		}
		return assocs[i].Concept < assocs[j].Concept
	})
}
