package model

import "time"

// Article is a leaf clusterable: one ingested news article.
//
// NodeID is the hierarchy-internal node id assigned when the article's
// feature vector is inserted into the index. It is nil until insertion.
// EventID is the id of the Event currently holding this article, empty when
// unassigned.
type Article struct {
	ID        string
	Title     string
	Text      string
	Image     string
	Score     float64 // base popularity score, summed into Event.RawScore
	CreatedAt time.Time
	UpdatedAt time.Time
	Concepts  []ConceptAssociation
	NodeID    *int
	EventID   string
}

// Doc implements Clusterable.
func (a *Article) Doc() Doc {
	return Doc{
		ID:        a.ID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		Text:      a.Title + " " + a.Text,
		Image:     a.Image,
		Concepts:  a.Concepts,
	}
}

// Node returns the hierarchy node id and whether it has been assigned.
func (a *Article) Node() (int, bool) {
	if a.NodeID == nil {
		return 0, false
	}
	return *a.NodeID, true
}

// SetNode records the hierarchy node id assigned at insertion.
func (a *Article) SetNode(iid int) {
	a.NodeID = &iid
}
