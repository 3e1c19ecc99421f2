package model

import "time"

// Cluster carries the fields shared by Events and Stories: a persisted,
// named group of members with a derived title, summary, image, concept
// profile, and time-decayed score. Membership is expressed as an id list
// (arena style) rather than a live object graph.
type Cluster struct {
	ID        string
	Active    bool
	RawScore  float64 // sum of member base scores
	Score     float64 // time-decayed, recomputed on demand
	Title     string
	Summary   string
	Image     string
	Text      string // aggregate text derived from members
	CreatedAt time.Time
	UpdatedAt time.Time
	Concepts  []ConceptAssociation
}

// Doc implements Clusterable for the shared cluster fields.
func (c *Cluster) Doc() Doc {
	return Doc{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Text:      c.Text,
		Image:     c.Image,
		Concepts:  c.Concepts,
	}
}

// Event is a cluster of Articles representing a single news event.
// MemberNodes are the hierarchy node ids of its member articles, kept
// sorted ascending; ArticleIDs are the matching persistent article ids.
type Event struct {
	Cluster
	MemberNodes []int
	ArticleIDs  []string
}

// Story is a cluster of Events representing a narrative arc over time.
type Story struct {
	Cluster
	EventIDs []string
}
