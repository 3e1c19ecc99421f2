// Demo program for the incremental clustering core
// This shows event formation and follow-up reconciliation without a store
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/storyline/internal/hierarchy"
	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/reconcile"
	"github.com/ppiankov/storyline/internal/vectorize"
)

type demoArticle struct {
	id       string
	title    string
	text     string
	concepts []string
	age      time.Duration
}

func main() {
	fmt.Println("=== Incremental Clustering Demo ===")
	fmt.Println()

	base := time.Date(2016, 9, 2, 12, 0, 0, 0, time.UTC)
	firstWave := []demoArticle{
		{"a1", "FBI releases Clinton probe files", "The FBI released a summary of its investigation into Hillary Clinton's use of a private email server.", []string{"FBI", "Hillary Clinton"}, 0},
		{"a2", "Clinton told agents she relied on staff", "Hillary Clinton told FBI agents she relied on the judgment of her staff when handling classified material.", []string{"FBI", "Hillary Clinton"}, time.Hour},
		{"a3", "Report details email server setup", "The report details how the private server in Chappaqua was set up for Hillary Clinton during her tenure.", []string{"Hillary Clinton", "Chappaqua"}, 2 * time.Hour},
		{"a4", "Hurricane Hermine lashes Florida coast", "Hurricane Hermine made landfall in Florida, knocking out power to thousands along the Gulf coast.", []string{"Hurricane Hermine", "Florida"}, time.Hour},
	}
	followUp := demoArticle{
		"a5", "Congress demands follow-up on probe files",
		"Members of Congress demanded further disclosures after the FBI released its Hillary Clinton investigation files.",
		[]string{"FBI", "Hillary Clinton", "Congress"}, 6 * time.Hour,
	}

	epoch := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	builder := vectorize.NewBuilder(
		vectorize.NewHashingTextVectorizer(100),
		vectorize.NewHashingConceptVectorizer(100),
		epoch,
	)
	index := hierarchy.New("euclidean", 0.9, 1.2)

	fit := func(articles []demoArticle) {
		docs := make([]model.Doc, len(articles))
		ids := make([]string, len(articles))
		for i, a := range articles {
			docs[i] = doc(a, base)
			ids[i] = a.id
		}
		vectors := builder.Build(docs, vectorize.Weights{Time: 1, Text: 1, Concept: 1})
		if _, err := index.Fit(vectors, ids); err != nil {
			panic(err)
		}
	}

	fmt.Printf("Fitting %d articles...\n", len(firstWave))
	fit(firstWave)
	clusters := index.Clusters(0.5)
	printClusters("Initial clusters", clusters, index)

	// Register the multi-member clusters as events, then reconcile the
	// follow-up wave against them.
	var existing []reconcile.Existing[int]
	for i, c := range clusters {
		if len(c) >= 2 {
			existing = append(existing, reconcile.Existing[int]{
				ID: fmt.Sprintf("event-%d", i+1), Members: c,
			})
		}
	}
	fmt.Printf("Registered %d events\n\n", len(existing))

	fmt.Println("Fitting follow-up article...")
	fit([]demoArticle{followUp})
	fresh := index.Clusters(0.5)
	printClusters("Clusters after follow-up", fresh, index)

	triage, err := reconcile.Triage(existing, keepLarge(fresh, 2))
	if err != nil {
		panic(err)
	}
	for id, members := range triage.Update {
		fmt.Printf("update %s -> %d members\n", id, len(members))
	}
	for _, members := range triage.Create {
		fmt.Printf("create new event with %d members\n", len(members))
	}
	for _, id := range triage.Unchanged {
		fmt.Printf("unchanged %s\n", id)
	}
	for _, id := range triage.Delete {
		fmt.Printf("delete %s\n", id)
	}

	fmt.Println()
	fmt.Println("=== Demo Complete ===")
}

func doc(a demoArticle, base time.Time) model.Doc {
	assocs := make([]model.ConceptAssociation, len(a.concepts))
	for i, c := range a.concepts {
		assocs[i] = model.ConceptAssociation{Concept: c, Score: 1}
	}
	at := base.Add(a.age)
	return model.Doc{
		ID:        a.id,
		CreatedAt: at,
		UpdatedAt: at,
		Text:      a.title + " " + a.text,
		Concepts:  model.NormalizeAssociations(assocs),
	}
}

func keepLarge(clusters [][]int, min int) [][]int {
	var out [][]int
	for _, c := range clusters {
		if len(c) >= min {
			out = append(out, c)
		}
	}
	return out
}

func printClusters(label string, clusters [][]int, index *hierarchy.Hierarchy) {
	fmt.Printf("%s:\n", label)
	fmt.Println(strings.Repeat("-", 40))
	for i, c := range clusters {
		members := make([]string, len(c))
		for j, iid := range c {
			ext, _ := index.External(iid)
			members[j] = ext
		}
		fmt.Printf("  %d: %s\n", i+1, strings.Join(members, ", "))
	}
	fmt.Println()
}
