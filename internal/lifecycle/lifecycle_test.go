package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/ppiankov/storyline/internal/hierarchy"
	"github.com/ppiankov/storyline/internal/llm"
	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/store"
)

var passBase = time.Date(2016, 9, 2, 12, 0, 0, 0, time.UTC)

// testEnv holds a store and config shared across passes; each pass gets a
// fresh Lifecycle that reloads the hierarchy snapshot, mirroring one CLI
// invocation per pass.
type testEnv struct {
	t     *testing.T
	cfg   *model.Config
	store *store.Store
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "storyline.db")
	cfg.Hierarchy.SnapshotPath = filepath.Join(dir, "hierarchy.db")
	cfg.Clusters.MinEventMembers = 1
	cfg.Clusters.MinStoryMembers = 1
	cfg.Clusters.EventThreshold = 1.0
	cfg.Clusters.StoryThreshold = 5.0
	// Concept overlap drives the test corpus; raw text is too noisy at
	// hashing dimensionality to pin down exact groupings.
	cfg.Vector.TextWeight = 0

	st, err := store.NewStore(cfg.Store.Path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return &testEnv{t: t, cfg: cfg, store: st, now: passBase}
}

// lifecycle builds a fresh pass runner over the shared store, reloading the
// snapshot from the previous pass.
func (e *testEnv) lifecycle() *Lifecycle {
	e.t.Helper()
	hier, err := hierarchy.LoadOrNew(e.cfg.Hierarchy.SnapshotPath, e.cfg.Hierarchy.Metric,
		e.cfg.Hierarchy.LowerLimitScale, e.cfg.Hierarchy.UpperLimitScale)
	if err != nil {
		e.t.Fatalf("LoadOrNew: %v", err)
	}
	l := New(e.cfg, e.store, hier, llm.NewHeuristicProvider(), nil)
	now := e.now
	l.Now = func() time.Time { return now }
	return l
}

func (e *testEnv) ingest(articles ...*model.Article) {
	e.t.Helper()
	if err := e.store.SaveArticles(context.Background(), articles); err != nil {
		e.t.Fatalf("SaveArticles: %v", err)
	}
}

func article(id, title, text string, concepts []string, at time.Time) *model.Article {
	assocs := make([]model.ConceptAssociation, len(concepts))
	for i, c := range concepts {
		assocs[i] = model.ConceptAssociation{Concept: c, Score: 1.0 / float64(len(concepts))}
	}
	return &model.Article{
		ID: id, Title: title, Text: text, Score: 1,
		CreatedAt: at, UpdatedAt: at, Concepts: assocs,
	}
}

func clintonCorpus() []*model.Article {
	return []*model.Article{
		article("c1", "FBI releases Clinton probe files",
			"The FBI released a summary of its investigation into the private email server.",
			[]string{"Hillary Clinton", "FBI"}, passBase),
		article("c2", "Clinton told agents she relied on staff",
			"She told agents she relied on the judgment of her staff for classified markings.",
			[]string{"Hillary Clinton", "FBI"}, passBase.Add(time.Hour)),
		article("c3", "Report details the email server setup",
			"The report details how the server was set up during her tenure as secretary.",
			[]string{"Hillary Clinton", "FBI"}, passBase.Add(2*time.Hour)),
		article("h1", "Hurricane lashes the Gulf coast",
			"The storm knocked out power to thousands along the coast after landfall.",
			[]string{"Hurricane Hermine", "Florida"}, passBase.Add(time.Hour)),
	}
}

func activeEventByID(t *testing.T, st *store.Store, articleID string) *model.Event {
	t.Helper()
	events, err := st.ActiveEvents(context.Background())
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	for _, ev := range events {
		for _, id := range ev.ArticleIDs {
			if id == articleID {
				return ev
			}
		}
	}
	t.Fatalf("no active event holds article %s", articleID)
	return nil
}

func TestEventPassCreatesEvents(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)

	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunEventPass: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("Created = %d, want 2 (related group + loner): %s", res.Created, res)
	}

	clinton := activeEventByID(t, env.store, "c1")
	wantIDs := []string{"c1", "c2", "c3"}
	if !reflect.DeepEqual(clinton.ArticleIDs, wantIDs) {
		t.Errorf("clinton event members = %v, want %v", clinton.ArticleIDs, wantIDs)
	}
	if clinton.RawScore != 3 {
		t.Errorf("clinton RawScore = %v, want 3", clinton.RawScore)
	}
	if clinton.Title == "" || clinton.Summary == "" {
		t.Errorf("derived fields missing: title=%q summary=%q", clinton.Title, clinton.Summary)
	}
	if len(clinton.Concepts) == 0 {
		t.Error("clinton event has no concept profile")
	}
	if clinton.Score == 0 {
		t.Error("clinton event score not computed")
	}

	loner := activeEventByID(t, env.store, "h1")
	if !reflect.DeepEqual(loner.ArticleIDs, []string{"h1"}) {
		t.Errorf("loner members = %v, want [h1]", loner.ArticleIDs)
	}

	if _, err := os.Stat(env.cfg.Hierarchy.SnapshotPath); err != nil {
		t.Errorf("hierarchy snapshot not written: %v", err)
	}
}

func TestEventPassIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)

	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 || res.Deactivated != 0 {
		t.Errorf("second pass changed entities: %s", res)
	}
	if res.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", res.Unchanged)
	}
}

func TestEventPassGrowsEvent(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)
	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	env.ingest(article("c4", "Congress demands follow-up on the files",
		"Lawmakers demanded further disclosures after the files were released.",
		[]string{"Hillary Clinton", "FBI"}, passBase.Add(6*time.Hour)))

	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("Updated = %d, want 1: %s", res.Updated, res)
	}
	if res.Created != 0 || res.Deleted != 0 {
		t.Errorf("unexpected changes: %s", res)
	}

	clinton := activeEventByID(t, env.store, "c4")
	want := []string{"c1", "c2", "c3", "c4"}
	if !reflect.DeepEqual(clinton.ArticleIDs, want) {
		t.Errorf("grown members = %v, want %v", clinton.ArticleIDs, want)
	}
	if clinton.RawScore != 4 {
		t.Errorf("grown RawScore = %v, want 4", clinton.RawScore)
	}
}

func TestEventPassStalenessDeactivation(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)
	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Past the staleness window with nothing new: every event is an exact
	// match, therefore stale.
	env.now = passBase.Add(100 * time.Hour)
	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("stale pass: %v", err)
	}
	if res.Deactivated != 2 {
		t.Fatalf("Deactivated = %d, want 2: %s", res.Deactivated, res)
	}
	if res.Unchanged != 0 {
		t.Errorf("Unchanged = %d, want 0 after deactivation", res.Unchanged)
	}

	events, err := env.store.ActiveEvents(context.Background())
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("active events after deactivation = %d, want 0", len(events))
	}

	// Deactivated member nodes are pruned, so a further pass sees nothing.
	res, err = env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("empty pass: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 || res.Deactivated != 0 {
		t.Errorf("post-prune pass changed entities: %s", res)
	}
}

func TestEventPassRetryAfterSaveFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)

	// A directory squatting on the snapshot path makes the save fail
	// after the chunk's entity changes have already committed.
	l := env.lifecycle()
	if err := os.Mkdir(env.cfg.Hierarchy.SnapshotPath, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := l.RunEventPass(context.Background(), 0); err == nil {
		t.Fatal("pass succeeded despite unwritable snapshot")
	}

	events, err := env.store.ActiveEvents(context.Background())
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("failed pass committed %d events, want 2", len(events))
	}

	// Retry with a writable path. The loaded hierarchy is empty, so every
	// node id from the failed run is stranded: the articles must be
	// re-fitted and the committed events kept, not deleted.
	if err := os.Remove(env.cfg.Hierarchy.SnapshotPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if res.Deleted != 0 {
		t.Fatalf("retry deleted %d events: %s", res.Deleted, res)
	}
	if res.Created != 0 {
		t.Errorf("retry duplicated events: %s", res)
	}
	if res.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", res.Unchanged)
	}

	clinton := activeEventByID(t, env.store, "c1")
	want := []string{"c1", "c2", "c3"}
	if !reflect.DeepEqual(clinton.ArticleIDs, want) {
		t.Errorf("recovered members = %v, want %v", clinton.ArticleIDs, want)
	}
	if _, err := os.Stat(env.cfg.Hierarchy.SnapshotPath); err != nil {
		t.Errorf("retry did not write the snapshot: %v", err)
	}
}

func TestEventPassDeletesDissolvedEvent(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)
	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// A leftover event whose members no longer exist in any fresh cluster.
	ghost := &model.Event{Cluster: model.Cluster{
		ID: "ghost", Active: true, Title: "ghost",
		CreatedAt: passBase.Add(-time.Hour), UpdatedAt: passBase.Add(-time.Hour),
	}}
	if err := env.store.ApplyEventChanges(context.Background(),
		&store.EventChanges{Create: []*model.Event{ghost}}); err != nil {
		t.Fatalf("create ghost: %v", err)
	}

	res, err := env.lifecycle().RunEventPass(context.Background(), 0)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1: %s", res.Deleted, res)
	}
	if res.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", res.Unchanged)
	}

	remaining, err := env.store.EventsByIDs(context.Background(), []string{"ghost"})
	if err != nil {
		t.Fatalf("EventsByIDs: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("ghost event still present after deletion")
	}
}

func TestStoryPassGroupsEvents(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)
	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("event pass: %v", err)
	}

	res, err := env.lifecycle().RunStoryPass(context.Background())
	if err != nil {
		t.Fatalf("RunStoryPass: %v", err)
	}
	// The loose story threshold spans both events.
	if res.Created != 1 {
		t.Fatalf("Created = %d, want 1: %s", res.Created, res)
	}

	stories, err := env.store.ActiveStories(context.Background())
	if err != nil {
		t.Fatalf("ActiveStories: %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("got %d stories, want 1", len(stories))
	}
	st := stories[0]
	if len(st.EventIDs) != 2 {
		t.Errorf("story members = %v, want 2 events", st.EventIDs)
	}
	if st.Title == "" {
		t.Error("story title not derived")
	}
	if st.RawScore != 4 {
		t.Errorf("story RawScore = %v, want 4 (sum of event raw scores)", st.RawScore)
	}
	events, err := env.store.EventsByIDs(context.Background(), st.EventIDs)
	if err != nil {
		t.Fatalf("EventsByIDs: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("story references %d resolvable events, want 2", len(events))
	}

	// Re-running the story pass leaves the story untouched.
	res, err = env.lifecycle().RunStoryPass(context.Background())
	if err != nil {
		t.Fatalf("second story pass: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 {
		t.Errorf("second story pass changed entities: %s", res)
	}
	if res.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", res.Unchanged)
	}
}

func TestStoryPassKeepsDistantEventsApart(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Clusters.StoryThreshold = 1.0
	env.ingest(clintonCorpus()...)
	if _, err := env.lifecycle().RunEventPass(context.Background(), 0); err != nil {
		t.Fatalf("event pass: %v", err)
	}

	res, err := env.lifecycle().RunStoryPass(context.Background())
	if err != nil {
		t.Fatalf("RunStoryPass: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("Created = %d, want 2 separate stories: %s", res.Created, res)
	}

	stories, err := env.store.ActiveStories(context.Background())
	if err != nil {
		t.Fatalf("ActiveStories: %v", err)
	}
	var sizes []int
	for _, st := range stories {
		sizes = append(sizes, len(st.EventIDs))
	}
	sort.Ints(sizes)
	if !reflect.DeepEqual(sizes, []int{1, 1}) {
		t.Errorf("story sizes = %v, want [1 1]", sizes)
	}
}

func TestAggregateConceptsCommonnessPenalty(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(clintonCorpus()...)
	l := env.lifecycle()

	docs := []model.Doc{
		{ID: "x", Concepts: []model.ConceptAssociation{
			{Concept: "Hillary Clinton", Score: 0.9},
			{Concept: "FBI", Score: 0.6},
		}},
		{ID: "y", Concepts: []model.ConceptAssociation{
			{Concept: "Hillary Clinton", Score: 0.8},
		}},
	}
	got := l.aggregateConcepts(context.Background(), docs)
	if len(got) == 0 {
		t.Fatal("no aggregate concepts")
	}
	if got[0].Concept != "Hillary Clinton" {
		t.Errorf("top concept = %q, want Hillary Clinton", got[0].Concept)
	}
	var total float64
	for _, a := range got {
		total += a.Score
	}
	if total < 0.999 || total > 1.001 {
		t.Errorf("concept scores sum to %v, want 1", total)
	}
}

func TestAggregateConceptsEmpty(t *testing.T) {
	env := newTestEnv(t)
	l := env.lifecycle()

	if got := l.aggregateConcepts(context.Background(), nil); got != nil {
		t.Errorf("aggregate of nothing = %v, want nil", got)
	}
}
