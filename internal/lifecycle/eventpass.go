package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/reconcile"
	"github.com/ppiankov/storyline/internal/store"
	"github.com/ppiankov/storyline/internal/vectorize"
)

// RunEventPass runs one full event-level clustering pass. Unclustered
// articles are fitted and reconciled in chunks of batchSize (0 means the
// configured default); each chunk's entity changes commit before the next
// chunk starts, so an abort between chunks loses nothing already done.
// The hierarchy snapshot is written once at the end; a failed save leaves
// node ids the on-disk snapshot never recorded, and the next pass detects
// and re-fits exactly those articles.
func (l *Lifecycle) RunEventPass(ctx context.Context, batchSize int) (*PassResult, error) {
	if batchSize <= 0 {
		batchSize = l.cfg.Clusters.BatchSize
	}

	// Node ids the loaded snapshot has never assigned were committed by a
	// run whose snapshot save failed. Clearing them returns those articles
	// to the unclustered set; their events pick up the re-fitted ids when
	// membership is loaded below.
	stranded, err := l.store.ResetArticleNodes(ctx, l.hier.Len())
	if err != nil {
		return nil, fmt.Errorf("reset stranded article nodes: %w", err)
	}
	if stranded > 0 {
		l.log.Warn("re-fitting articles with unsaved nodes", "articles", stranded)
	}

	res := &PassResult{}
	chunks := 0
	for {
		articles, err := l.store.UnclusteredArticles(ctx, batchSize)
		if err != nil {
			return nil, fmt.Errorf("load unclustered articles: %w", err)
		}
		if len(articles) == 0 {
			break
		}
		if err := l.fitArticles(ctx, articles); err != nil {
			return nil, err
		}
		if err := l.reconcileEvents(ctx, res); err != nil {
			return nil, err
		}
		chunks++
		l.log.Info("event chunk reconciled", "chunk", chunks, "articles", len(articles))
	}

	// A pass with no new arrivals still reconciles once: staleness and
	// deletions don't depend on fresh input.
	if chunks == 0 {
		if err := l.reconcileEvents(ctx, res); err != nil {
			return nil, err
		}
	}

	if err := l.saveHierarchy(); err != nil {
		return nil, err
	}
	l.log.Info("event pass complete",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted,
		"deactivated", res.Deactivated, "unchanged", res.Unchanged)
	return res, nil
}

// fitArticles builds feature vectors for a chunk of articles, inserts them
// into the hierarchy, and durably records the assigned node ids.
func (l *Lifecycle) fitArticles(ctx context.Context, articles []*model.Article) error {
	docs := make([]model.Doc, len(articles))
	ids := make([]string, len(articles))
	for i, a := range articles {
		docs[i] = a.Doc()
		ids[i] = a.ID
	}

	vectors := l.builder.Build(docs, vectorize.Weights{
		Time:    l.cfg.Vector.TimeWeight,
		Text:    l.cfg.Vector.TextWeight,
		Concept: l.cfg.Vector.ConceptWeight,
	})
	iids, err := l.hier.Fit(vectors, ids)
	if err != nil {
		return fmt.Errorf("fit vectors: %w", err)
	}

	nodes := make(map[string]int, len(articles))
	for i, a := range articles {
		a.SetNode(iids[i])
		nodes[a.ID] = iids[i]
	}
	if err := l.store.SetArticleNodes(ctx, nodes); err != nil {
		return fmt.Errorf("record node ids: %w", err)
	}
	return nil
}

// reconcileEvents extracts flat clusters at the event threshold, triages
// them against the active events, and commits the outcome in one
// transaction.
func (l *Lifecycle) reconcileEvents(ctx context.Context, res *PassResult) error {
	clusters := l.hier.Clusters(l.cfg.Clusters.EventThreshold)

	// Undersized clusters are "no signal yet": they never reach the
	// reconciler and never become entities.
	fresh := make([][]int, 0, len(clusters))
	for _, c := range clusters {
		if len(c) >= l.cfg.Clusters.MinEventMembers {
			fresh = append(fresh, c)
		}
	}

	events, err := l.store.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("load active events: %w", err)
	}
	existing := make([]reconcile.Existing[int], len(events))
	for i, ev := range events {
		existing[i] = reconcile.Existing[int]{ID: ev.ID, Members: ev.MemberNodes}
	}

	triage, err := reconcile.Triage(existing, fresh)
	if err != nil {
		return fmt.Errorf("triage events: %w", err)
	}

	changes := &store.EventChanges{}
	for _, cluster := range triage.Create {
		ev, err := l.newEvent(ctx, cluster)
		if err != nil {
			l.log.Warn("skipping event creation", "members", len(cluster), "error", err)
			continue
		}
		changes.Create = append(changes.Create, ev)
	}

	// Walk events in store order so updates apply deterministically.
	var pruneNodes []int
	now := l.Now()
	unchanged := make(map[string]bool, len(triage.Unchanged))
	for _, id := range triage.Unchanged {
		unchanged[id] = true
	}
	for _, ev := range events {
		if members, ok := triage.Update[ev.ID]; ok {
			if err := l.refreshEvent(ctx, ev, members, now); err != nil {
				l.log.Warn("skipping event update", "event", ev.ID, "error", err)
				continue
			}
			changes.Update = append(changes.Update, ev)
			continue
		}
		if unchanged[ev.ID] && now.Sub(ev.UpdatedAt) > l.cfg.Clusters.Staleness {
			changes.Deactivate = append(changes.Deactivate, ev.ID)
			pruneNodes = append(pruneNodes, ev.MemberNodes...)
		}
	}
	changes.Delete = triage.Delete

	if err := l.store.ApplyEventChanges(ctx, changes); err != nil {
		return fmt.Errorf("apply event changes: %w", err)
	}
	l.hier.Prune(pruneNodes)

	res.Created += len(changes.Create)
	res.Updated += len(changes.Update)
	res.Deleted += len(changes.Delete)
	res.Deactivated += len(changes.Deactivate)
	res.Unchanged = len(triage.Unchanged) - len(changes.Deactivate)
	return nil
}

// newEvent builds a brand-new event from a flat node cluster. Title and
// image start from the hierarchy's most representative member.
func (l *Lifecycle) newEvent(ctx context.Context, nodes []int) (*model.Event, error) {
	articles, err := l.articlesForNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("no stored articles for cluster")
	}

	now := l.Now()
	ev := &model.Event{
		Cluster: model.Cluster{
			ID:        newClusterID(),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	l.setEventMembers(ev, nodes, articles)

	if rep, err := l.hier.MostRepresentative(nodes); err == nil {
		if ext, ok := l.hier.External(rep); ok {
			for _, a := range articles {
				if a.ID == ext {
					ev.Title = a.Title
					ev.Image = a.Image
					break
				}
			}
		}
	}
	l.deriveEvent(ctx, ev, articles)
	if ev.Title == "" {
		ev.Title = articles[0].Title
	}
	return ev, nil
}

// refreshEvent replaces an event's membership and recomputes its derived
// fields: title, image, summary, concepts, scores, and timestamps.
func (l *Lifecycle) refreshEvent(ctx context.Context, ev *model.Event, nodes []int, now time.Time) error {
	articles, err := l.articlesForNodes(ctx, nodes)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		return fmt.Errorf("no stored articles for cluster")
	}

	l.setEventMembers(ev, nodes, articles)
	ev.UpdatedAt = now

	docs := make([]model.Doc, len(articles))
	titles := make([]string, len(articles))
	for i, a := range articles {
		docs[i] = a.Doc()
		titles[i] = a.Title
	}
	title, image := l.titleAndImage(docs, titles)
	if title != "" {
		ev.Title = title
	}
	if image != "" {
		ev.Image = image
	}
	l.deriveEvent(ctx, ev, articles)
	return nil
}

// deriveEvent recomputes the member-derived fields shared by creation and
// update: aggregate text, summary, concept profile, and scores.
func (l *Lifecycle) deriveEvent(ctx context.Context, ev *model.Event, articles []*model.Article) {
	docs := make([]model.Doc, len(articles))
	texts := make([]string, len(articles))
	titles := make([]string, len(articles))
	var raw float64
	for i, a := range articles {
		docs[i] = a.Doc()
		texts[i] = a.Text
		titles[i] = a.Title
		raw += a.Score
	}

	ev.Text = joinNonEmpty(titles)
	if summary, ok := l.summarize(ctx, texts); ok {
		ev.Summary = summary
	}
	ev.Concepts = l.aggregateConcepts(ctx, docs)
	ev.RawScore = raw
	ev.Score = l.scorer.Score(ev.RawScore, ev.UpdatedAt)
}

// setEventMembers records the node cluster and the matching article ids,
// both sorted for stable comparison on the next pass.
func (l *Lifecycle) setEventMembers(ev *model.Event, nodes []int, articles []*model.Article) {
	ev.MemberNodes = append([]int(nil), nodes...)
	sort.Ints(ev.MemberNodes)
	ev.ArticleIDs = make([]string, len(articles))
	for i, a := range articles {
		ev.ArticleIDs[i] = a.ID
	}
	sort.Strings(ev.ArticleIDs)
}

// articlesForNodes resolves a node cluster back to its stored articles,
// deduplicating external ids (a re-inserted article may own several
// historical nodes).
func (l *Lifecycle) articlesForNodes(ctx context.Context, nodes []int) ([]*model.Article, error) {
	exts, err := l.hier.Externals(nodes)
	if err != nil {
		return nil, fmt.Errorf("resolve node ids: %w", err)
	}
	seen := make(map[string]bool, len(exts))
	ids := make([]string, 0, len(exts))
	for _, ext := range exts {
		if !seen[ext] {
			seen[ext] = true
			ids = append(ids, ext)
		}
	}
	articles, err := l.store.ArticlesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cluster articles: %w", err)
	}
	return articles, nil
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
