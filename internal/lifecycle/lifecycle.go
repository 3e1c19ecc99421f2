// Package lifecycle orchestrates one clustering pass: vector construction,
// hierarchy insertion, flat cluster extraction, reconciliation against the
// persisted events and stories, entity refresh, staleness handling, and
// hierarchy persistence.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ppiankov/storyline/internal/cache"
	"github.com/ppiankov/storyline/internal/hierarchy"
	"github.com/ppiankov/storyline/internal/llm"
	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/score"
	"github.com/ppiankov/storyline/internal/similarity"
	"github.com/ppiankov/storyline/internal/store"
	"github.com/ppiankov/storyline/internal/vectorize"
)

// Lifecycle owns the hierarchy instance and runs clustering passes against
// the store. It is single-writer: the caller guarantees mutual exclusion
// (one pass of one kind at a time) via an external lock.
type Lifecycle struct {
	cfg      *model.Config
	store    *store.Store
	hier     *hierarchy.Hierarchy
	builder  *vectorize.Builder
	sim      *similarity.Model
	scorer   score.Model
	provider llm.Provider
	memo     cache.Cache
	log      *log.Logger

	// Now is the clock used for staleness decisions and entity
	// timestamps; tests substitute a fixed clock.
	Now func() time.Time
}

// PassResult counts what one pass did to the persisted entities.
type PassResult struct {
	Created     int
	Updated     int
	Deleted     int
	Deactivated int
	Unchanged   int
}

// String renders the counts for CLI output.
func (r *PassResult) String() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d deactivated=%d unchanged=%d",
		r.Created, r.Updated, r.Deleted, r.Deactivated, r.Unchanged)
}

// New wires a lifecycle from configuration, an opened store, a loaded (or
// fresh) hierarchy, and an LLM provider.
func New(cfg *model.Config, st *store.Store, h *hierarchy.Hierarchy, provider llm.Provider, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.Default()
	}
	memo := cache.NewMemoryCache(time.Hour, 10*time.Minute)
	text := vectorize.NewHashingTextVectorizer(cfg.Vector.TextDims)
	concepts := vectorize.NewHashingConceptVectorizer(cfg.Vector.ConceptDims)

	return &Lifecycle{
		cfg:     cfg,
		store:   st,
		hier:    h,
		builder: vectorize.NewBuilder(text, concepts, cfg.Vector.Epoch),
		sim: similarity.NewModel(text, concepts, similarity.Weights{
			Concept: cfg.Similar.ConceptWeight,
			Text:    cfg.Similar.TextWeight,
			Time:    cfg.Similar.TimeWeight,
		}, cfg.Similar.IdealTime, memo),
		scorer:   score.NewModel(cfg.Scoring.Epoch, cfg.Scoring.DecaySeconds),
		provider: provider,
		memo:     memo,
		log:      logger,
		Now:      time.Now,
	}
}

// Hierarchy exposes the owned index (read-only use by the CLI).
func (l *Lifecycle) Hierarchy() *hierarchy.Hierarchy { return l.hier }

// Provider exposes the configured summarizer/extractor.
func (l *Lifecycle) Provider() llm.Provider { return l.provider }

// saveHierarchy persists the index snapshot. A pass must not report
// success when the snapshot failed to write, even if the relational
// entities committed: the next run re-fits already-clustered articles,
// which is safe, so the failure is surfaced as retryable.
func (l *Lifecycle) saveHierarchy() error {
	if err := l.hier.Save(l.cfg.Hierarchy.SnapshotPath); err != nil {
		return fmt.Errorf("persist hierarchy: %w", err)
	}
	return nil
}

// aggregateConcepts merges member concept associations into the cluster's
// profile. Each concept's raw weight is the sum of member scores minus the
// corpus commonness penalty, so ubiquitous concepts don't dominate cluster
// identity. Positive survivors are normalized to sum 1; if none are
// positive but some break even, they share uniform weight; otherwise the
// profile is empty. Never a division error.
func (l *Lifecycle) aggregateConcepts(ctx context.Context, members []model.Doc) []model.ConceptAssociation {
	sums := make(map[string]float64)
	var order []string
	for _, member := range members {
		for _, assoc := range member.Concepts {
			if _, seen := sums[assoc.Concept]; !seen {
				order = append(order, assoc.Concept)
			}
			sums[assoc.Concept] += assoc.Score
		}
	}

	var positive, level []model.ConceptAssociation
	var total float64
	for _, concept := range order {
		raw := sums[concept] - l.commonness(ctx, concept)
		switch {
		case raw > 0:
			positive = append(positive, model.ConceptAssociation{Concept: concept, Score: raw})
			total += raw
		case raw == 0:
			level = append(level, model.ConceptAssociation{Concept: concept})
		}
	}

	if len(positive) > 0 {
		for i := range positive {
			positive[i].Score /= total
		}
		model.SortAssociations(positive)
		return positive
	}
	if len(level) > 0 {
		for i := range level {
			level[i].Score = 1 / float64(len(level))
		}
		model.SortAssociations(level)
		return level
	}
	return nil
}

// commonness looks up the corpus-wide genericness of a concept, memoized
// for the duration of a pass. A lookup failure is a recoverable per-item
// condition: logged, treated as zero penalty.
func (l *Lifecycle) commonness(ctx context.Context, concept string) float64 {
	key := "commonness:" + concept
	if v, ok := l.memo.Get(key); ok {
		return v.(float64)
	}
	c, err := l.store.Commonness(ctx, concept)
	if err != nil {
		l.log.Warn("commonness lookup failed", "concept", concept, "error", err)
		return 0
	}
	l.memo.Set(key, c, 0)
	return c
}

// titleAndImage picks the title source (highest mean peer similarity among
// members) and, independently, the image source among members that have
// one. The two picks may differ.
func (l *Lifecycle) titleAndImage(docs []model.Doc, titles []string) (title, image string) {
	if len(docs) == 0 {
		return "", ""
	}
	if idx, err := l.sim.MostSimilar(docs); err == nil {
		title = titles[idx]
	}

	var withImage []model.Doc
	for _, d := range docs {
		if d.Image != "" {
			withImage = append(withImage, d)
		}
	}
	if len(withImage) > 0 {
		if idx, err := l.sim.MostSimilar(withImage); err == nil {
			image = withImage[idx].Image
		}
	}
	return title, image
}

// summarize asks the provider for a multi-text summary. Provider failure
// is per-item recoverable: logged and reported with ok=false so the caller
// keeps the previous summary.
func (l *Lifecycle) summarize(ctx context.Context, texts []string) (string, bool) {
	sentences, err := l.provider.MultiSummarize(ctx, texts)
	if err != nil {
		l.log.Warn("summarizer failed", "error", err)
		return "", false
	}
	return strings.Join(sentences, " "), true
}

// newClusterID mints an id for a freshly created event or story.
func newClusterID() string {
	return uuid.NewString()
}
