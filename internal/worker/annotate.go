package worker

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/storyline/internal/llm"
	"github.com/ppiankov/storyline/internal/model"
)

// Annotator fills in missing concept associations on freshly ingested
// articles, running provider calls across a worker pool. Articles that
// already carry concepts are left alone.
type Annotator struct {
	provider llm.Provider
	workers  int
	log      *log.Logger
}

func NewAnnotator(provider llm.Provider, workers int, logger *log.Logger) *Annotator {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Annotator{provider: provider, workers: workers, log: logger}
}

// Annotate extracts concepts for every article that has none, mutating the
// articles in place. Per-article extraction failures are logged and
// skipped; the return value is the number of articles annotated.
func (a *Annotator) Annotate(ctx context.Context, articles []*model.Article) int {
	var pending []*model.Article
	for _, article := range articles {
		if len(article.Concepts) == 0 {
			pending = append(pending, article)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	pool := NewPool(a.workers)
	pool.Start()
	stop := context.AfterFunc(ctx, pool.Shutdown)
	defer stop()
	go func() {
		for _, article := range pending {
			pool.Submit(&annotateJob{provider: a.provider, article: article})
		}
		pool.Close()
	}()

	annotated := 0
	for result := range pool.Results() {
		r := result.(*annotateResult)
		if r.err != nil {
			a.log.Warn("concept extraction failed", "article", r.id, "error", r.err)
			continue
		}
		annotated++
	}
	return annotated
}

// annotateJob extracts concepts for a single article. Each job owns its
// article, so the mutation needs no locking.
type annotateJob struct {
	provider llm.Provider
	article  *model.Article
}

func (j *annotateJob) Execute(ctx context.Context) Result {
	res := &annotateResult{id: j.article.ID}
	concepts, err := j.provider.ExtractConcepts(ctx, j.article.Doc().Text)
	if err != nil {
		res.err = err
		return res
	}

	assocs := make([]model.ConceptAssociation, len(concepts))
	for i, c := range concepts {
		assocs[i] = model.ConceptAssociation{Concept: c, Score: 1}
	}
	j.article.Concepts = model.NormalizeAssociations(assocs)
	return res
}

type annotateResult struct {
	id  string
	err error
}

func (r *annotateResult) Err() error { return r.err }
