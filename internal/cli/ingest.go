package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/worker"
)

var ingestWorkers int

// ingestArticle is the accepted input record. Published carries the
// article's publication time; a missing id is minted on ingest.
type ingestArticle struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Image     string    `json:"image"`
	Score     float64   `json:"score"`
	Published time.Time `json:"published"`
	Concepts  []string  `json:"concepts"`
}

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Load articles from a JSON file into the store",
	Long: `Ingest reads a JSON array of articles, extracts concept associations
for any article that doesn't carry its own, and saves the batch.
Ingested articles stay unclustered until the next run.

Input format:
  [{"id": "...", "title": "...", "text": "...", "image": "...",
    "score": 12.5, "published": "2016-01-02T15:04:05Z",
    "concepts": ["Hillary Clinton", "Reno"]}, ...]

Example:
  storyline ingest articles.json
  storyline ingest articles.json --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", runtime.NumCPU(), "concurrent concept extraction workers")
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var input []ingestArticle
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if len(input) == 0 {
		return fmt.Errorf("no articles in %s", args[0])
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	now := time.Now().UTC()
	articles := make([]*model.Article, len(input))
	for i, in := range input {
		a := &model.Article{
			ID:        in.ID,
			Title:     in.Title,
			Text:      in.Text,
			Image:     in.Image,
			Score:     in.Score,
			CreatedAt: in.Published.UTC(),
			UpdatedAt: in.Published.UTC(),
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if in.Published.IsZero() {
			a.CreatedAt = now
			a.UpdatedAt = now
		}
		for _, c := range in.Concepts {
			a.Concepts = append(a.Concepts, model.ConceptAssociation{Concept: c, Score: 1})
		}
		a.Concepts = model.NormalizeAssociations(a.Concepts)
		articles[i] = a
	}

	ctx := context.Background()
	annotator := worker.NewAnnotator(eng.life.Provider(), ingestWorkers, eng.log)
	annotated := annotator.Annotate(ctx, articles)

	if err := eng.store.SaveArticles(ctx, articles); err != nil {
		return fmt.Errorf("save articles: %w", err)
	}

	fmt.Printf("ingested %d articles (%d annotated)\n", len(articles), annotated)
	return nil
}
