package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	eventsOnly  bool
	storiesOnly bool
	batchSize   int
	runTimeout  time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a clustering pass over the ingested articles",
	Long: `Run executes one full clustering pass:
- Fit unclustered articles into the similarity index, in batches
- Reconcile the flat event clusters against the known events
- Group the surviving events into stories
- Persist the index snapshot

Each batch commits before the next starts, so an interrupted run
loses at most the batch in flight.

Example:
  storyline run
  storyline run --events-only --batch-size 200
  storyline run --stories-only`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&eventsOnly, "events-only", false, "run only the event pass")
	runCmd.Flags().BoolVar(&storiesOnly, "stories-only", false, "run only the story pass")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 0, "articles per batch (0 uses the configured default)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall pass timeout")
}

func runRun(cmd *cobra.Command, args []string) error {
	if eventsOnly && storiesOnly {
		return fmt.Errorf("--events-only and --stories-only are mutually exclusive")
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()
	if err := eng.lock(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if !storiesOnly {
		res, err := eng.life.RunEventPass(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("event pass: %w", err)
		}
		fmt.Printf("events:  %s\n", res)
	}
	if !eventsOnly {
		res, err := eng.life.RunStoryPass(ctx)
		if err != nil {
			return fmt.Errorf("story pass: %w", err)
		}
		fmt.Printf("stories: %s\n", res)
	}
	return nil
}
