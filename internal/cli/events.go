package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var eventsLimit int

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the active events ranked by score",
	Long: `Events prints the currently active events, hottest first. The rank
mixes raw member popularity with recency, so a fresh small event can
outrank an old large one.

Example:
  storyline events
  storyline events --limit 50`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum events to list")
}

func runEvents(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	events, err := eng.store.TopEvents(context.Background(), eventsLimit)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("no active events")
		return nil
	}

	for i, ev := range events {
		concepts := make([]string, 0, 3)
		for _, c := range ev.Concepts {
			concepts = append(concepts, c.Concept)
			if len(concepts) == 3 {
				break
			}
		}
		fmt.Printf("%2d. [%8.4f] %s\n", i+1, ev.Score, ev.Title)
		fmt.Printf("    %d articles, updated %s", len(ev.ArticleIDs), ev.UpdatedAt.Format("2006-01-02 15:04"))
		if len(concepts) > 0 {
			fmt.Printf(", concepts: %s", strings.Join(concepts, ", "))
		}
		fmt.Println()
	}
	return nil
}
