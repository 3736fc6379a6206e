package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mybibliotheca/libris/internal/status"
)

// StatusCmd prints the state of the current or most recent batch run.
type StatusCmd struct{}

func (s *StatusCmd) Run() error {
	store := status.NewStore(viper.GetString("status.file"))

	run, err := store.Load()
	if err != nil {
		return err
	}

	if run.Running {
		fmt.Printf("Run active since %s\n", run.StartedAt.Format(time.RFC3339))
	} else if run.CompletedAt.IsZero() {
		fmt.Println("No enrichment run recorded.")
		return nil
	} else {
		fmt.Printf("Last run completed %s\n", run.CompletedAt.Format(time.RFC3339))
	}

	fmt.Printf("  processed: %d, enriched: %d, failed: %d\n", run.Processed, run.Enriched, run.Failed)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
	for _, title := range run.EnrichedBooks {
		fmt.Printf("  enriched: %s\n", title)
	}
	return nil
}
