package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"paperchat/internal/bootstrap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [document-id]",
	Short: "Run ingestion for a stored document and print its progress",
	Long: `Runs extraction, splitting and embedding in this process. A document
that already has its full chunk set is skipped; a partial one is resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return runIngest(ctx, cmd, app, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, documentID string) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := app.Progress.Subscribe(watchCtx, documentID)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range updates {
			cmd.Printf("%-11s %d/%d\n", p.State, p.Completed, p.Expected)
		}
	}()

	result, err := app.Orchestrator.Run(ctx, documentID)
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	switch {
	case result.Skipped:
		cmd.Printf("already ingested: %d chunks\n", result.Progress.Completed)
	case result.Resumed > 0:
		cmd.Printf("complete: %d chunks (%d resumed)\n", result.Progress.Completed, result.Resumed)
	default:
		cmd.Printf("complete: %d chunks\n", result.Progress.Completed)
	}
	return nil
}
