package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paperchat/internal/bootstrap"
	"paperchat/internal/config"
	"paperchat/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "paperctl",
	Short: "Operate a PaperChat deployment from the command line",
	Long: `paperctl runs the document pipeline against the configured stores:
split a local PDF, ingest a stored document, or ask questions about it.`,
	SilenceUsage: true,
}

// openApp wires the same components as the server without consuming the
// ingest queue.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Prod: cfg.IsProd()})
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	app, err := bootstrap.New(ctx, cfg, lg.Named("paperctl"), bootstrap.Options{})
	if err != nil {
		_ = lg.Sync()
		return nil, err
	}
	return app, nil
}

// withApp runs fn with a wired application and releases it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil && app.Logger != nil {
			app.Logger.Warn("close resources failed", zap.Error(err))
		}
	}()
	return fn(ctx, app)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
