package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/scheduler"
	"github.com/wesm/mudex/internal/sync"
)

var (
	syncCommand   string
	syncNoReindex bool
	syncWatch     bool
	syncSchedule  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the mail sync command, then re-index",
	Long: `Run the [sync] command (default "mbsync -a") through the shell and
re-index with mu when it succeeds.

With --watch the command runs on the [sync] schedule (or --schedule)
until interrupted, e.g.:
  mudex sync --watch --schedule '*/15 * * * *'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncCommand != "" {
			cfg.Sync.Command = syncCommand
		}
		if syncSchedule != "" {
			cfg.Sync.Schedule = syncSchedule
		}
		syncer := sync.New(newClient(cfg, logger), sync.Options{
			Command: cfg.Sync.Command,
			Reindex: cfg.Sync.Reindex && !syncNoReindex,
		}).WithLogger(logger)

		p := newPrinter(cmd.OutOrStdout())
		runOnce := func(ctx context.Context) error {
			sum, err := syncer.Run(ctx)
			if err != nil {
				return err
			}
			p.note("Synced in %s (%d output lines, reindexed: %v)",
				sum.Duration.Round(time.Millisecond), sum.Lines, sum.Reindexed)
			return nil
		}

		if !syncWatch {
			return runOnce(cmd.Context())
		}
		return watch(cmd.Context(), p, runOnce)
	},
}

// watch runs fn on the configured schedule until ctx is cancelled.
func watch(ctx context.Context, p *printer, fn func(context.Context) error) error {
	if cfg.Sync.Schedule == "" {
		return errors.New("sync --watch: no schedule configured (set [sync] schedule or --schedule)")
	}
	sched := scheduler.New(func(ctx context.Context, _ string) error {
		err := fn(ctx)
		if err != nil {
			logger.Error("scheduled sync failed", "err", err)
		}
		return err
	}).WithLogger(logger)
	if _, err := sched.AddFromConfig(cfg); err != nil {
		return err
	}
	sched.Start()
	p.note("Syncing on schedule %q, interrupt to stop", cfg.Sync.Schedule)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func init() {
	syncCmd.Flags().StringVar(&syncCommand, "command", "", "override the sync command")
	syncCmd.Flags().BoolVar(&syncNoReindex, "no-reindex", false, "skip re-indexing after the command")
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep running on the sync schedule")
	syncCmd.Flags().StringVar(&syncSchedule, "schedule", "", "cron expression for --watch")
	rootCmd.AddCommand(syncCmd)
}
