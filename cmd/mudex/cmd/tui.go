package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/fileutil"
	"github.com/wesm/mudex/internal/scheduler"
	"github.com/wesm/mudex/internal/sync"
	"github.com/wesm/mudex/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal UI (default)",
	Long: `Open the interactive index over the inbox.

Navigation:
  ↑/k, ↓/j     Move up/down        enter   Open message
  i / o / u    Inbox/archive/drafts   s   Search
  t            Toggle threading     ^t      Show thread
  ^r           Re-index and refresh l       Run sync command

Mutations:
  m   Mark           x   Archive        d   Delete
  a   Flag bar (u/n/f sets, U/N/F clears)
  z   Undo the last change

When [sync] schedule is set, the sync command also runs on that
schedule while the UI is open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func runTUI(cmd *cobra.Command) error {
	// The UI owns the terminal, so logs go to a file.
	f, err := fileutil.SecureOpenFile(cfg.LogFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))

	client := newClient(cfg, log)
	e := newEngine(client, cfg, log)
	defer e.Close()

	syncer := sync.New(client, sync.Options{Command: cfg.Sync.Command}).WithLogger(log)
	var syncFn tui.SyncFunc
	if cfg.Sync.Command != "" {
		// The UI re-indexes through the engine once the command finishes.
		syncFn = func(ctx context.Context) error {
			_, err := syncer.Run(ctx)
			return err
		}
	}

	model := tui.New(e, tui.Options{
		Version: Version,
		Folders: tui.Folders{
			Inbox:   cfg.Folders.Inbox,
			Archive: cfg.Folders.Archive,
			Drafts:  cfg.Folders.Drafts,
			Trash:   cfg.Folders.Trash,
		},
		Columns: tui.Columns{
			Flags: cfg.Display.FlagsWidth,
			Date:  cfg.Display.DateWidth,
			From:  cfg.Display.FromWidth,
		},
		Colors: tui.Colors{
			Unread:    cfg.Colors.Unread,
			Important: cfg.Colors.Important,
			Marked:    cfg.Colors.Marked,
		},
		Sync: syncFn,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	if cfg.Sync.Command != "" && cfg.Sync.Schedule != "" {
		sched := scheduler.New(func(ctx context.Context, _ string) error {
			_, err := syncer.Run(ctx)
			p.Send(tui.SyncFinishedMsg{Err: err})
			return err
		}).WithLogger(log)
		if _, err := sched.AddFromConfig(cfg); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sched.Stop(ctx); err != nil {
				log.Warn("scheduler did not stop", "err", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
