// Package cmd holds the mudex command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/config"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/mu"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mudex",
	Short: "Terminal mail client over the mu index",
	Long: `mudex browses, threads and files mail stored in local maildirs that
are indexed by mu. Without a subcommand it opens the terminal UI.

Marks, flags, archive and delete act on maildir files directly and are
reported back to mu, so other mu clients see the same state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create home directory %s: %w", cfg.HomeDir, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mudex", Version)
	},
}

// ExecuteContext runs the root command; cancelling ctx stops running work.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newClient builds the mu client from the [mu] section.
func newClient(c *config.Config, log *slog.Logger) *mu.Client {
	client := mu.New(&mu.ExecRunner{Binary: c.Mu.Binary, MuHome: c.Mu.MuHome}).
		WithLogger(log).
		WithLazyIndex(c.Mu.LazyIndex)
	if c.Mu.Maildir != "" {
		client.WithMaildir(c.Mu.Maildir)
	}
	return client
}

// engineOptions maps the configuration onto engine parameters.
func engineOptions(c *config.Config) engine.Options {
	d := c.Display
	return engine.Options{
		Inbox:      c.Folders.Inbox,
		Archive:    c.Folders.Archive,
		Trash:      c.Folders.Trash,
		MaxResults: c.General.MaxMessages,
		Descending: c.General.SortDescending,
		Threading:  c.Threading.Enabled,
		Workers:    c.General.Workers,
		UndoDepth:  c.General.UndoDepth,
		Display: engine.Display{
			DateFormat:      d.DateFormat,
			ShortDateFormat: d.ShortDateFormat,
			TimeFormat:      d.TimeFormat,
			Glyphs: engine.Glyphs{
				Unread:     d.FlagUnread,
				Replied:    d.FlagReplied,
				Forwarded:  d.FlagForwarded,
				Important:  d.FlagImportant,
				Attachment: d.FlagAttach,
				Encrypted:  d.FlagEncrypted,
				Signed:     d.FlagSigned,
			},
			Now: time.Now,
		},
	}
}

// newEngine wires a client into an engine. The caller closes it.
func newEngine(client engine.IndexClient, c *config.Config, log *slog.Logger) *engine.Engine {
	return engine.New(client, engineOptions(c)).WithLogger(log)
}

// await applies the next completion, honouring cancellation.
func await(ctx context.Context, e *engine.Engine) (engine.Outcome, error) {
	out, err := e.Next(ctx)
	if err != nil {
		return out, err
	}
	return out, out.Err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <home>/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides MUDEX_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(versionCmd)
}
