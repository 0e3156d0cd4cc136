// Package sync runs the external mail synchronization command (mbsync,
// offlineimap, ...) and brings the mu index up to date afterwards.
package sync

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrNoCommand is returned when no sync command is configured.
var ErrNoCommand = errors.New("no sync command configured")

// CommandRunner runs a shell command line. Tests replace it with a fake.
type CommandRunner interface {
	Run(ctx context.Context, command string) (output []byte, err error)
}

// ShellRunner runs commands through the platform shell.
type ShellRunner struct{}

// Run executes command with sh -c (cmd /C on Windows) and returns the
// combined output.
func (ShellRunner) Run(ctx context.Context, command string) ([]byte, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Indexer re-indexes the maildir. *mu.Client satisfies it.
type Indexer interface {
	ReindexAll(ctx context.Context) error
}

// CommandError reports a sync command that failed or was interrupted.
type CommandError struct {
	Command string
	Output  string // last non-empty output line
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("sync command %q: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("sync command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Options configures a Syncer.
type Options struct {
	Command string // shell command line, e.g. "mbsync -a"
	Reindex bool   // run ReindexAll after a successful command
}

// Summary describes one completed run.
type Summary struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Command   string
	Lines     int // output lines produced by the command
	Reindexed bool
}

// Syncer runs the sync command followed by a re-index.
type Syncer struct {
	runner  CommandRunner
	indexer Indexer
	opts    Options
	logger  *slog.Logger
}

// New creates a Syncer. indexer may be nil when Reindex is off.
func New(indexer Indexer, opts Options) *Syncer {
	return &Syncer{
		runner:  ShellRunner{},
		indexer: indexer,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	s.logger = logger
	return s
}

// WithRunner replaces the command runner.
func (s *Syncer) WithRunner(r CommandRunner) *Syncer {
	s.runner = r
	return s
}

// Run executes the sync command and, when configured, re-indexes. The
// index is left alone when the command fails.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	command := strings.TrimSpace(s.opts.Command)
	if command == "" {
		return nil, ErrNoCommand
	}
	summary := &Summary{StartTime: time.Now(), Command: command}
	s.logger.Info("sync started", "command", command)

	out, err := s.runner.Run(ctx, command)
	summary.Lines = countLines(out)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.logger.Error("sync command failed", "command", command, "error", err)
		return nil, &CommandError{Command: command, Output: lastLine(out), Err: err}
	}

	if s.opts.Reindex && s.indexer != nil {
		if err := s.indexer.ReindexAll(ctx); err != nil {
			return nil, fmt.Errorf("reindex after sync: %w", err)
		}
		summary.Reindexed = true
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	s.logger.Info("sync completed",
		"command", command,
		"lines", summary.Lines,
		"reindexed", summary.Reindexed,
		"duration", summary.Duration)
	return summary, nil
}

func countLines(out []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
