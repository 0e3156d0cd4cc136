package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/model"
)

var (
	assumeYes  bool
	moveTarget string
	flagClear  bool
)

// confirmFunc asks the user before a batch change. Tests replace it.
var confirmFunc = func(ctx context.Context, title string) (bool, error) {
	ok := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// batch runs query, confirms and applies fn to every hit.
type batch struct {
	verb  string
	apply func(e *engine.Engine, ids []string) error
	// keep drops ids that are already in the requested state.
	keep func(m *model.Message) bool
}

func (b batch) run(cmd *cobra.Command, query string) error {
	ctx := cmd.Context()
	c := *cfg
	c.Threading.Enabled = false
	e := newEngine(newClient(&c, logger), &c, logger)
	defer e.Close()
	return b.runWith(ctx, e, cmd.OutOrStdout(), query)
}

func (b batch) runWith(ctx context.Context, e *engine.Engine, w io.Writer, query string) error {
	if err := e.RunQuery(query); err != nil {
		return err
	}
	if _, err := await(ctx, e); err != nil {
		return err
	}
	ids := e.Store().CurrentOrder()
	p := newPrinter(w)
	if len(ids) == 0 {
		p.note("No messages match %s", query)
		return nil
	}
	if b.keep != nil {
		var todo []string
		for _, m := range e.Store().Messages() {
			if b.keep(m) {
				todo = append(todo, m.ID)
			}
		}
		if len(todo) == 0 {
			p.note("Nothing to change")
			return nil
		}
		ids = todo
	}

	p.rows(e.CurrentView(), false)
	if !assumeYes {
		ok, err := confirmFunc(ctx, fmt.Sprintf("%s %d message(s)?", b.verb, len(ids)))
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			p.note("Cancelled")
			return nil
		}
	}

	if err := b.apply(e, ids); err != nil {
		return err
	}
	out, err := await(ctx, e)
	if out.Status != "" {
		p.note("%s", out.Status)
	}
	var pf *engine.PartialFailure
	if errors.As(err, &pf) {
		for _, id := range pf.FailedIDs() {
			fmt.Fprintf(w, "failed: %s: %v\n", id, pf.Failed[id])
		}
	}
	return err
}

var archiveCmd = &cobra.Command{
	Use:   "archive <query>",
	Short: "Move matching messages to the archive folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batch{verb: "Archive", apply: func(e *engine.Engine, ids []string) error {
			return e.Archive(ids)
		}}.run(cmd, joinQuery(args))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <query>",
	Short: "Move matching messages to the trash folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batch{verb: "Delete", apply: func(e *engine.Engine, ids []string) error {
			return e.Delete(ids)
		}}.run(cmd, joinQuery(args))
	},
}

var moveCmd = &cobra.Command{
	Use:   "move --to <folder> <query>",
	Short: "Move matching messages to a folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if moveTarget == "" {
			return errors.New("move: --to is required")
		}
		return batch{verb: "Move to " + moveTarget, apply: func(e *engine.Engine, ids []string) error {
			return e.Move(ids, moveTarget)
		}}.run(cmd, joinQuery(args))
	},
}

var flagCmd = &cobra.Command{
	Use:   "flag <unread|new|replied|forwarded|important> <query>",
	Short: "Set or clear a flag on matching messages",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, err := model.ParseFlag(args[0])
		if err != nil {
			return err
		}
		if !flag.Settable() {
			return fmt.Errorf("flag %s: %w", flag, model.ErrFlagNotSettable)
		}
		verb := "Set " + flag.String() + " on"
		if flagClear {
			verb = "Clear " + flag.String() + " on"
		}
		value := !flagClear
		return batch{
			verb:  verb,
			apply: func(e *engine.Engine, ids []string) error { return e.ApplyFlag(ids, flag, value) },
			keep:  func(m *model.Message) bool { return m.Flags.Get(flag) != value },
		}.run(cmd, joinQuery(args[1:]))
	},
}

func init() {
	for _, c := range []*cobra.Command{archiveCmd, deleteCmd, moveCmd, flagCmd} {
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
		rootCmd.AddCommand(c)
	}
	moveCmd.Flags().StringVar(&moveTarget, "to", "", "destination folder, e.g. /Lists")
	flagCmd.Flags().BoolVar(&flagClear, "clear", false, "clear the flag instead of setting it")
}
