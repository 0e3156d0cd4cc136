package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/oplog"
)

// derivedFlags lists the flags that change in the store together with
// flag: reading a message takes it out of new/, and a new message is
// unread.
func derivedFlags(flag model.Flag, value bool) []model.Flag {
	switch {
	case flag == model.FlagUnread && !value:
		return []model.Flag{model.FlagUnread, model.FlagNew}
	case flag == model.FlagNew && value:
		return []model.Flag{model.FlagNew, model.FlagUnread}
	}
	return []model.Flag{flag}
}

// setFlags applies flag=value and its derived changes to the store.
func (e *Engine) setFlags(id string, flag model.Flag, value bool) {
	for _, f := range derivedFlags(flag, value) {
		v := value
		if f != flag {
			v = f == model.FlagUnread
		}
		_, _ = e.store.SetFlag(id, f, v)
	}
	e.touch(id, nil)
}

// restoreFlags puts flag and its derived flags of id back to prev.
func (e *Engine) restoreFlags(id string, prev model.Flags, flag model.Flag, value bool) {
	for _, f := range derivedFlags(flag, value) {
		_, _ = e.store.SetFlag(id, f, prev.Get(f))
	}
	e.touch(id, nil)
}

type flagItem struct {
	id   string
	path string
	prev model.Flags
}

type renameResult struct {
	oldPaths map[string]string
	newPaths map[string]string
	failed   map[string]error
}

func newRenameResult() renameResult {
	return renameResult{
		oldPaths: make(map[string]string),
		newPaths: make(map[string]string),
		failed:   make(map[string]error),
	}
}

// ApplyFlag sets flag to value on ids. The store changes immediately; the
// files are renamed by one job whose completion records a single undo
// entry for the ids that succeeded and reverts the ones that failed. Ids
// that already have the value are skipped and unknown ids are reported
// as failed.
func (e *Engine) ApplyFlag(ids []string, flag model.Flag, value bool) error {
	if !flag.Settable() {
		return fmt.Errorf("set %s: %w", flag, model.ErrFlagNotSettable)
	}
	var items []flagItem
	missing := make(map[string]error)
	for _, id := range dedupe(ids) {
		m, err := e.store.Get(id)
		if err != nil {
			missing[id] = err
			continue
		}
		if m.Flags.Get(flag) == value {
			continue
		}
		items = append(items, flagItem{id: id, path: m.Path, prev: m.Flags})
	}
	if len(items) == 0 {
		if len(missing) > 0 {
			return &PartialFailure{Op: "set " + flag.String(), Failed: missing}
		}
		return nil
	}
	for _, it := range items {
		e.setFlags(it.id, flag, value)
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.id
	}
	seq := e.nextOp()
	client, paths := e.client, e.paths
	return e.submitLogged(Job{Name: "flag", Kind: JobMutation, Keys: keys, Run: func(ctx context.Context) Completion {
		res := newRenameResult()
		for _, it := range items {
			path := paths.get(it.id, it.path)
			np, err := client.SetFlag(ctx, path, flag, value)
			if err != nil {
				res.failed[it.id] = err
				continue
			}
			paths.set(it.id, np)
			res.oldPaths[it.id] = path
			res.newPaths[it.id] = np
		}
		return Completion{apply: func(e *Engine) Outcome {
			return e.applyFlagResult(seq, items, flag, value, res, missing)
		}}
	}})
}

func (e *Engine) applyFlagResult(seq uint64, items []flagItem, flag model.Flag, value bool, res renameResult, missing map[string]error) Outcome {
	e.unrecorded--
	change := oplog.FlagChange{
		Flag:     flag,
		Value:    value,
		Previous: make(map[string]model.Flags),
		OldPaths: res.oldPaths,
		NewPaths: res.newPaths,
	}
	for _, it := range items {
		if _, failed := res.failed[it.id]; failed {
			if e.store.Contains(it.id) {
				e.restoreFlags(it.id, it.prev, flag, value)
			}
			continue
		}
		change.IDs = append(change.IDs, it.id)
		change.Previous[it.id] = it.prev
		e.settle(it.id, res.newPaths[it.id])
	}

	out := Outcome{Kind: OutcomeFlag}
	if len(change.IDs) > 0 {
		entry := oplog.NewFlagChange(change)
		entry.Seq = seq
		e.log.Record(entry)
		out.Entry = &entry
		out.Status = entry.Describe()
	}
	if len(res.failed) > 0 || len(missing) > 0 {
		failed := make(map[string]error, len(res.failed)+len(missing))
		for id, err := range missing {
			failed[id] = err
		}
		for id, err := range res.failed {
			failed[id] = err
		}
		out.Err = &PartialFailure{Op: "set " + flag.String(), Succeeded: change.IDs, Failed: failed}
	}
	return out
}

type moveItem struct {
	id     string
	path   string
	folder string
	snap   *model.Message
}

// Archive moves ids to the archive folder.
func (e *Engine) Archive(ids []string) error { return e.Move(ids, e.opts.Archive) }

// Delete moves ids to the trash folder.
func (e *Engine) Delete(ids []string) error { return e.Move(ids, e.opts.Trash) }

// Move moves ids into folder. Confirmation is the caller's business. The
// job stops at the first failure; the ids moved before it stay moved and
// are covered by one undo entry. Moved ids leave the view unless the view
// lists folder itself.
func (e *Engine) Move(ids []string, folder string) error {
	folder = "/" + strings.Trim(folder, "/")
	if folder == "/" {
		return fmt.Errorf("move: no destination folder")
	}
	var items []moveItem
	missing := make(map[string]error)
	for _, id := range dedupe(ids) {
		m, err := e.store.Get(id)
		if err != nil {
			missing[id] = err
			continue
		}
		if m.Folder == folder {
			continue
		}
		items = append(items, moveItem{id: id, path: m.Path, folder: m.Folder, snap: m.Clone()})
	}
	if len(items) == 0 {
		if len(missing) > 0 {
			return &PartialFailure{Op: "move to " + folder, Failed: missing}
		}
		return fmt.Errorf("move to %s: %w", folder, ErrNoTargets)
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.id
	}
	seq := e.nextOp()
	client, paths := e.client, e.paths
	return e.submitLogged(Job{Name: "move", Kind: JobMutation, Keys: keys, Run: func(ctx context.Context) Completion {
		res := newRenameResult()
		var skipped []string
		for i, it := range items {
			path := paths.get(it.id, it.path)
			np, err := client.ApplyMove(ctx, path, folder)
			if err != nil {
				res.failed[it.id] = err
				for _, rest := range items[i+1:] {
					skipped = append(skipped, rest.id)
				}
				break
			}
			paths.set(it.id, np)
			res.oldPaths[it.id] = path
			res.newPaths[it.id] = np
		}
		return Completion{apply: func(e *Engine) Outcome {
			return e.applyMoveResult(seq, items, folder, res, skipped, missing)
		}}
	}})
}

func (e *Engine) applyMoveResult(seq uint64, items []moveItem, folder string, res renameResult, skipped []string, missing map[string]error) Outcome {
	e.unrecorded--
	mv := oplog.Move{
		ToFolder:    folder,
		FromFolders: make(map[string]string),
		OldPaths:    res.oldPaths,
		NewPaths:    res.newPaths,
		Records:     make(map[string]*model.Message),
	}
	leaves := e.displayFolder() != folder
	var gone []string
	for _, it := range items {
		np, ok := res.newPaths[it.id]
		if !ok {
			continue
		}
		mv.IDs = append(mv.IDs, it.id)
		mv.FromFolders[it.id] = it.folder

		snap := it.snap.Clone()
		if m, err := e.store.Get(it.id); err == nil {
			snap = m.Clone()
		}
		mv.Records[it.id] = snap.Clone()

		moved := snap.Clone()
		moved.Path, moved.Folder = np, folder
		if !e.store.Contains(it.id) {
			e.touch(it.id, moved)
			continue
		}
		if leaves {
			gone = append(gone, it.id)
			e.touch(it.id, moved)
			continue
		}
		_ = e.store.SetPath(it.id, np, folder)
		e.touch(it.id, nil)
	}
	if len(gone) > 0 {
		mv.Generation = e.store.Generation()
		mv.Positions = e.store.Remove(gone...)
		e.relayout()
	}

	out := Outcome{Kind: OutcomeMove}
	if len(mv.IDs) > 0 {
		entry := oplog.NewMove(mv)
		entry.Seq = seq
		e.log.Record(entry)
		out.Entry = &entry
		out.Status = entry.Describe()
	}
	if len(res.failed) > 0 || len(missing) > 0 {
		failed := make(map[string]error, len(res.failed)+len(missing))
		for id, err := range missing {
			failed[id] = err
		}
		for id, err := range res.failed {
			failed[id] = err
		}
		out.Err = &PartialFailure{Op: "move to " + folder, Succeeded: mv.IDs, Failed: failed, Skipped: skipped}
	}
	return out
}

// Undo reverses the most recent logged operation. It returns
// oplog.ErrNothingToUndo on an empty log. While logged operations issued
// earlier are still running, the undo waits until they are recorded and
// reports through a later Outcome instead.
func (e *Engine) Undo() error {
	if e.unrecorded == 0 && e.deferredUndos == 0 {
		entry, err := e.log.UndoLast()
		if err != nil {
			return err
		}
		return e.revert(entry)
	}
	limit := e.nextOp()
	// A query job runs only after every earlier mutation, so their
	// completions are applied before this one.
	err := e.submit(Job{Name: "undo", Kind: JobQuery, Run: func(context.Context) Completion {
		return Completion{apply: func(e *Engine) Outcome {
			e.deferredUndos--
			out := Outcome{Kind: OutcomeUndo, Pending: true}
			entry, err := e.log.UndoBefore(limit)
			if err == nil {
				err = e.revert(entry)
			}
			if err != nil {
				out.Err, out.Pending = err, false
			}
			return out
		}}
	}})
	if err != nil {
		return err
	}
	e.deferredUndos++
	return nil
}

func (e *Engine) revert(entry oplog.Entry) error {
	switch {
	case entry.Flag != nil:
		return e.undoFlag(entry)
	case entry.Move != nil:
		return e.undoMove(entry)
	}
	return nil
}

// undoFlag restores the previous values. A file still at the path the
// change left it at is renamed back exactly; otherwise the flag alone is
// reverted on its current path.
func (e *Engine) undoFlag(entry oplog.Entry) error {
	fc := entry.Flag
	fallback := make(map[string]string, len(fc.IDs))
	current := make(map[string]model.Flags, len(fc.IDs))
	for _, id := range fc.IDs {
		fallback[id] = fc.NewPaths[id]
		if m, err := e.store.Get(id); err == nil {
			fallback[id] = m.Path
			current[id] = m.Flags
			e.restoreFlags(id, fc.Previous[id], fc.Flag, fc.Value)
		}
	}

	client, paths := e.client, e.paths
	return e.submit(Job{Name: "undo flag", Kind: JobMutation, Keys: fc.IDs, Run: func(ctx context.Context) Completion {
		res := newRenameResult()
		for _, id := range fc.IDs {
			path := paths.get(id, fallback[id])
			var np string
			var err error
			if old := fc.OldPaths[id]; old != "" && path == fc.NewPaths[id] && path != old {
				err = client.MovePath(ctx, path, old)
				np = old
			} else {
				np, err = client.SetFlag(ctx, path, fc.Flag, fc.Previous[id].Get(fc.Flag))
			}
			if err != nil {
				res.failed[id] = err
				continue
			}
			paths.set(id, np)
			res.newPaths[id] = np
		}
		return Completion{apply: func(e *Engine) Outcome {
			var restored []string
			for _, id := range fc.IDs {
				if _, failed := res.failed[id]; failed {
					if flags, ok := current[id]; ok && e.store.Contains(id) {
						e.restoreFlags(id, flags, fc.Flag, fc.Value)
					}
					continue
				}
				restored = append(restored, id)
				e.settle(id, res.newPaths[id])
			}
			out := Outcome{Kind: OutcomeUndo, Status: "undo: " + entry.Describe()}
			if len(res.failed) > 0 {
				out.Err = &PartialUndo{Restored: restored, Failed: res.failed}
			}
			return out
		}}
	}})
}

// undoMove moves every file back to its exact previous path. Messages
// that left the view are reinserted at their old positions when the
// working set has not been replaced since; otherwise the caller is asked
// to refresh.
func (e *Engine) undoMove(entry oplog.Entry) error {
	mv := entry.Move
	client, paths := e.client, e.paths
	return e.submit(Job{Name: "undo move", Kind: JobMutation, Keys: mv.IDs, Run: func(ctx context.Context) Completion {
		res := newRenameResult()
		for _, id := range mv.IDs {
			from := paths.get(id, mv.NewPaths[id])
			to := mv.OldPaths[id]
			if err := client.MovePath(ctx, from, to); err != nil {
				res.failed[id] = err
				continue
			}
			paths.set(id, to)
			res.newPaths[id] = to
		}
		return Completion{apply: func(e *Engine) Outcome {
			return e.applyUndoMove(entry, res)
		}}
	}})
}

func (e *Engine) applyUndoMove(entry oplog.Entry, res renameResult) Outcome {
	mv := entry.Move
	out := Outcome{Kind: OutcomeUndo, Status: "undo: " + entry.Describe()}
	folder := e.displayFolder()

	var restored, reinsert []string
	for _, id := range mv.IDs {
		if _, failed := res.failed[id]; failed {
			continue
		}
		restored = append(restored, id)
		from := mv.FromFolders[id]
		if e.store.Contains(id) {
			_ = e.store.SetPath(id, mv.OldPaths[id], from)
			e.touch(id, nil)
			continue
		}
		if _, wasShown := mv.Positions[id]; wasShown && e.store.Generation() == mv.Generation {
			reinsert = append(reinsert, id)
			continue
		}
		if rec := mv.Records[id]; rec != nil {
			e.touch(id, rec)
		}
		if folder == "" || folder == from {
			out.NeedsRefresh = true
		}
	}

	sort.Slice(reinsert, func(i, j int) bool { return mv.Positions[reinsert[i]] < mv.Positions[reinsert[j]] })
	back := make(map[string]bool, len(reinsert))
	for _, id := range reinsert {
		back[id] = true
	}
	for _, id := range reinsert {
		// Rows removed together but not coming back no longer take a slot.
		pos := mv.Positions[id]
		for other, p := range mv.Positions {
			if p < mv.Positions[id] && !back[other] {
				pos--
			}
		}
		rec := mv.Records[id].Clone()
		rec.Path, rec.Folder = mv.OldPaths[id], mv.FromFolders[id]
		if err := e.store.Insert(rec, pos); err != nil {
			e.logger.Warn("reinsert after undo", "id", id, "err", err)
			out.NeedsRefresh = true
			continue
		}
		e.touch(id, nil)
	}
	if len(reinsert) > 0 {
		e.relayout()
	}

	if len(res.failed) > 0 {
		out.Err = &PartialUndo{Restored: restored, Failed: res.failed}
	}
	return out
}

// Open loads the full message for id and marks it read on disk and in
// the store. Opening is not recorded for undo.
func (e *Engine) Open(id string) error {
	m, err := e.store.Get(id)
	if err != nil {
		return err
	}
	path := m.Path
	prev := m.Flags
	markRead := m.Flags.Unread || m.Flags.New
	if markRead {
		e.setFlags(id, model.FlagUnread, false)
	}

	client, paths := e.client, e.paths
	return e.submit(Job{Name: "open", Kind: JobMutation, Keys: []string{id}, Run: func(ctx context.Context) Completion {
		p := paths.get(id, path)
		detail, err := client.View(ctx, p)
		var flagErr error
		if err == nil && markRead {
			np, ferr := client.SetFlag(ctx, p, model.FlagUnread, false)
			if ferr == nil {
				paths.set(id, np)
				p = np
			}
			flagErr = ferr
		}
		return Completion{apply: func(e *Engine) Outcome {
			out := Outcome{Kind: OutcomeOpen}
			if err != nil || flagErr != nil {
				if markRead && e.store.Contains(id) {
					e.restoreFlags(id, prev, model.FlagUnread, false)
				}
			}
			if err != nil {
				out.Err = fmt.Errorf("open %s: %w", id, err)
				return out
			}
			if flagErr != nil {
				out.Err = fmt.Errorf("mark %s read: %w", id, flagErr)
			} else {
				e.settle(id, p)
			}
			detail.Path = p
			out.Detail = detail
			if cur, gerr := e.store.Get(id); gerr == nil {
				out.Message = cur.Clone()
				out.Status = cur.Subject
			}
			return out
		}}
	}})
}
