// Package engine is the message index and mutation engine. It owns the
// working set and the undo log, runs index and filesystem work on a
// worker pool, and applies the results on the caller's goroutine.
//
// All Engine methods, including Apply, must be called from one
// goroutine. Work submitted by a method finishes later as a Completion
// read from Completions and passed to Apply.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/mu"
	"github.com/wesm/mudex/internal/oplog"
	"github.com/wesm/mudex/internal/search"
	"github.com/wesm/mudex/internal/store"
	"github.com/wesm/mudex/internal/thread"
)

// Options are plain parameters supplied by the caller's configuration.
type Options struct {
	Inbox   string
	Archive string
	Trash   string

	MaxResults int
	Descending bool
	Threading  bool
	Workers    int
	UndoDepth  int
	Display    Display
}

// DefaultOptions returns the built-in folder names and limits.
func DefaultOptions() Options {
	return Options{
		Inbox:      "/INBOX",
		Archive:    "/Archive",
		Trash:      "/Trash",
		MaxResults: 400,
		Descending: true,
		Threading:  true,
		Workers:    1,
		UndoDepth:  1,
		Display:    DefaultDisplay(),
	}
}

// OutcomeKind says which operation an Outcome finishes.
type OutcomeKind int

const (
	OutcomeSearch OutcomeKind = iota
	OutcomeRefresh
	OutcomeFlag
	OutcomeMove
	OutcomeUndo
	OutcomeOpen
	OutcomeContacts
)

// Outcome is the result of applying a Completion.
type Outcome struct {
	Kind   OutcomeKind
	Status string // one-line summary for the status bar
	Err    error

	// Discarded is set for a superseded search; nothing changed.
	Discarded bool
	// NeedsRefresh is set when the view can no longer be patched in place.
	NeedsRefresh bool
	// Pending is set when the operation continues in a job whose Outcome
	// follows.
	Pending bool

	Entry    *oplog.Entry // recorded by this operation
	Message  *model.Message
	Detail   *model.Detail
	Contacts []model.Contact
}

type viewState struct {
	query   string
	related bool
}

// touch is the latest known state of a message changed while a search
// was in flight.
type touch struct {
	clock uint64
	msg   *model.Message
}

// Engine is the façade driven by the UI.
type Engine struct {
	client IndexClient
	opts   Options
	logger *slog.Logger

	store *store.Store
	log   *oplog.Log
	disp  *Dispatcher
	paths *locator

	view      viewState
	threading bool
	layout    map[string]thread.Entry

	searchSeq    uint64
	appliedSeq   uint64
	cancelSearch context.CancelFunc

	clock       uint64
	touched     map[string]touch
	openQueries map[uint64]uint64 // search seq -> clock when issued

	opSeq         uint64 // issue order of logged operations and undos
	unrecorded    int    // logged operations submitted but not yet applied
	deferredUndos int
}

// New creates an engine and starts its workers. Close releases them.
func New(client IndexClient, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Inbox == "" {
		opts.Inbox = def.Inbox
	}
	if opts.Archive == "" {
		opts.Archive = def.Archive
	}
	if opts.Trash == "" {
		opts.Trash = def.Trash
	}
	opts.Display = opts.Display.withDefaults()
	return &Engine{
		client:      client,
		opts:        opts,
		logger:      slog.Default(),
		store:       store.New(),
		log:         oplog.New(opts.UndoDepth),
		disp:        NewDispatcher(opts.Workers),
		paths:       newLocator(),
		threading:   opts.Threading,
		touched:     make(map[string]touch),
		openQueries: make(map[uint64]uint64),
	}
}

// WithLogger sets the logger for the engine and its dispatcher.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	e.disp.WithLogger(logger)
	return e
}

// Close cancels in-flight work and waits for the workers.
func (e *Engine) Close() { e.disp.Close() }

// Store exposes the working set for read access and OnUpdate observers.
func (e *Engine) Store() *store.Store { return e.store }

// Options returns the options the engine runs with.
func (e *Engine) Options() Options { return e.opts }

// Completions delivers finished work to pass to Apply.
func (e *Engine) Completions() <-chan Completion { return e.disp.Completions() }

// Busy reports whether any work is queued or running.
func (e *Engine) Busy() bool { return e.disp.Pending() > 0 }

// Query returns the query of the displayed working set.
func (e *Engine) Query() string { return e.view.query }

// Threading reports whether the view is threaded.
func (e *Engine) Threading() bool { return e.threading }

// CanUndo reports whether the log holds an entry or an operation that
// will record one is running.
func (e *Engine) CanUndo() bool { return e.log.Len() > 0 || e.unrecorded > 0 }

// Apply runs a completion against engine state.
func (e *Engine) Apply(c Completion) Outcome {
	if c.apply == nil {
		return Outcome{Discarded: true}
	}
	out := c.apply(e)
	if out.Err != nil {
		e.logger.Warn("operation failed", "job", c.job, "name", c.name, "err", out.Err)
	} else {
		e.logger.Debug("operation applied", "job", c.job, "name", c.name, "status", out.Status)
	}
	return out
}

// Next waits for one completion and applies it.
func (e *Engine) Next(ctx context.Context) (Outcome, error) {
	select {
	case c := <-e.disp.Completions():
		return e.Apply(c), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (e *Engine) nextOp() uint64 {
	e.opSeq++
	return e.opSeq
}

// submitLogged submits a job whose completion records an undo entry.
func (e *Engine) submitLogged(job Job) error {
	if err := e.submit(job); err != nil {
		return err
	}
	e.unrecorded++
	return nil
}

func (e *Engine) submit(job Job) error {
	if _, err := e.disp.Submit(job); err != nil {
		return fmt.Errorf("submit %s: %w", job.Name, err)
	}
	return nil
}

// displayFolder is the maildir the view lists, or "" for a search view.
func (e *Engine) displayFolder() string {
	return search.Parse(e.view.query).Folder()
}

// LoadFolder lists a maildir folder, e.g. "/INBOX".
func (e *Engine) LoadFolder(folder string) error {
	return e.RunQuery(search.FolderQuery(folder))
}

// RunQuery replaces the working set with the result of q. Marks survive
// only when q equals the current query.
func (e *Engine) RunQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return errors.New("run query: empty query")
	}
	return e.submitSearch(viewState{query: q}, q == e.view.query, false)
}

// ShowThread lists every message of the thread containing id.
func (e *Engine) ShowThread(id string) error {
	m, err := e.store.Get(id)
	if err != nil {
		return err
	}
	var q string
	if strings.HasPrefix(m.ID, "path:") {
		q = search.SubjectQuery(m.Subject)
	} else {
		q = search.ThreadQuery(append([]string{m.ID}, m.References...)...)
	}
	if q == "" {
		return fmt.Errorf("show thread: message %s has no thread information", id)
	}
	return e.submitSearch(viewState{query: q, related: true}, false, false)
}

// Refresh re-indexes, then re-runs the current query (the inbox when
// nothing is displayed). It runs after all earlier work and before any
// later work.
func (e *Engine) Refresh() error {
	v := e.view
	if v.query == "" {
		v = viewState{query: search.FolderQuery(e.opts.Inbox)}
	}
	return e.submitSearch(v, true, true)
}

func (e *Engine) submitSearch(v viewState, keepMarks, reindex bool) error {
	if e.cancelSearch != nil {
		e.cancelSearch()
		e.cancelSearch = nil
	}
	e.searchSeq++
	seq := e.searchSeq
	e.openQueries[seq] = e.clock

	opts := mu.SearchOptions{
		Query:          v.query,
		MaxResults:     e.opts.MaxResults,
		Threads:        e.threading,
		Descending:     e.opts.Descending,
		IncludeRelated: v.related,
	}
	job := Job{Name: "search", Kind: JobQuery}
	if reindex {
		job.Name, job.Kind = "refresh", JobBarrier
	}
	client, paths := e.client, e.paths
	job.Run = func(ctx context.Context) Completion {
		if reindex {
			if err := client.ReindexAll(ctx); err != nil {
				return Completion{apply: func(e *Engine) Outcome {
					return e.applySearch(seq, v, keepMarks, reindex, nil, fmt.Errorf("reindex: %w", err))
				}}
			}
			paths.reset()
		}
		msgs, err := client.Search(ctx, opts)
		return Completion{apply: func(e *Engine) Outcome {
			return e.applySearch(seq, v, keepMarks, reindex, msgs, err)
		}}
	}

	cancel, err := e.disp.Submit(job)
	if err != nil {
		delete(e.openQueries, seq)
		return fmt.Errorf("submit %s: %w", job.Name, err)
	}
	// A refresh is not cancelled by a later query; its result is still
	// discarded if superseded.
	if !reindex {
		e.cancelSearch = cancel
	}
	return nil
}

func (e *Engine) applySearch(seq uint64, v viewState, keepMarks, reindex bool, msgs []*model.Message, err error) Outcome {
	kind := OutcomeSearch
	if reindex {
		kind = OutcomeRefresh
	}
	issued := e.openQueries[seq]
	delete(e.openQueries, seq)
	defer func() {
		if len(e.openQueries) == 0 {
			e.touched = make(map[string]touch)
		}
	}()

	if seq != e.searchSeq || seq < e.appliedSeq {
		return Outcome{Kind: kind, Discarded: true}
	}
	if err != nil {
		return Outcome{Kind: kind, Err: fmt.Errorf("search %q: %w", v.query, err)}
	}

	e.view = v
	msgs = e.overlay(msgs, issued)
	if err := e.install(msgs, keepMarks); err != nil {
		return Outcome{Kind: kind, Err: err}
	}
	e.appliedSeq = seq
	return Outcome{Kind: kind, Status: countNoun(len(msgs), "message")}
}

// overlay replaces records changed after the search was issued with their
// latest known state, dropping those moved out of the displayed folder.
func (e *Engine) overlay(msgs []*model.Message, issued uint64) []*model.Message {
	if len(e.touched) == 0 {
		return msgs
	}
	folder := e.displayFolder()
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		t, ok := e.touched[m.ID]
		if !ok || t.clock <= issued {
			out = append(out, m)
			continue
		}
		if folder != "" && t.msg.Folder != folder {
			continue
		}
		out = append(out, t.msg.Clone())
	}
	return out
}

// touch records the current state of id for searches in flight.
func (e *Engine) touch(id string, m *model.Message) {
	if len(e.openQueries) == 0 {
		return
	}
	if m == nil {
		var err error
		if m, err = e.store.Get(id); err != nil {
			return
		}
	}
	e.clock++
	e.touched[id] = touch{clock: e.clock, msg: m.Clone()}
}

// install replaces the working set with msgs laid out for the current mode.
func (e *Engine) install(msgs []*model.Message, keepMarks bool) error {
	order, layout := e.arrange(msgs)
	if err := e.store.Replace(msgs, order, store.ReplaceOptions{KeepMarks: keepMarks}); err != nil {
		return fmt.Errorf("install results: %w", err)
	}
	e.layout = layout
	return nil
}

func (e *Engine) arrange(msgs []*model.Message) ([]string, map[string]thread.Entry) {
	if e.threading {
		f := thread.Build(msgs, thread.Options{Descending: e.opts.Descending})
		layout := make(map[string]thread.Entry, len(f.Entries))
		for _, en := range f.Entries {
			layout[en.Message.ID] = en
		}
		return f.Order(), layout
	}
	sorted := append([]*model.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if e.opts.Descending {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})
	order := make([]string, len(sorted))
	for i, m := range sorted {
		order[i] = m.ID
	}
	return order, nil
}

// relayout rebuilds the thread layout in place after rows were removed
// or reinserted. The store generation is kept.
func (e *Engine) relayout() {
	if !e.threading {
		return
	}
	order, layout := e.arrange(e.store.Messages())
	if err := e.store.Reorder(order); err != nil {
		e.logger.Error("relayout failed", "err", err)
		return
	}
	e.layout = layout
}

// ToggleThreading switches between threaded and flat order in place.
// Marks are kept.
func (e *Engine) ToggleThreading() {
	e.threading = !e.threading
	if e.store.Len() == 0 {
		return
	}
	if err := e.install(e.store.Messages(), true); err != nil {
		e.logger.Error("relayout failed", "err", err)
	}
}

// Mark toggles the mark on id and returns the new state.
func (e *Engine) Mark(id string) (bool, error) {
	return e.store.ToggleMark(id)
}

// ClearMarks unmarks everything.
func (e *Engine) ClearMarks() { e.store.ClearMarks() }

// Targets returns the ids an action applies to: the marked messages, or
// the message under the cursor when nothing is marked.
func (e *Engine) Targets(cursorID string) []string {
	if marked := e.store.Marked(); len(marked) > 0 {
		return marked
	}
	if cursorID == "" || !e.store.Contains(cursorID) {
		return nil
	}
	return []string{cursorID}
}

// Contacts searches the contact list.
func (e *Engine) Contacts(pattern string) error {
	client := e.client
	return e.submit(Job{Name: "contacts", Kind: JobQuery, Run: func(ctx context.Context) Completion {
		contacts, err := client.Contacts(ctx, pattern, mu.ContactOptions{})
		return Completion{apply: func(e *Engine) Outcome {
			if err != nil {
				return Outcome{Kind: OutcomeContacts, Err: fmt.Errorf("search contacts: %w", err)}
			}
			return Outcome{Kind: OutcomeContacts, Contacts: contacts, Status: countNoun(len(contacts), "contact")}
		}}
	}})
}

// settle records a successful rename of id. A file in new/ is new and
// unread by definition.
func (e *Engine) settle(id, path string) {
	m, err := e.store.Get(id)
	if err != nil {
		return
	}
	if err := e.store.SetPath(id, path, m.Folder); err != nil {
		return
	}
	inNew := filepath.Base(filepath.Dir(path)) == "new"
	_, _ = e.store.SetFlag(id, model.FlagNew, inNew)
	if inNew {
		_, _ = e.store.SetFlag(id, model.FlagUnread, true)
	}
	e.touch(id, nil)
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
