// Package store holds the in-memory working set: the loaded message
// records, their display order and the mark set. It never touches the
// index or the filesystem; persisting changes is the engine's job.
//
// A Store is owned by a single goroutine and does no locking.
package store

import (
	"errors"
	"fmt"

	"github.com/wesm/mudex/internal/model"
)

// ErrInvalidWorkingSet is returned by Replace when records and order do
// not describe the same set of unique ids.
var ErrInvalidWorkingSet = errors.New("invalid working set")

// NotFoundError reports an id that is not in the working set, e.g. a stale
// reference after the message was moved out of view.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %q not in working set", e.ID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// EventKind identifies a store mutation.
type EventKind int

const (
	EventReplaced EventKind = iota
	EventFlagChanged
	EventPathChanged
	EventMarkChanged
	EventMarksCleared
	EventRemoved
	EventInserted
	EventReordered
)

func (k EventKind) String() string {
	switch k {
	case EventReplaced:
		return "replaced"
	case EventFlagChanged:
		return "flag-changed"
	case EventPathChanged:
		return "path-changed"
	case EventMarkChanged:
		return "mark-changed"
	case EventMarksCleared:
		return "marks-cleared"
	case EventRemoved:
		return "removed"
	case EventInserted:
		return "inserted"
	case EventReordered:
		return "reordered"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes one mutation. IDs lists the affected messages (empty
// for Replaced, Reordered and MarksCleared).
type Event struct {
	Kind EventKind
	IDs  []string
	Flag model.Flag // EventFlagChanged
}

// ReplaceOptions controls Replace.
type ReplaceOptions struct {
	// KeepMarks retains marks on ids present in the new set.
	KeepMarks bool
}

// Store is the working set.
type Store struct {
	records    map[string]*model.Message
	order      []string
	marks      map[string]bool
	generation uint64
	observers  []func(Event)
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]*model.Message),
		marks:   make(map[string]bool),
	}
}

// OnUpdate registers fn to be called synchronously after every mutation.
func (s *Store) OnUpdate(fn func(Event)) {
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(ev Event) {
	for _, fn := range s.observers {
		fn(ev)
	}
}

// Replace swaps the whole working set. order must list every record id
// exactly once; a nil order uses the order of records. Invalid input
// leaves the store untouched.
func (s *Store) Replace(records []*model.Message, order []string, opts ReplaceOptions) error {
	byID := make(map[string]*model.Message, len(records))
	for _, m := range records {
		if m == nil || m.ID == "" {
			return fmt.Errorf("replace: record without id: %w", ErrInvalidWorkingSet)
		}
		if byID[m.ID] != nil {
			return fmt.Errorf("replace: duplicate record %q: %w", m.ID, ErrInvalidWorkingSet)
		}
		byID[m.ID] = m
	}
	if order == nil {
		order = make([]string, len(records))
		for i, m := range records {
			order[i] = m.ID
		}
	}
	if len(order) != len(byID) {
		return fmt.Errorf("replace: %d ordered ids for %d records: %w", len(order), len(byID), ErrInvalidWorkingSet)
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if byID[id] == nil || seen[id] {
			return fmt.Errorf("replace: bad ordered id %q: %w", id, ErrInvalidWorkingSet)
		}
		seen[id] = true
	}

	marks := make(map[string]bool)
	if opts.KeepMarks {
		for id := range s.marks {
			if byID[id] != nil {
				marks[id] = true
			}
		}
	}
	s.records = byID
	s.order = append([]string(nil), order...)
	s.marks = marks
	s.generation++
	s.notify(Event{Kind: EventReplaced})
	return nil
}

// Get returns the record for id. The record must not be modified; use
// SetFlag and SetPath.
func (s *Store) Get(id string) (*model.Message, error) {
	m, ok := s.records[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return m, nil
}

// Contains reports whether id is in the working set.
func (s *Store) Contains(id string) bool {
	_, ok := s.records[id]
	return ok
}

// SetFlag sets flag on id and returns its previous value.
func (s *Store) SetFlag(id string, flag model.Flag, value bool) (bool, error) {
	m, ok := s.records[id]
	if !ok {
		return false, &NotFoundError{ID: id}
	}
	prev := m.Flags.Get(flag)
	if prev == value {
		return prev, nil
	}
	m.Flags = m.Flags.With(flag, value)
	s.notify(Event{Kind: EventFlagChanged, IDs: []string{id}, Flag: flag})
	return prev, nil
}

// SetPath records a new file location for id.
func (s *Store) SetPath(id, path, folder string) error {
	m, ok := s.records[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if m.Path == path && m.Folder == folder {
		return nil
	}
	m.Path = path
	m.Folder = folder
	s.notify(Event{Kind: EventPathChanged, IDs: []string{id}})
	return nil
}

// ToggleMark flips the mark on id and returns the new state.
func (s *Store) ToggleMark(id string) (bool, error) {
	if !s.Contains(id) {
		return false, &NotFoundError{ID: id}
	}
	on := !s.marks[id]
	if on {
		s.marks[id] = true
	} else {
		delete(s.marks, id)
	}
	s.notify(Event{Kind: EventMarkChanged, IDs: []string{id}})
	return on, nil
}

// IsMarked reports whether id is marked.
func (s *Store) IsMarked(id string) bool {
	return s.marks[id]
}

// Marked returns the marked ids in display order.
func (s *Store) Marked() []string {
	if len(s.marks) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.marks))
	for _, id := range s.order {
		if s.marks[id] {
			out = append(out, id)
		}
	}
	return out
}

// ClearMarks unmarks everything.
func (s *Store) ClearMarks() {
	if len(s.marks) == 0 {
		return
	}
	s.marks = make(map[string]bool)
	s.notify(Event{Kind: EventMarksCleared})
}

// Remove drops ids from the working set and returns the display position
// each removed id had before the call. Reinserting the records in
// ascending position order restores the original order. Unknown ids are
// ignored.
func (s *Store) Remove(ids ...string) map[string]int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s.Contains(id) {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	positions := make(map[string]int, len(drop))
	kept := s.order[:0:0]
	removed := make([]string, 0, len(drop))
	for i, id := range s.order {
		if drop[id] {
			positions[id] = i
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	for id := range drop {
		delete(s.records, id)
		delete(s.marks, id)
	}
	s.order = kept
	s.notify(Event{Kind: EventRemoved, IDs: removed})
	return positions
}

// Insert adds m at display position pos, clamped to the current length.
func (s *Store) Insert(m *model.Message, pos int) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("insert: record without id: %w", ErrInvalidWorkingSet)
	}
	if s.Contains(m.ID) {
		return fmt.Errorf("insert: duplicate record %q: %w", m.ID, ErrInvalidWorkingSet)
	}
	pos = max(0, min(pos, len(s.order)))
	s.order = append(s.order, "")
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = m.ID
	s.records[m.ID] = m
	s.notify(Event{Kind: EventInserted, IDs: []string{m.ID}})
	return nil
}

// Reorder changes the display order of the current records. order must
// list every id exactly once. Unlike Replace it keeps the generation.
func (s *Store) Reorder(order []string) error {
	if len(order) != len(s.order) {
		return fmt.Errorf("reorder: %d ids for %d records: %w", len(order), len(s.order), ErrInvalidWorkingSet)
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if s.records[id] == nil || seen[id] {
			return fmt.Errorf("reorder: bad id %q: %w", id, ErrInvalidWorkingSet)
		}
		seen[id] = true
	}
	s.order = append([]string(nil), order...)
	s.notify(Event{Kind: EventReordered})
	return nil
}

// CurrentOrder returns a copy of the display order.
func (s *Store) CurrentOrder() []string {
	return append([]string(nil), s.order...)
}

// Messages returns the records in display order.
func (s *Store) Messages() []*model.Message {
	out := make([]*model.Message, len(s.order))
	for i, id := range s.order {
		out[i] = s.records[id]
	}
	return out
}

// Index returns the display position of id, or -1.
func (s *Store) Index(id string) int {
	for i, v := range s.order {
		if v == id {
			return i
		}
	}
	return -1
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.order) }

// Generation counts Replace calls. Positions recorded under one
// generation are meaningless under another.
func (s *Store) Generation() uint64 { return s.generation }
