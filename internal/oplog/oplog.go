// Package oplog records invertible mutations for undo.
package oplog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/mudex/internal/model"
)

// ErrNothingToUndo is returned by UndoLast on an empty log.
var ErrNothingToUndo = errors.New("nothing to undo")

// Kind tags an Entry.
type Kind int

const (
	KindFlagChange Kind = iota
	KindMove
)

func (k Kind) String() string {
	if k == KindMove {
		return "move"
	}
	return "flag"
}

// FlagChange is a batch flag mutation.
type FlagChange struct {
	IDs      []string
	Flag     model.Flag
	Value    bool                   // the value that was applied
	Previous map[string]model.Flags // per-id flags before
	OldPaths map[string]string      // per-id path before
	NewPaths map[string]string      // per-id path after
}

// Move is a batch folder move.
type Move struct {
	IDs         []string
	ToFolder    string
	FromFolders map[string]string
	OldPaths    map[string]string
	NewPaths    map[string]string
	// Positions are display positions before removal; empty when the
	// messages stayed in view.
	Positions map[string]int
	// Records are snapshots taken before the move, for reinsertion.
	Records map[string]*model.Message
	// Generation is the store generation the positions belong to.
	Generation uint64
}

// Entry is one logged operation. Exactly one of Flag and Move is set.
type Entry struct {
	ID   string
	Kind Kind
	At   time.Time
	// Seq orders entries by when their operation was issued, which is
	// not always the order they are recorded in.
	Seq  uint64
	Flag *FlagChange
	Move *Move
}

// NewFlagChange wraps c in an Entry.
func NewFlagChange(c FlagChange) Entry {
	return Entry{ID: uuid.NewString(), Kind: KindFlagChange, At: time.Now(), Flag: &c}
}

// NewMove wraps m in an Entry.
func NewMove(m Move) Entry {
	return Entry{ID: uuid.NewString(), Kind: KindMove, At: time.Now(), Move: &m}
}

// IDs returns the message ids the entry covers.
func (e Entry) IDs() []string {
	switch {
	case e.Flag != nil:
		return e.Flag.IDs
	case e.Move != nil:
		return e.Move.IDs
	}
	return nil
}

// Describe is a short human summary, e.g. "archive 3 messages".
func (e Entry) Describe() string {
	n := len(e.IDs())
	noun := "messages"
	if n == 1 {
		noun = "message"
	}
	switch {
	case e.Flag != nil:
		verb := "set"
		if !e.Flag.Value {
			verb = "clear"
		}
		return fmt.Sprintf("%s %s on %d %s", verb, e.Flag.Flag, n, noun)
	case e.Move != nil:
		return fmt.Sprintf("move %d %s to %s", n, noun, strings.TrimPrefix(e.Move.ToFolder, "/"))
	}
	return "empty entry"
}

// Log is a bounded stack of entries kept in Seq order. It is owned by
// one goroutine.
type Log struct {
	depth   int
	entries []Entry
}

// New returns a log holding at most depth entries (minimum 1).
func New(depth int) *Log {
	return &Log{depth: max(depth, 1)}
}

// Record adds e after every entry with a Seq not above its own,
// discarding the oldest entry beyond the depth bound. Entries that cover
// no ids are not recorded.
func (l *Log) Record(e Entry) {
	if len(e.IDs()) == 0 {
		return
	}
	i := len(l.entries)
	for i > 0 && l.entries[i-1].Seq > e.Seq {
		i--
	}
	l.entries = append(l.entries, Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
	if over := len(l.entries) - l.depth; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

// UndoLast removes and returns the most recent entry.
func (l *Log) UndoLast() (Entry, error) {
	if len(l.entries) == 0 {
		return Entry{}, ErrNothingToUndo
	}
	e := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return e, nil
}

// UndoBefore removes and returns the most recent entry issued before
// seq.
func (l *Log) UndoBefore(seq uint64) (Entry, error) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if e := l.entries[i]; e.Seq < seq {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return e, nil
		}
	}
	return Entry{}, ErrNothingToUndo
}

// Peek returns the most recent entry without removing it.
func (l *Log) Peek() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of undoable entries.
func (l *Log) Len() int { return len(l.entries) }

// Clear drops all entries.
func (l *Log) Clear() { l.entries = nil }
