package oplog

import (
	"errors"
	"testing"

	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/testutil"
)

func flagEntry(ids ...string) Entry {
	return NewFlagChange(FlagChange{IDs: ids, Flag: model.FlagImportant, Value: true})
}

func TestUndoEmpty(t *testing.T) {
	if _, err := New(1).UndoLast(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("err = %v, want ErrNothingToUndo", err)
	}
}

func TestSingleLevel(t *testing.T) {
	l := New(1)
	l.Record(flagEntry("a"))
	l.Record(flagEntry("b"))

	e, err := l.UndoLast()
	testutil.MustNoErr(t, err, "UndoLast")
	testutil.AssertStrings(t, e.IDs(), "b")
	if _, err := l.UndoLast(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("second undo err = %v, want ErrNothingToUndo", err)
	}
}

func TestBoundedDepth(t *testing.T) {
	l := New(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		l.Record(flagEntry(id))
	}
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	var got []string
	for l.Len() > 0 {
		e, _ := l.UndoLast()
		got = append(got, e.IDs()...)
	}
	testutil.AssertStrings(t, got, "d", "c", "b")
}

func seqEntry(seq uint64, id string) Entry {
	e := flagEntry(id)
	e.Seq = seq
	return e
}

// Entries recorded out of issue order still undo newest-issued first.
func TestRecordKeepsSeqOrder(t *testing.T) {
	l := New(3)
	l.Record(seqEntry(1, "a"))
	l.Record(seqEntry(3, "c"))
	l.Record(seqEntry(2, "b"))

	var got []string
	for l.Len() > 0 {
		e, _ := l.UndoLast()
		got = append(got, e.IDs()...)
	}
	testutil.AssertStrings(t, got, "c", "b", "a")
}

func TestUndoBefore(t *testing.T) {
	l := New(3)
	l.Record(seqEntry(1, "a"))
	l.Record(seqEntry(4, "d"))

	e, err := l.UndoBefore(3)
	testutil.MustNoErr(t, err, "UndoBefore")
	testutil.AssertStrings(t, e.IDs(), "a")
	if _, err := l.UndoBefore(3); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("err = %v, want ErrNothingToUndo", err)
	}
	if l.Len() != 1 {
		t.Errorf("len = %d, want the later entry kept", l.Len())
	}
}

func TestEmptyEntryNotRecorded(t *testing.T) {
	l := New(2)
	l.Record(NewMove(Move{ToFolder: "/Archive"}))
	if l.Len() != 0 {
		t.Errorf("len = %d, want 0", l.Len())
	}
}

func TestEntryIDsAndDescribe(t *testing.T) {
	a, b := flagEntry("x"), flagEntry("x")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("entry ids should be unique, got %q and %q", a.ID, b.ID)
	}
	tests := []struct {
		e    Entry
		want string
	}{
		{flagEntry("x"), "set important on 1 message"},
		{NewFlagChange(FlagChange{IDs: []string{"x", "y"}, Flag: model.FlagUnread}), "clear unread on 2 messages"},
		{NewMove(Move{IDs: []string{"x", "y", "z"}, ToFolder: "/Archive"}), "move 3 messages to Archive"},
	}
	for _, tt := range tests {
		if got := tt.e.Describe(); got != tt.want {
			t.Errorf("Describe = %q, want %q", got, tt.want)
		}
	}
}
