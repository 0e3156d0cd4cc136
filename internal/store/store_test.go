package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/testutil"
)

func newStore(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := New()
	testutil.MustNoErr(t, s.Replace(testutil.Msgs(ids...), nil, ReplaceOptions{}), "Replace")
	return s
}

func TestReplaceValidation(t *testing.T) {
	tests := []struct {
		name    string
		records []*model.Message
		order   []string
	}{
		{"duplicate record", testutil.Msgs("a", "a"), nil},
		{"missing from order", testutil.Msgs("a", "b"), []string{"a"}},
		{"unknown in order", testutil.Msgs("a"), []string{"z"}},
		{"duplicate in order", testutil.Msgs("a", "b"), []string{"a", "a"}},
		{"empty id", []*model.Message{{}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, "x", "y")
			gen := s.Generation()
			err := s.Replace(tt.records, tt.order, ReplaceOptions{})
			if !errors.Is(err, ErrInvalidWorkingSet) {
				t.Fatalf("err = %v, want ErrInvalidWorkingSet", err)
			}
			testutil.AssertStrings(t, s.CurrentOrder(), "x", "y")
			if s.Generation() != gen {
				t.Error("failed Replace bumped the generation")
			}
		})
	}
}

func TestReplaceOrderAndMarks(t *testing.T) {
	s := newStore(t, "a", "b", "c")
	for _, id := range []string{"a", "c"} {
		if _, err := s.ToggleMark(id); err != nil {
			t.Fatal(err)
		}
	}

	testutil.MustNoErr(t, s.Replace(testutil.Msgs("a", "b", "d"), []string{"d", "b", "a"}, ReplaceOptions{KeepMarks: true}), "Replace keep")
	testutil.AssertStrings(t, s.CurrentOrder(), "d", "b", "a")
	testutil.AssertStrings(t, s.Marked(), "a")

	testutil.MustNoErr(t, s.Replace(testutil.Msgs("a"), nil, ReplaceOptions{}), "Replace clear")
	if len(s.Marked()) != 0 {
		t.Errorf("marks = %v, want none", s.Marked())
	}
	if s.Generation() != 3 {
		t.Errorf("generation = %d, want 3", s.Generation())
	}
}

func TestGetNotFound(t *testing.T) {
	s := newStore(t, "a")
	_, err := s.Get("nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "nope" {
		t.Fatalf("err = %v, want NotFoundError{nope}", err)
	}
	if _, err := s.SetFlag("nope", model.FlagUnread, true); !IsNotFound(err) {
		t.Errorf("SetFlag err = %v", err)
	}
	if _, err := s.ToggleMark("nope"); !IsNotFound(err) {
		t.Errorf("ToggleMark err = %v", err)
	}
}

func TestSetFlagAndObservers(t *testing.T) {
	s := newStore(t, "a")
	var events []Event
	s.OnUpdate(func(ev Event) { events = append(events, ev) })

	prev, err := s.SetFlag("a", model.FlagImportant, true)
	testutil.MustNoErr(t, err, "SetFlag")
	if prev {
		t.Error("previous value should be false")
	}
	// No-op: value unchanged, no event.
	prev, _ = s.SetFlag("a", model.FlagImportant, true)
	if !prev {
		t.Error("previous value should be true")
	}
	testutil.MustNoErr(t, s.SetPath("a", "/mail/Archive/cur/a:2,FS", "/Archive"), "SetPath")

	m, _ := s.Get("a")
	if !m.Flags.Important || m.Folder != "/Archive" {
		t.Errorf("record = %+v", m)
	}
	want := []Event{
		{Kind: EventFlagChanged, IDs: []string{"a"}, Flag: model.FlagImportant},
		{Kind: EventPathChanged, IDs: []string{"a"}},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveAndInsertRestoresOrder(t *testing.T) {
	s := newStore(t, "1", "2", "3", "4", "5")
	_, _ = s.ToggleMark("2")
	saved := map[string]*model.Message{}
	for _, id := range []string{"2", "4"} {
		m, _ := s.Get(id)
		saved[id] = m
	}

	pos := s.Remove("4", "2", "missing")
	if diff := cmp.Diff(map[string]int{"2": 1, "4": 3}, pos); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	testutil.AssertStrings(t, s.CurrentOrder(), "1", "3", "5")
	if s.IsMarked("2") || s.Contains("2") {
		t.Error("removed id should leave marks and records")
	}

	testutil.MustNoErr(t, s.Insert(saved["2"], pos["2"]), "Insert 2")
	testutil.MustNoErr(t, s.Insert(saved["4"], pos["4"]), "Insert 4")
	testutil.AssertStrings(t, s.CurrentOrder(), "1", "2", "3", "4", "5")

	if err := s.Insert(saved["2"], 0); !errors.Is(err, ErrInvalidWorkingSet) {
		t.Errorf("duplicate insert err = %v", err)
	}
	testutil.MustNoErr(t, s.Insert(testutil.NewMsg("z").Build(), 99), "Insert clamp")
	if s.Index("z") != s.Len()-1 {
		t.Errorf("z at %d, want last", s.Index("z"))
	}
}

func TestMarkedFollowsDisplayOrder(t *testing.T) {
	s := newStore(t, "a", "b", "c")
	for _, id := range []string{"c", "a"} {
		_, _ = s.ToggleMark(id)
	}
	testutil.AssertStrings(t, s.Marked(), "a", "c")

	on, _ := s.ToggleMark("a")
	if on {
		t.Error("second toggle should unmark")
	}
	s.ClearMarks()
	if s.Marked() != nil {
		t.Errorf("marks = %v after clear", s.Marked())
	}
}

func TestReorderKeepsGeneration(t *testing.T) {
	s := newStore(t, "1", "2", "3")
	gen := s.Generation()
	var kinds []EventKind
	s.OnUpdate(func(ev Event) { kinds = append(kinds, ev.Kind) })

	testutil.MustNoErr(t, s.Reorder([]string{"3", "1", "2"}), "Reorder")
	testutil.AssertStrings(t, s.CurrentOrder(), "3", "1", "2")
	if s.Generation() != gen {
		t.Errorf("generation = %d, want %d", s.Generation(), gen)
	}
	if len(kinds) != 1 || kinds[0] != EventReordered {
		t.Errorf("events = %v, want [reordered]", kinds)
	}

	for _, bad := range [][]string{{"1", "2"}, {"1", "1", "2"}, {"1", "2", "x"}} {
		if err := s.Reorder(bad); !errors.Is(err, ErrInvalidWorkingSet) {
			t.Errorf("Reorder(%v) err = %v", bad, err)
		}
	}
	testutil.AssertStrings(t, s.CurrentOrder(), "3", "1", "2")
}
