package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/mu"
	"github.com/wesm/mudex/internal/oplog"
	"github.com/wesm/mudex/internal/search"
	"github.com/wesm/mudex/internal/testutil"
)

func TestLoadFolder(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)

	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "2", "3")
	if e.Query() != "maildir:/INBOX" {
		t.Errorf("query = %q", e.Query())
	}
	calls := client.CallsOf(mu.OpSearch)
	if len(calls) != 1 || calls[0].Query != "maildir:/INBOX" {
		t.Errorf("search calls = %+v", calls)
	}
}

func TestRunQueryEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.RunQuery("   "); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestSearchErrorKeepsWorkingSet(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1")...)

	client.SearchErrors["broken"] = errors.New("mu find: database locked")
	testutil.MustNoErr(t, e.RunQuery("broken"), "RunQuery")
	out := next(t, e)
	if out.Err == nil {
		t.Fatal("expected search error")
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1")
	if e.Query() != "maildir:/INBOX" {
		t.Errorf("query = %q, want unchanged", e.Query())
	}
}

// Marking 2 and 3, flagging them important and undoing clears the flag
// on both and leaves the marks alone.
func TestFlagBatchUndo(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)
	for _, id := range []string{"2", "3"} {
		if _, err := e.Mark(id); err != nil {
			t.Fatal(err)
		}
	}

	testutil.MustNoErr(t, e.ApplyFlag(e.Targets("1"), model.FlagImportant, true), "ApplyFlag")
	// Applied to the store before the job finishes.
	for _, id := range []string{"2", "3"} {
		if !mustGet(t, e, id).Flags.Important {
			t.Errorf("%s should be important immediately", id)
		}
	}
	out := next(t, e)
	if out.Err != nil || out.Entry == nil {
		t.Fatalf("flag outcome = %+v", out)
	}
	testutil.AssertStrings(t, out.Entry.IDs(), "2", "3")
	if got := mustGet(t, e, "2").Path; got != "/mail/INBOX/cur/2:2,FS" {
		t.Errorf("path after flag = %q", got)
	}

	testutil.MustNoErr(t, e.Undo(), "Undo")
	out = next(t, e)
	if out.Err != nil || out.Kind != OutcomeUndo {
		t.Fatalf("undo outcome = %+v", out)
	}
	for _, id := range []string{"2", "3"} {
		m := mustGet(t, e, id)
		if m.Flags.Important {
			t.Errorf("%s still important after undo", id)
		}
		if want := "/mail/INBOX/cur/" + id + ":2,S"; m.Path != want || !client.Exists(want) {
			t.Errorf("%s path = %q, want %q restored", id, m.Path, want)
		}
	}
	testutil.AssertStrings(t, e.Store().Marked(), "2", "3")
	if mustGet(t, e, "1").Flags.Important {
		t.Error("1 was not targeted")
	}

	if err := e.Undo(); !errors.Is(err, oplog.ErrNothingToUndo) {
		t.Errorf("second undo err = %v, want ErrNothingToUndo", err)
	}
}

func TestFlagPartialFailure(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)
	client.FlagErrors["/mail/INBOX/cur/2:2,S"] = errors.New("read-only file system")

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1", "2", "3"}, model.FlagImportant, true), "ApplyFlag")
	out := next(t, e)

	var pf *PartialFailure
	if !errors.As(out.Err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", out.Err)
	}
	testutil.AssertStrings(t, pf.FailedIDs(), "2")
	testutil.AssertStrings(t, pf.Succeeded, "1", "3")
	if mustGet(t, e, "2").Flags.Important {
		t.Error("failed id should be reverted")
	}
	if !mustGet(t, e, "1").Flags.Important || !mustGet(t, e, "3").Flags.Important {
		t.Error("succeeded ids should stay applied")
	}
	testutil.AssertStrings(t, out.Entry.IDs(), "1", "3")
}

func TestFlagSkipsUnchangedAndUnknown(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", testutil.NewMsg("1").Important().Build(), testutil.NewMsg("2").Build())

	// Nothing to change: no job.
	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "ApplyFlag unchanged")
	if e.Busy() {
		t.Error("no job expected for an unchanged flag")
	}

	err := e.ApplyFlag([]string{"gone"}, model.FlagImportant, true)
	var pf *PartialFailure
	if !errors.As(err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", err)
	}
	testutil.AssertStrings(t, pf.FailedIDs(), "gone")

	if err := e.ApplyFlag([]string{"2"}, model.FlagEncrypted, true); !errors.Is(err, model.ErrFlagNotSettable) {
		t.Errorf("err = %v, want ErrFlagNotSettable", err)
	}

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1", "2", "gone"}, model.FlagImportant, true), "ApplyFlag mixed")
	out := next(t, e)
	if !errors.As(out.Err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", out.Err)
	}
	testutil.AssertStrings(t, pf.Succeeded, "2")
	testutil.AssertStrings(t, pf.FailedIDs(), "gone")
	if n := len(client.CallsOf(mu.OpFlag)); n != 1 {
		t.Errorf("flag calls = %d, want 1", n)
	}
}

func TestMarkRead(t *testing.T) {
	e, client := newTestEngine(t)
	unread := testutil.NewMsg("1").Path("/mail/INBOX/new/1").Unread().Flag(model.FlagNew, true).Build()
	load(t, e, client, "/INBOX", unread)

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagUnread, false), "ApplyFlag")
	m := mustGet(t, e, "1")
	if m.Flags.Unread || m.Flags.New {
		t.Errorf("flags = %+v, want read and not new", m.Flags)
	}
	next(t, e)
	if m := mustGet(t, e, "1"); m.Path != "/mail/INBOX/cur/1:2,S" {
		t.Errorf("path = %q", m.Path)
	}

	// Undo renames the file back into new/.
	testutil.MustNoErr(t, e.Undo(), "Undo")
	next(t, e)
	m = mustGet(t, e, "1")
	if !m.Flags.Unread || !m.Flags.New || m.Path != "/mail/INBOX/new/1" {
		t.Errorf("after undo: path %q flags %+v", m.Path, m.Flags)
	}
}

// A failed move of 5 is reported, leaves 5 where it was and logs nothing.
func TestMoveFailure(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("4", "5", "6")...)
	client.MoveErrors["/mail/INBOX/cur/5:2,S"] = errors.New("permission denied")

	testutil.MustNoErr(t, e.Archive([]string{"5"}), "Archive")
	out := next(t, e)

	var pf *PartialFailure
	if !errors.As(out.Err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", out.Err)
	}
	testutil.AssertStrings(t, pf.FailedIDs(), "5")
	if len(pf.Succeeded) != 0 {
		t.Errorf("succeeded = %v, want none", pf.Succeeded)
	}
	if m := mustGet(t, e, "5"); m.Folder != "/INBOX" {
		t.Errorf("folder = %q, want /INBOX", m.Folder)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "4", "5", "6")
	if e.CanUndo() {
		t.Error("failed move must not be logged")
	}
}

func TestMoveStopsAtFirstFailure(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3", "4")...)
	client.MoveErrors["/mail/INBOX/cur/2:2,S"] = errors.New("disk full")

	testutil.MustNoErr(t, e.Delete([]string{"1", "2", "3"}), "Delete")
	out := next(t, e)

	var pf *PartialFailure
	if !errors.As(out.Err, &pf) {
		t.Fatalf("err = %v, want PartialFailure", out.Err)
	}
	testutil.AssertStrings(t, pf.Succeeded, "1")
	testutil.AssertStrings(t, pf.FailedIDs(), "2")
	testutil.AssertStrings(t, pf.Skipped, "3")
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "2", "3", "4")
	if !client.Exists("/mail/Trash/cur/1:2,S") {
		t.Error("1 should be in the trash")
	}
	if out.Entry == nil || out.Entry.Move.ToFolder != "/Trash" {
		t.Fatalf("entry = %+v", out.Entry)
	}
	testutil.AssertStrings(t, out.Entry.IDs(), "1")
}

func TestArchiveAndUndoRestoresPositions(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3", "4", "5")...)
	before := mustGet(t, e, "4").Clone()
	_, _ = e.Mark("2")

	testutil.MustNoErr(t, e.Archive([]string{"2", "4"}), "Archive")
	out := next(t, e)
	if out.Err != nil {
		t.Fatalf("archive: %v", out.Err)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "3", "5")
	if len(e.Store().Marked()) != 0 {
		t.Error("moved ids should leave the mark set")
	}
	if !client.Exists("/mail/Archive/cur/4:2,S") {
		t.Error("4 should be in the archive")
	}

	testutil.MustNoErr(t, e.Undo(), "Undo")
	out = next(t, e)
	if out.Err != nil || out.NeedsRefresh {
		t.Fatalf("undo outcome = %+v", out)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "2", "3", "4", "5")
	after := mustGet(t, e, "4")
	if after.Folder != before.Folder || after.Path != before.Path || after.Flags != before.Flags {
		t.Errorf("restored %+v, want %+v", after, before)
	}
	if !client.Exists(before.Path) {
		t.Error("file should be back in the inbox")
	}
}

func TestMoveFromSearchViewDropsRow(t *testing.T) {
	e, client := newTestEngine(t)
	client.SetResults("from:bob", dated("1")...)
	testutil.MustNoErr(t, e.RunQuery("from:bob"), "RunQuery")
	next(t, e)

	testutil.MustNoErr(t, e.Archive([]string{"1"}), "Archive")
	next(t, e)
	if e.Store().Len() != 0 {
		t.Errorf("order = %v, want empty", e.Store().CurrentOrder())
	}

	if err := e.Archive(nil); !errors.Is(err, ErrNoTargets) {
		t.Errorf("err = %v, want ErrNoTargets", err)
	}
}

func TestUndoMoveAfterReplaceAsksForRefresh(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2")...)
	testutil.MustNoErr(t, e.Archive([]string{"1"}), "Archive")
	next(t, e)

	load(t, e, client, "/INBOX", mustGet(t, e, "2").Clone())
	testutil.MustNoErr(t, e.Undo(), "Undo")
	out := next(t, e)
	if out.Err != nil || !out.NeedsRefresh {
		t.Fatalf("undo outcome = %+v, want NeedsRefresh", out)
	}
	if !client.Exists("/mail/INBOX/cur/1:2,S") {
		t.Error("file should be restored even without reinsertion")
	}
}

func TestUndoMovePartial(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)
	testutil.MustNoErr(t, e.Archive([]string{"1", "2"}), "Archive")
	next(t, e)

	client.RemoveFile("/mail/Archive/cur/1:2,S")
	testutil.MustNoErr(t, e.Undo(), "Undo")
	out := next(t, e)

	var pu *PartialUndo
	if !errors.As(out.Err, &pu) {
		t.Fatalf("err = %v, want PartialUndo", out.Err)
	}
	testutil.AssertStrings(t, pu.FailedIDs(), "1")
	testutil.AssertStrings(t, pu.Restored, "2")
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "2", "3")
}

func TestMarksAcrossQueries(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2")...)
	_, _ = e.Mark("1")

	// Same query again keeps marks.
	load(t, e, client, "/INBOX", dated("1", "2")...)
	testutil.AssertStrings(t, e.Store().Marked(), "1")

	e.ToggleThreading()
	testutil.AssertStrings(t, e.Store().Marked(), "1")

	client.SetResults("from:x", dated("1")...)
	testutil.MustNoErr(t, e.RunQuery("from:x"), "RunQuery")
	next(t, e)
	if len(e.Store().Marked()) != 0 {
		t.Errorf("marks = %v, want cleared by a different query", e.Store().Marked())
	}
}

func TestTargets(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)

	testutil.AssertStrings(t, e.Targets("2"), "2")
	if got := e.Targets("nope"); got != nil {
		t.Errorf("targets = %v, want nil", got)
	}
	_, _ = e.Mark("3")
	_, _ = e.Mark("1")
	testutil.AssertStrings(t, e.Targets("2"), "1", "3")
}

func TestRefreshReindexesAndKeepsMarks(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1", "2")...)
	_, _ = e.Mark("2")

	client.SetResults(search.FolderQuery("/INBOX"), dated("1", "2", "3")...)
	testutil.MustNoErr(t, e.Refresh(), "Refresh")
	out := next(t, e)
	if out.Kind != OutcomeRefresh || out.Err != nil {
		t.Fatalf("refresh outcome = %+v", out)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "2", "3")
	testutil.AssertStrings(t, e.Store().Marked(), "2")

	var ops []string
	for _, c := range client.Calls {
		ops = append(ops, c.Op)
	}
	testutil.AssertStrings(t, ops, mu.OpSearch, mu.OpReindex, mu.OpSearch)
}

func TestRefreshReindexFailure(t *testing.T) {
	e, client := newTestEngine(t)
	client.ReindexError = errors.New("mu index: locked")
	testutil.MustNoErr(t, e.Refresh(), "Refresh")
	out := next(t, e)
	if out.Err == nil {
		t.Fatal("expected reindex error")
	}
	if n := len(client.CallsOf(mu.OpSearch)); n != 0 {
		t.Errorf("search ran %d times after failed reindex", n)
	}
}

// A superseded search that finishes after the newer one never replaces
// the working set.
func TestSupersededSearchDiscarded(t *testing.T) {
	client := &stubbornClient{MockClient: mu.NewMockClient(), query: "old", release: make(chan struct{})}
	e := newEngineWith(t, client, func(o *Options) { o.Workers = 2 })
	client.SetResults("old", dated("o1")...)
	client.SetResults("new", dated("n1", "n2")...)

	testutil.MustNoErr(t, e.RunQuery("old"), "RunQuery old")
	testutil.MustNoErr(t, e.RunQuery("new"), "RunQuery new")

	out := next(t, e)
	if out.Discarded || out.Err != nil {
		t.Fatalf("new search outcome = %+v", out)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "n1", "n2")

	close(client.release)
	out = next(t, e)
	if !out.Discarded {
		t.Fatalf("old search outcome = %+v, want discarded", out)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "n1", "n2")
	if e.Query() != "new" {
		t.Errorf("query = %q, want new", e.Query())
	}
}

// Changes made while a search is in flight survive its result.
func TestInFlightSearchOverlay(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) { o.Workers = 2 })
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)

	gate := make(chan struct{})
	client.SearchGates[search.FolderQuery("/INBOX")] = gate
	testutil.MustNoErr(t, e.LoadFolder("/INBOX"), "LoadFolder")

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "ApplyFlag")
	if out := next(t, e); out.Kind != OutcomeFlag || out.Err != nil {
		t.Fatalf("flag outcome = %+v", out)
	}
	testutil.MustNoErr(t, e.Archive([]string{"2"}), "Archive")
	if out := next(t, e); out.Kind != OutcomeMove || out.Err != nil {
		t.Fatalf("move outcome = %+v", out)
	}

	close(gate)
	if out := next(t, e); out.Kind != OutcomeSearch || out.Discarded {
		t.Fatalf("search outcome = %+v", out)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "3")
	m := mustGet(t, e, "1")
	if !m.Flags.Important || m.Path != "/mail/INBOX/cur/1:2,FS" {
		t.Errorf("stale record installed: %+v", m)
	}
}

func TestSameKeyMutationsApplyInOrder(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) { o.Workers = 3 })
	load(t, e, client, "/INBOX", dated("1")...)

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "flag")
	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagReplied, true), "flag")
	testutil.MustNoErr(t, e.Archive([]string{"1"}), "archive")
	for i := 0; i < 3; i++ {
		if out := next(t, e); out.Err != nil {
			t.Fatalf("outcome %d: %v", i, out.Err)
		}
	}

	moves := client.CallsOf(mu.OpMove)
	if len(moves) != 1 || moves[0].From != "/mail/INBOX/cur/1:2,FRS" || moves[0].To != "/mail/Archive/cur/1:2,FRS" {
		t.Errorf("move calls = %+v", moves)
	}
}

// drain applies n completions and returns their outcomes.
func drain(t *testing.T, e *Engine, n int) []Outcome {
	t.Helper()
	outs := make([]Outcome, n)
	for i := range outs {
		outs[i] = next(t, e)
	}
	return outs
}

// Undo pressed while a flag batch is still running undoes that batch,
// not the archive logged before it.
func TestUndoWaitsForPendingFlag(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("a", "b")...)
	testutil.MustNoErr(t, e.Archive([]string{"a"}), "Archive")
	next(t, e)

	testutil.MustNoErr(t, e.ApplyFlag([]string{"b"}, model.FlagImportant, true), "ApplyFlag")
	testutil.MustNoErr(t, e.Undo(), "Undo")
	outs := drain(t, e, 3)

	if outs[0].Kind != OutcomeFlag || outs[0].Err != nil {
		t.Fatalf("first outcome = %+v, want flag", outs[0])
	}
	if outs[1].Kind != OutcomeUndo || !outs[1].Pending {
		t.Fatalf("second outcome = %+v, want pending undo", outs[1])
	}
	if outs[2].Kind != OutcomeUndo || outs[2].Err != nil || outs[2].Status != "undo: set important on 1 message" {
		t.Fatalf("third outcome = %+v", outs[2])
	}
	b := mustGet(t, e, "b")
	if b.Flags.Important || b.Path != "/mail/INBOX/cur/b:2,S" {
		t.Errorf("b = %+v, want flag undone", b)
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "b")
	if !client.Exists("/mail/Archive/cur/a:2,S") {
		t.Error("a should stay archived")
	}
	if e.CanUndo() {
		t.Error("log should be empty")
	}
}

func TestUndoWaitsForPendingMove(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) { o.UndoDepth = 2 })
	load(t, e, client, "/INBOX", dated("1", "2", "3")...)
	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "ApplyFlag")
	next(t, e)

	testutil.MustNoErr(t, e.Archive([]string{"2"}), "Archive")
	testutil.MustNoErr(t, e.Undo(), "Undo")
	outs := drain(t, e, 3)
	if outs[2].Err != nil || outs[2].Status != "undo: move 1 message to Archive" {
		t.Fatalf("undo outcome = %+v", outs[2])
	}
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "1", "2", "3")
	if !mustGet(t, e, "1").Flags.Important {
		t.Error("flag on 1 must survive the undo of the archive")
	}
	if e.log.Len() != 1 {
		t.Errorf("log len = %d, want the flag entry left", e.log.Len())
	}
}

// An undo waits only for operations issued before it; a later batch that
// is recorded first is not the one undone.
func TestUndoIgnoresLaterBatch(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) {
		o.Workers = 3
		o.UndoDepth = 2
	})
	load(t, e, client, "/INBOX", dated("1", "2")...)

	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "flag 1")
	testutil.MustNoErr(t, e.Undo(), "Undo")
	testutil.MustNoErr(t, e.ApplyFlag([]string{"2"}, model.FlagReplied, true), "flag 2")
	drain(t, e, 4)

	if mustGet(t, e, "1").Flags.Important {
		t.Error("flag on 1 should be undone")
	}
	if !mustGet(t, e, "2").Flags.Replied {
		t.Error("flag on 2 was issued after the undo and must stay")
	}
	entry, ok := e.log.Peek()
	if !ok || e.log.Len() != 1 {
		t.Fatalf("log len = %d, want 1", e.log.Len())
	}
	testutil.AssertStrings(t, entry.IDs(), "2")
}

// A flag issued while an undo of the same message is queued runs after
// it on the restored file.
func TestFlagAfterQueuedUndo(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) { o.Workers = 3 })
	load(t, e, client, "/INBOX", dated("1")...)
	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagImportant, true), "flag")
	next(t, e)

	testutil.MustNoErr(t, e.Undo(), "Undo")
	testutil.MustNoErr(t, e.ApplyFlag([]string{"1"}, model.FlagReplied, true), "flag")
	outs := drain(t, e, 2)
	if outs[0].Kind != OutcomeUndo || outs[1].Kind != OutcomeFlag {
		t.Fatalf("outcome kinds = %v, %v; want undo then flag", outs[0].Kind, outs[1].Kind)
	}
	for i, out := range outs {
		if out.Err != nil {
			t.Fatalf("outcome %d: %v", i, out.Err)
		}
	}

	m := mustGet(t, e, "1")
	if m.Flags.Important || !m.Flags.Replied {
		t.Errorf("flags = %+v, want replied only", m.Flags)
	}
	if m.Path != "/mail/INBOX/cur/1:2,RS" || !client.Exists(m.Path) {
		t.Errorf("path = %q", m.Path)
	}
}

// A deferred undo behind a batch that failed outright finds nothing.
func TestDeferredUndoNothingToUndo(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1")...)
	client.MoveErrors["/mail/INBOX/cur/1:2,S"] = errors.New("permission denied")

	testutil.MustNoErr(t, e.Archive([]string{"1"}), "Archive")
	testutil.MustNoErr(t, e.Undo(), "Undo")
	outs := drain(t, e, 2)
	if outs[0].Err == nil {
		t.Fatal("archive should fail")
	}
	if outs[1].Kind != OutcomeUndo || !errors.Is(outs[1].Err, oplog.ErrNothingToUndo) {
		t.Errorf("undo outcome = %+v, want ErrNothingToUndo", outs[1])
	}
	if err := e.Undo(); !errors.Is(err, oplog.ErrNothingToUndo) {
		t.Errorf("later undo err = %v", err)
	}
}

// Moving a thread parent out of a threaded view lays the rest out again.
func TestThreadedMoveRelaysOut(t *testing.T) {
	e, client := newTestEngine(t, func(o *Options) { o.Threading = true })
	parent := testutil.NewMsg("p").At(0).Build()
	child := testutil.NewMsg("c").Refs("p").At(time.Hour).Build()
	other := testutil.NewMsg("o").At(30 * time.Minute).Build()
	load(t, e, client, "/INBOX", parent, child, other)
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "p", "c", "o")

	testutil.MustNoErr(t, e.Archive([]string{"p"}), "Archive")
	next(t, e)
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "o", "c")
	for _, r := range e.CurrentView() {
		if r.Depth != 0 || r.Prefix != "" {
			t.Errorf("row %s depth=%d prefix=%q, want a root", r.ID, r.Depth, r.Prefix)
		}
	}

	testutil.MustNoErr(t, e.Undo(), "Undo")
	next(t, e)
	testutil.AssertStrings(t, e.Store().CurrentOrder(), "p", "c", "o")
	if rows := e.CurrentView(); rows[1].Depth != 1 {
		t.Errorf("child depth = %d, want 1", rows[1].Depth)
	}
}

func TestOpen(t *testing.T) {
	e, client := newTestEngine(t)
	msg := testutil.NewMsg("1").Path("/mail/INBOX/cur/1:2,").Unread().Build()
	client.Details[msg.Path] = &model.Detail{Subject: msg.Subject, Text: "hello"}
	load(t, e, client, "/INBOX", msg)

	testutil.MustNoErr(t, e.Open("1"), "Open")
	out := next(t, e)
	if out.Err != nil || out.Detail == nil {
		t.Fatalf("open outcome = %+v", out)
	}
	if out.Detail.Text != "hello" || out.Detail.Path != "/mail/INBOX/cur/1:2,S" {
		t.Errorf("detail = %+v", out.Detail)
	}
	if m := mustGet(t, e, "1"); m.Flags.Unread || m.Path != "/mail/INBOX/cur/1:2,S" {
		t.Errorf("record after open = %+v", m)
	}
	if e.CanUndo() {
		t.Error("open must not be undoable")
	}
}

func TestOpenMissingFile(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", testutil.NewMsg("1").Path("/mail/INBOX/cur/1:2,").Unread().Build())

	testutil.MustNoErr(t, e.Open("1"), "Open")
	out := next(t, e)
	if !mu.IsIndexServiceError(out.Err) {
		t.Fatalf("err = %v, want IndexServiceError", out.Err)
	}
	if !mustGet(t, e, "1").Flags.Unread {
		t.Error("failed open should leave the message unread")
	}
}

func TestShowThread(t *testing.T) {
	e, client := newTestEngine(t)
	reply := testutil.NewMsg("b@x").Refs("a@x").Build()
	load(t, e, client, "/INBOX", reply)

	q := search.ThreadQuery("b@x", "a@x")
	client.SetResults(q, testutil.NewMsg("a@x").Build(), reply)
	testutil.MustNoErr(t, e.ShowThread("b@x"), "ShowThread")
	next(t, e)

	calls := client.CallsOf(mu.OpSearch)
	if last := calls[len(calls)-1]; last.Query != q {
		t.Errorf("thread query = %q, want %q", last.Query, q)
	}
	if e.Query() != q || e.Store().Len() != 2 {
		t.Errorf("view = %q with %d messages", e.Query(), e.Store().Len())
	}
}

func TestContacts(t *testing.T) {
	e, client := newTestEngine(t)
	client.ContactResults = []model.Contact{{Name: "Alice", Address: "alice@example.com"}, {Name: "Bob", Address: "bob@example.com"}}

	testutil.MustNoErr(t, e.Contacts("ali"), "Contacts")
	out := next(t, e)
	if out.Kind != OutcomeContacts || len(out.Contacts) != 1 || out.Contacts[0].Name != "Alice" {
		t.Errorf("contacts outcome = %+v", out)
	}
}

func TestCloseRejectsWork(t *testing.T) {
	e, client := newTestEngine(t)
	load(t, e, client, "/INBOX", dated("1")...)
	e.Close()
	if err := e.Archive([]string{"1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
