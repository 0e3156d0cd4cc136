package mu

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wesm/mudex/internal/testutil"
	"github.com/wesm/mudex/internal/testutil/email"
)

const findJSON = `[
 {":docid": 1, ":msgid": "a@x", ":path": "/mail/INBOX/cur/1:2,S", ":maildir": "/INBOX",
  ":subject": "hello", ":date": [26000, 1234, 0],
  ":from": [{":name": "Alice", ":email": "alice@example.com"}],
  ":flags": ["seen", "attach"]},
 {":docid": 2, ":msgid": "b@x", ":path": "/mail/INBOX/cur/2:2,", ":maildir": "/INBOX",
  ":subject": "Re: hello", ":references": ["a@x"], ":flags": ["unread", "flagged"]},
 {":docid": 3, ":msgid": "a@x", ":path": "/mail/INBOX/cur/dup:2,S"}
]`

func TestSearchArgsAndParse(t *testing.T) {
	r := newFakeRunner()
	r.on("find", scripted{stdout: findJSON})
	c := New(r)

	msgs, err := c.Search(context.Background(), SearchOptions{
		Query:      "maildir:/INBOX",
		MaxResults: 50,
		Descending: true,
		Threads:    true,
	})
	testutil.MustNoErr(t, err, "Search")

	testutil.AssertStrings(t, r.subcommands(),
		"find --format=json --sortfield=date --skip-dups --reverse --maxnum=50 --threads maildir:/INBOX")
	testutil.AssertStrings(t, testutil.IDs(msgs), "a@x", "b@x")

	a, b := msgs[0], msgs[1]
	if a.Flags.Unread || !a.Flags.Attachment || a.Attachments != 1 {
		t.Errorf("a flags = %+v, attachments = %d", a.Flags, a.Attachments)
	}
	if a.Sender().Name != "Alice" {
		t.Errorf("a sender = %q, want Alice", a.Sender().Name)
	}
	if want := int64(26000)<<16 + 1234; a.Date.Unix() != want {
		t.Errorf("a date = %d, want %d", a.Date.Unix(), want)
	}
	if !b.Flags.Unread || !b.Flags.Important {
		t.Errorf("b flags = %+v", b.Flags)
	}
	testutil.AssertStrings(t, b.References, "a@x")
}

func TestSearchNoMatches(t *testing.T) {
	r := newFakeRunner()
	r.on("find", scripted{stderr: "mu: no matches for search expression\n", err: errors.New("exit status 4")})

	msgs, err := New(r).Search(context.Background(), SearchOptions{Query: "nothing"})
	testutil.MustNoErr(t, err, "Search")
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %v, want empty non-nil slice", msgs)
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		resp   scripted
		reason string
	}{
		{"empty query", "  ", scripted{}, "empty query"},
		{"process failure", "x", scripted{stderr: "mu: database locked\nmore detail", err: errors.New("exit status 1")}, "mu: database locked"},
		{"bad output", "x", scripted{stdout: "{not json"}, "unparseable output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			r.on("find", tt.resp)
			_, err := New(r).Search(context.Background(), SearchOptions{Query: tt.query})
			var ise *IndexServiceError
			if !errors.As(err, &ise) {
				t.Fatalf("err = %v, want IndexServiceError", err)
			}
			if ise.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", ise.Reason, tt.reason)
			}
		})
	}
}

func TestSearchCancelled(t *testing.T) {
	r := newFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(r).Search(ctx, SearchOptions{Query: "x"})
	var ise *IndexServiceError
	if !errors.As(err, &ise) || ise.Reason != "cancelled" {
		t.Fatalf("err = %v, want cancelled IndexServiceError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err should wrap context.Canceled")
	}
}

func TestSearchJSONLines(t *testing.T) {
	r := newFakeRunner()
	r.on("find", scripted{stdout: `{":msgid":"one"}` + "\n" + `{":path":"/m/cur/2"}` + "\n"})

	msgs, err := New(r).Search(context.Background(), SearchOptions{Query: "x"})
	testutil.MustNoErr(t, err, "Search")
	testutil.AssertStrings(t, testutil.IDs(msgs), "one", "path:/m/cur/2")
}

func TestContacts(t *testing.T) {
	r := newFakeRunner()
	r.on("cfind", scripted{stdout: `[{"name":"Alice","email":"alice@example.com"},{"name":"nobody"}]`})

	got, err := New(r).Contacts(context.Background(), "ali", ContactOptions{Personal: true, MaxResults: 5})
	testutil.MustNoErr(t, err, "Contacts")
	testutil.AssertStrings(t, r.subcommands(), "cfind --format=json --personal --maxnum=5 ali")
	if len(got) != 1 || got[0].Address != "alice@example.com" || got[0].Name != "Alice" {
		t.Errorf("contacts = %+v", got)
	}
}

func TestContactLines(t *testing.T) {
	got := parseContacts([]byte("Bob <bob@example.com>\ncarol@example.com\n"))
	if len(got) != 2 || got[0].Name != "Bob" || got[1].Address != "carol@example.com" {
		t.Errorf("contacts = %+v", got)
	}
}

func TestReindexLazy(t *testing.T) {
	r := newFakeRunner()
	testutil.MustNoErr(t, New(r).ReindexAll(context.Background()), "lazy")
	testutil.MustNoErr(t, New(r).WithLazyIndex(false).ReindexAll(context.Background()), "full")
	testutil.AssertStrings(t, r.subcommands(), "index --lazy-check", "index")
}

func TestRootMaildirFromInfo(t *testing.T) {
	r := newFakeRunner()
	r.on("info", scripted{stdout: "+---------+--------------+\n| maildir | /srv/mail    |\n+---------+--------------+\n"})
	c := New(r)

	for i := 0; i < 2; i++ {
		root, err := c.RootMaildir(context.Background())
		testutil.MustNoErr(t, err, "RootMaildir")
		if root != "/srv/mail" {
			t.Errorf("root = %q, want /srv/mail", root)
		}
	}
	if n := len(r.subcommands()); n != 1 {
		t.Errorf("mu info ran %d times, want 1", n)
	}
}

func TestFoldersAndFolderOf(t *testing.T) {
	root := testutil.NewMaildir(t, "/INBOX", "/Archive", "/work/lists")
	c := New(newFakeRunner()).WithMaildir(root)

	folders, err := c.Folders(context.Background())
	testutil.MustNoErr(t, err, "Folders")
	testutil.AssertStrings(t, folders, "/Archive", "/INBOX", "/work/lists")

	p := filepath.Join(root, "work", "lists", "cur", "1:2,S")
	if got := c.FolderOf(context.Background(), p); got != "/work/lists" {
		t.Errorf("FolderOf = %q, want /work/lists", got)
	}
	if got := c.FolderOf(context.Background(), "/elsewhere/cur/1"); got != "" {
		t.Errorf("FolderOf outside root = %q, want empty", got)
	}
}

func TestView(t *testing.T) {
	root := testutil.NewMaildir(t, "/INBOX")
	raw := email.NewMessage().Subject("Quarterly plan").Body("See attached numbers.").Bytes()
	path := testutil.Deliver(t, root, "/INBOX", "cur", "1:2,S", raw)
	c := New(newFakeRunner()).WithMaildir(root)

	d, err := c.View(context.Background(), path)
	testutil.MustNoErr(t, err, "View")
	if d.Subject != "Quarterly plan" || d.Path != path {
		t.Errorf("detail = %+v", d)
	}
	testutil.AssertContainsAll(t, d.Text, "See attached numbers.")

	_, err = c.View(context.Background(), filepath.Join(root, "INBOX", "cur", "missing"))
	if !IsIndexServiceError(err) || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file err = %v", err)
	}
}
