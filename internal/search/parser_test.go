package search

import (
	"testing"

	"github.com/wesm/mudex/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{
			name:  "from field",
			query: "from:Alice@Example.com",
			want:  Query{FromAddrs: []string{"alice@example.com"}},
		},
		{
			name:  "shortcut fields",
			query: "f:bob s:report m:/INBOX g:unread i:abc@x",
			want: Query{
				FromAddrs:    []string{"bob"},
				SubjectTerms: []string{"report"},
				Maildirs:     []string{"/INBOX"},
				Flags:        []string{"unread"},
				MsgIDs:       []string{"abc@x"},
			},
		},
		{
			name:  "bare text",
			query: "hello world",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},
		{
			name:  "quoted phrase",
			query: `"quarterly report" budget`,
			want:  Query{TextTerms: []string{"quarterly report", "budget"}},
		},
		{
			name:  "quoted field value",
			query: `subject:"weekly sync" maildir:"/Lists/go nuts"`,
			want: Query{
				SubjectTerms: []string{"weekly sync"},
				Maildirs:     []string{"/Lists/go nuts"},
			},
		},
		{
			name:  "boolean operators and parens dropped",
			query: "(from:alice OR from:bob) AND NOT flag:trashed",
			want: Query{
				FromAddrs: []string{"alice", "bob"},
				Flags:     []string{"trashed"},
			},
		},
		{
			name:  "unknown fields kept",
			query: "date:2w.. size:1M..",
			want:  Query{Others: []string{"date:2w..", "size:1M.."}},
		},
		{
			name:  "empty",
			query: "   ",
			want:  Query{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertParsed(t, tt.query, tt.want)
		})
	}
}

func TestQueryFolder(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"maildir:/INBOX", "/INBOX"},
		{`maildir:"/My Folder"`, "/My Folder"},
		{"maildir:/INBOX from:alice", ""},
		{"maildir:/INBOX OR maildir:/Archive", ""},
		{"hello", ""},
	}
	for _, tt := range tests {
		if got := Parse(tt.query).Folder(); got != tt.want {
			t.Errorf("Parse(%q).Folder() = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestIsEmpty(t *testing.T) {
	if !Parse("").IsEmpty() {
		t.Error("empty query not empty")
	}
	if Parse("AND").IsEmpty() != true {
		t.Error("operator-only query should be empty")
	}
	if Parse("x").IsEmpty() {
		t.Error("text query reported empty")
	}
}

func TestHighlightTerms(t *testing.T) {
	q := Parse(`budget subject:Q3 from:carol maildir:/INBOX`)
	testutil.AssertStrings(t, q.HighlightTerms(), "budget", "Q3", "carol")
}

func TestFolderQueryRoundTrip(t *testing.T) {
	for _, folder := range []string{"/INBOX", "/Lists/go nuts", "/Archive"} {
		if got := Parse(FolderQuery(folder)).Folder(); got != folder {
			t.Errorf("Folder(FolderQuery(%q)) = %q", folder, got)
		}
	}
}

func TestThreadQuery(t *testing.T) {
	got := ThreadQuery("c@x", "a@x", "b@x", "a@x", "")
	want := "msgid:c@x OR refs:c@x OR msgid:a@x OR refs:a@x OR msgid:b@x OR refs:b@x"
	if got != want {
		t.Errorf("ThreadQuery() = %q, want %q", got, want)
	}
	if ThreadQuery() != "" {
		t.Error("ThreadQuery() with no ids should be empty")
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := map[string]string{
		"Re: Lunch":            "Lunch",
		"RE: Fwd: re: Lunch":   "Lunch",
		"Fw: Lunch":            "Lunch",
		"Re[2]: Lunch":         "Lunch",
		"AW: Treffen":          "Treffen",
		"Lunch re: plans":      "Lunch re: plans",
		"   ":                  "",
	}
	for in, want := range tests {
		if got := NormalizeSubject(in); got != want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SubjectQuery("Re: weekly sync"); got != `subject:"weekly sync"` {
		t.Errorf("SubjectQuery() = %q", got)
	}
	if SubjectQuery("Re:") != "" {
		t.Error("SubjectQuery of empty subject should be empty")
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":       "plain",
		"has space":   `"has space"`,
		`say "hi"`:    `"say \"hi\""`,
		"":            `""`,
		"a(b)":        `"a(b)"`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %q, want %q", in, got, want)
		}
	}
}
