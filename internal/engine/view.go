package engine

import (
	"strings"
	"time"

	"github.com/wesm/mudex/internal/model"
)

// Style is the engine's rendering decision for a row. The UI maps it to
// colors.
type Style int

const (
	StyleNormal Style = iota
	StyleUnread
	StyleImportant
	StyleMarked
)

func (s Style) String() string {
	switch s {
	case StyleUnread:
		return "unread"
	case StyleImportant:
		return "important"
	case StyleMarked:
		return "marked"
	}
	return "normal"
}

// Glyphs are the flag column symbols.
type Glyphs struct {
	Unread     string
	Replied    string
	Forwarded  string
	Important  string
	Attachment string
	Encrypted  string
	Signed     string
}

// Display holds row formatting parameters. Date layouts are Go time
// layouts.
type Display struct {
	DateFormat      string // older than this year
	ShortDateFormat string // this year
	TimeFormat      string // today
	Glyphs          Glyphs
	Now             func() time.Time
}

// DefaultDisplay returns the built-in layouts and glyphs.
func DefaultDisplay() Display {
	return Display{
		DateFormat:      "2006-01-02",
		ShortDateFormat: "Jan 02",
		TimeFormat:      "15:04",
		Glyphs: Glyphs{
			Unread:     "●",
			Replied:    "↩",
			Forwarded:  "→",
			Important:  "⚑",
			Attachment: "📎",
			Encrypted:  "🔒",
			Signed:     "✓",
		},
		Now: time.Now,
	}
}

func (d Display) withDefaults() Display {
	def := DefaultDisplay()
	if d.DateFormat == "" {
		d.DateFormat = def.DateFormat
	}
	if d.ShortDateFormat == "" {
		d.ShortDateFormat = def.ShortDateFormat
	}
	if d.TimeFormat == "" {
		d.TimeFormat = def.TimeFormat
	}
	if d.Glyphs == (Glyphs{}) {
		d.Glyphs = def.Glyphs
	}
	if d.Now == nil {
		d.Now = def.Now
	}
	return d
}

// FormatDate renders t with the time layout for today, the short layout
// for this year and the full layout otherwise.
func (d Display) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := d.Now()
	t = t.In(now.Location())
	switch {
	case sameDay(t, now):
		return t.Format(d.TimeFormat)
	case t.Year() == now.Year():
		return t.Format(d.ShortDateFormat)
	}
	return t.Format(d.DateFormat)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FlagGlyphs renders the flag column for f.
func (d Display) FlagGlyphs(f model.Flags) string {
	var b strings.Builder
	add := func(on bool, glyph string) {
		if on {
			b.WriteString(glyph)
		}
	}
	add(f.Unread, d.Glyphs.Unread)
	add(f.Replied, d.Glyphs.Replied)
	add(f.Forwarded, d.Glyphs.Forwarded)
	add(f.Important, d.Glyphs.Important)
	add(f.Attachment, d.Glyphs.Attachment)
	add(f.Encrypted, d.Glyphs.Encrypted)
	add(f.Signed, d.Glyphs.Signed)
	return b.String()
}

// Row is one line of the index view.
type Row struct {
	ID      string
	Depth   int
	Prefix  string // tree connectors, empty when flat
	Glyphs  string
	Date    string
	From    string
	Subject string
	Style   Style
	Marked  bool
}

// RowStyle picks the style: marked over important over unread.
func RowStyle(f model.Flags, marked bool) Style {
	switch {
	case marked:
		return StyleMarked
	case f.Important:
		return StyleImportant
	case f.Unread:
		return StyleUnread
	}
	return StyleNormal
}

// CurrentView renders the working set in display order.
func (e *Engine) CurrentView() []Row {
	d := e.opts.Display
	msgs := e.store.Messages()
	rows := make([]Row, 0, len(msgs))
	for _, m := range msgs {
		marked := e.store.IsMarked(m.ID)
		r := Row{
			ID:      m.ID,
			Glyphs:  d.FlagGlyphs(m.Flags),
			Date:    d.FormatDate(m.Date),
			From:    m.Sender().String(),
			Subject: m.Subject,
			Style:   RowStyle(m.Flags, marked),
			Marked:  marked,
		}
		if e.threading {
			if en, ok := e.layout[m.ID]; ok {
				r.Depth = en.Depth
				r.Prefix = en.Prefix()
			}
		}
		rows = append(rows, r)
	}
	return rows
}
