package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/wesm/mudex/internal/engine"
)

// printer writes command output, styled only when stdout is a terminal.
type printer struct {
	w      io.Writer
	styled bool
	bold   lipgloss.Style
	faint  lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &printer{
		w:      w,
		styled: styled,
		bold:   lipgloss.NewStyle().Bold(true),
		faint:  lipgloss.NewStyle().Faint(true),
	}
}

func (p *printer) header(s string) {
	if p.styled {
		s = p.bold.Render(s)
	}
	fmt.Fprintln(p.w, s)
}

func (p *printer) note(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if p.styled {
		s = p.faint.Render(s)
	}
	fmt.Fprintln(p.w, s)
}

// rows prints the index rows as fixed columns.
func (p *printer) rows(rows []engine.Row, withID bool) {
	for _, r := range rows {
		var b strings.Builder
		if withID {
			b.WriteString(r.ID)
			b.WriteString("\t")
		}
		b.WriteString(column(r.Glyphs, 4))
		b.WriteString(" ")
		b.WriteString(column(r.Date, 16))
		b.WriteString(" ")
		b.WriteString(column(r.From, 22))
		b.WriteString(" ")
		b.WriteString(r.Prefix + r.Subject)
		line := b.String()
		if p.styled && r.Style == engine.StyleUnread {
			line = p.bold.Render(line)
		}
		fmt.Fprintln(p.w, line)
	}
}

func column(s string, width int) string {
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillRight(s, width)
}
