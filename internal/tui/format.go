package tui

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/search"
)

// fit pads or cuts s to exactly width cells. s may contain ANSI codes.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	if w > width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-w)
}

// clip flattens s to one line and shortens it to maxWidth cells with an
// ellipsis.
func clip(s string, maxWidth int) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return ' '
		case '\r':
			return -1
		}
		return r
	}, s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	tail := "…"
	if maxWidth < 2 {
		tail = ""
	}
	return runewidth.Truncate(s, maxWidth, tail)
}

// joinAddresses renders addrs as "Name <email>, …".
func joinAddresses(addrs []model.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		switch {
		case a.Name == "":
			parts = append(parts, a.Email)
		case a.Email == "":
			parts = append(parts, a.Name)
		default:
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Email))
		}
	}
	return strings.Join(parts, ", ")
}

// wrap breaks text into lines of at most width cells, preferring spaces.
func wrap(text string, width int) []string {
	if width <= 0 {
		width = 80
	}
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		for runewidth.StringWidth(line) > width {
			cut := breakPoint(line, width)
			out = append(out, strings.TrimRight(line[:cut], " "))
			line = strings.TrimLeft(line[cut:], " ")
		}
		out = append(out, line)
	}
	return out
}

// breakPoint is the byte offset to split line at so the head fits width.
func breakPoint(line string, width int) int {
	cells, end, space := 0, 0, -1
	for i, r := range line {
		rw := runewidth.RuneWidth(r)
		if cells+rw > width {
			break
		}
		cells += rw
		end = i + utf8.RuneLen(r)
		if r == ' ' {
			space = i
		}
	}
	if end == 0 {
		_, size := utf8.DecodeRuneInString(line)
		return size
	}
	if space > end/2 {
		return space
	}
	return end
}

// highlight marks case-insensitive occurrences of the query's free terms.
func highlight(text, query string) string {
	if text == "" || query == "" {
		return text
	}
	return markTerms(text, search.Parse(query).HighlightTerms())
}

type span struct{ start, end int }

// markTerms works on runes so case folding that changes byte length does
// not shift offsets.
func markTerms(text string, terms []string) string {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	if len(lower) != len(runes) {
		return text
	}
	var spans []span
	for _, term := range terms {
		t := []rune(strings.ToLower(term))
		if len(t) == 0 {
			continue
		}
		for i := 0; i+len(t) <= len(lower); i++ {
			if string(lower[i:i+len(t)]) == string(t) {
				spans = append(spans, span{i, i + len(t)})
				i += len(t) - 1
			}
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(string(runes[prev:s.start]))
		b.WriteString(highlightStyle.Render(string(runes[s.start:s.end])))
		prev = s.end
	}
	b.WriteString(string(runes[prev:]))
	return b.String()
}

// humanSize renders a byte count like "12 KB".
func humanSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
