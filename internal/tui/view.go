package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/mime"
	"github.com/wesm/mudex/internal/model"
)

// Monochrome theme, adaptive for light and dark terminals. Message colors
// come from the config.
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}
	dimText  = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	headerStyle    = lipgloss.NewStyle().Bold(true)
	separatorStyle = lipgloss.NewStyle().Faint(true)
	cursorRowStyle = lipgloss.NewStyle().Background(bgCursor)
	labelStyle     = lipgloss.NewStyle().Bold(true).Foreground(dimText)
	spinnerStyle   = lipgloss.NewStyle().Bold(true)
	footerStyle    = lipgloss.NewStyle().Foreground(dimText).Padding(0, 1)
	errorStyle     = lipgloss.NewStyle().Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"})

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#e8d44d")).
			Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().Bold(true)
)

// rowStyles maps the engine's row styles to lipgloss styles.
type rowStyles map[engine.Style]lipgloss.Style

func newRowStyles(c Colors) rowStyles {
	if c.Unread == "" {
		c.Unread = "4"
	}
	if c.Important == "" {
		c.Important = "208"
	}
	if c.Marked == "" {
		c.Marked = "reverse"
	}
	return rowStyles{
		engine.StyleNormal:    lipgloss.NewStyle(),
		engine.StyleUnread:    colorStyle(c.Unread).Bold(true),
		engine.StyleImportant: colorStyle(c.Important),
		engine.StyleMarked:    colorStyle(c.Marked),
	}
}

// colorStyle accepts a lipgloss color or one of "reverse" and "bold".
func colorStyle(v string) lipgloss.Style {
	s := lipgloss.NewStyle()
	switch strings.ToLower(v) {
	case "reverse":
		return s.Reverse(true)
	case "bold":
		return s.Bold(true)
	}
	return s.Foreground(lipgloss.Color(v))
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	var body string
	if m.level == levelDetail {
		body = m.detailView()
	} else {
		body = m.indexView()
	}
	screen := strings.Join([]string{m.titleBar(), body, m.infoLine(), m.footer()}, "\n")
	if m.modal != modalNone {
		return m.overlayModal(screen)
	}
	return screen
}

func (m Model) titleBar() string {
	title := "mudex"
	if m.opts.Version != "" {
		title += " " + m.opts.Version
	}
	where := m.engine.Query()
	if where == "" {
		where = m.opts.Folders.Inbox
	}
	right := fmt.Sprintf("%d messages", len(m.rows))
	if n := len(m.engine.Store().Marked()); n > 0 {
		right += fmt.Sprintf(", %d marked", n)
	}
	if m.engine.Threading() {
		right += ", threaded"
	}
	left := title + " │ " + clip(where, max(m.width/2, 10))
	gap := max(m.width-2-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return titleBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// subjectWidth is what remains of the row after the fixed columns.
func (m Model) subjectWidth() int {
	c := m.opts.Columns
	return max(m.width-c.Flags-c.Date-c.From-3, 10)
}

func (m Model) indexView() string {
	c := m.opts.Columns
	var b strings.Builder
	b.WriteString(headerStyle.Render(fit(
		fit("", c.Flags)+" "+fit("Date", c.Date)+" "+fit("From", c.From)+" Subject", m.width)))
	b.WriteByte('\n')
	b.WriteString(separatorStyle.Render(strings.Repeat("─", max(m.width, 0))))

	rows := m.listRows()
	end := min(m.scrollOffset+rows, len(m.rows))
	shown := 0
	for i := m.scrollOffset; i < end; i++ {
		b.WriteByte('\n')
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor))
		shown++
	}
	if len(m.rows) == 0 {
		b.WriteString("\n" + fit("  No messages", m.width))
		shown++
	}
	for ; shown < rows; shown++ {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", max(m.width, 0)))
	}
	return b.String()
}

func (m Model) renderRow(r engine.Row, isCursor bool) string {
	c := m.opts.Columns
	subject := r.Prefix + highlight(clip(r.Subject, m.subjectWidth()-len([]rune(r.Prefix))), m.engine.Query())
	line := fit(r.Glyphs, c.Flags) + " " +
		fit(r.Date, c.Date) + " " +
		fit(clip(r.From, c.From), c.From) + " " +
		subject
	line = fit(line, m.width)

	style := m.styles[r.Style]
	if isCursor && r.Style != engine.StyleMarked {
		style = style.Inherit(cursorRowStyle)
	}
	return style.Render(line)
}

// infoLine shows the spinner, the pending bar prompt or the flash message.
func (m Model) infoLine() string {
	var parts []string
	if m.busy() {
		parts = append(parts, spinnerStyle.Render(spinnerFrames[m.spinnerFrame]))
	}
	switch {
	case m.flash != "" && m.flashErr:
		parts = append(parts, errorStyle.Render(m.flash))
	case m.flash != "":
		parts = append(parts, flashStyle.Render(m.flash))
	}
	return fit(" "+strings.Join(parts, " "), m.width)
}

func (m Model) footer() string {
	var content string
	switch m.bar {
	case barConfirm:
		content = m.pending.prompt + " [y/n]"
	case barFlag:
		content = "Flag: u unread, n new, f important (uppercase clears), esc cancel"
	case barPrompt:
		content = m.input.View()
	default:
		bindings := m.keys.indexFooter()
		if m.level == levelDetail {
			bindings = m.keys.detailFooter()
		}
		content = m.help.ShortHelpView(bindings)
	}
	return footerStyle.Render(fit(content, max(m.width-2, 0)))
}

// showDetail switches to the detail view for d.
func (m *Model) showDetail(d *model.Detail, msg *model.Message) {
	m.detail = d
	m.detailMsg = msg
	m.level = levelDetail
	if msg != nil {
		m.setCursor(m.rowIndex(msg.ID))
	}
	m.renderDetail()
	m.viewport.GotoTop()
}

func (m *Model) closeDetail() {
	m.level = levelIndex
	m.detail = nil
	m.detailMsg = nil
	m.fullHeaders = false
}

// detailHeaders are the header lines above the body.
func (m Model) detailHeaders() []string {
	d := m.detail
	if d == nil {
		return nil
	}
	line := func(label, value string) string {
		return fit(labelStyle.Render(fmt.Sprintf("%-9s", label+":"))+" "+clip(value, max(m.width-10, 10)), m.width)
	}
	if m.fullHeaders && len(d.Headers) > 0 {
		names := make([]string, 0, len(d.Headers))
		for name := range d.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, fit(labelStyle.Render(name+":")+" "+clip(d.Headers[name], max(m.width-len(name)-2, 10)), m.width))
		}
		return lines
	}

	lines := []string{line("From", joinAddresses(d.From)), line("To", joinAddresses(d.To))}
	if len(d.Cc) > 0 {
		lines = append(lines, line("Cc", joinAddresses(d.Cc)))
	}
	if !d.Date.IsZero() {
		lines = append(lines, line("Date", d.Date.Format(time.RFC1123Z)))
	}
	lines = append(lines, line("Subject", d.Subject))
	if len(d.Attachments) > 0 {
		names := make([]string, 0, len(d.Attachments))
		for _, a := range d.Attachments {
			name := a.Filename
			if name == "" {
				name = a.ContentType
			}
			names = append(names, fmt.Sprintf("%s (%s)", name, humanSize(a.Size)))
		}
		lines = append(lines, line("Attach", strings.Join(names, ", ")))
	}
	return lines
}

// renderDetail sizes the viewport below the headers and fills it.
func (m *Model) renderDetail() {
	m.resizeViewport()
	if m.detail == nil {
		return
	}
	body := m.detail.Body(mime.StripHTML)
	lines := wrap(body, max(m.width-1, 20))
	terms := m.engine.Query()
	for i, l := range lines {
		lines[i] = highlight(l, terms)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func (m *Model) resizeViewport() {
	// title, separator, info line, footer
	h := m.height - 4 - len(m.detailHeaders())
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = max(h, 1)
}

func (m Model) detailView() string {
	parts := append(m.detailHeaders(), separatorStyle.Render(strings.Repeat("─", max(m.width, 0))))
	parts = append(parts, m.viewport.View())
	return strings.Join(parts, "\n")
}

func (m Model) helpModal() string {
	var cols []string
	for _, section := range m.keys.helpSections() {
		var b strings.Builder
		for i, kb := range section {
			if i > 0 {
				b.WriteByte('\n')
			}
			h := kb.Help()
			fmt.Fprintf(&b, "%-7s %s", h.Key, h.Desc)
		}
		cols = append(cols, lipgloss.NewStyle().PaddingRight(3).Render(b.String()))
	}
	// Two columns per row keeps the box within 80 cells.
	var rows []string
	for i := 0; i < len(cols); i += 2 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cols[i:min(i+2, len(cols))]...))
	}
	return modalTitleStyle.Render("Keys") + "\n\n" +
		strings.Join(rows, "\n\n") +
		"\n\nPress any key to close"
}

func (m Model) contactsModal() string {
	var b strings.Builder
	b.WriteString(modalTitleStyle.Render(fmt.Sprintf("Contacts (%d)", len(m.contacts))))
	b.WriteString("\n")
	limit := max(m.height-10, 3)
	for i, c := range m.contacts {
		if i == limit {
			fmt.Fprintf(&b, "\n… %d more", len(m.contacts)-limit)
			break
		}
		b.WriteString("\n" + clip(joinAddresses([]model.Address{{Name: c.Name, Email: c.Address}}), max(m.width-12, 20)))
	}
	if len(m.contacts) == 0 {
		b.WriteString("\nNo contacts found")
	}
	return b.String()
}

// overlayModal centers the active modal over background.
func (m Model) overlayModal(background string) string {
	var content string
	switch m.modal {
	case modalHelp:
		content = m.helpModal()
	case modalQuitConfirm:
		content = modalTitleStyle.Render("Quit mudex?") + "\n\n[y] Yes   [n] No"
	case modalContacts:
		content = m.contactsModal()
	default:
		return background
	}
	box := strings.Split(modalStyle.Render(content), "\n")
	lines := strings.Split(background, "\n")

	boxWidth := 0
	for _, l := range box {
		boxWidth = max(boxWidth, lipgloss.Width(l))
	}
	top := max((len(lines)-len(box))/2, 0)
	left := max((m.width-boxWidth)/2, 0)

	for i, l := range box {
		row := top + i
		if row >= len(lines) {
			break
		}
		bg := lines[row]
		var b strings.Builder
		b.WriteString(fit(ansi.Truncate(bg, left, ""), left))
		b.WriteString(l)
		if rest := left + boxWidth; rest < lipgloss.Width(bg) {
			b.WriteString(ansi.Cut(bg, rest, lipgloss.Width(bg)))
		}
		lines[row] = b.String()
	}
	return strings.Join(lines, "\n")
}
