package tui

import (
	"regexp"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/mu"
	"github.com/wesm/mudex/internal/search"
	"github.com/wesm/mudex/internal/testutil"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that change the global color profile.
var colorProfileMu sync.Mutex

// forceColorProfile switches lipgloss to ANSI output for the test.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// harness drives a Model over a mock-backed engine the way tea.Program
// would, but synchronously.
type harness struct {
	t      *testing.T
	m      Model
	client *mu.MockClient
	engine *engine.Engine
}

// newHarness loads msgs as the inbox into an 80x24 model.
func newHarness(t *testing.T, opts Options, msgs ...*model.Message) *harness {
	t.Helper()
	client := mu.NewMockClient()
	eo := engine.DefaultOptions()
	eo.Threading = false
	eo.Descending = false
	e := engine.New(client, eo)
	t.Cleanup(e.Close)

	client.SetResults(search.FolderQuery("/INBOX"), msgs...)
	h := &harness{t: t, m: New(e, opts), client: client, engine: e}
	h.send(tea.WindowSizeMsg{Width: 80, Height: 24})
	h.send(loadFolderMsg{folder: "/INBOX"})
	h.pump()
	return h
}

// send runs one message through Update without executing commands.
func (h *harness) send(msg tea.Msg) tea.Cmd {
	h.t.Helper()
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) press(keys ...tea.KeyMsg) {
	h.t.Helper()
	for _, k := range keys {
		h.send(k)
	}
}

// pump waits for one engine completion and delivers it.
func (h *harness) pump() {
	h.t.Helper()
	select {
	case c := <-h.engine.Completions():
		h.send(completionMsg{c: c})
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for engine completion")
	}
}

func (h *harness) rowIDs() []string {
	ids := make([]string, len(h.m.rows))
	for i, r := range h.m.rows {
		ids[i] = r.ID
	}
	return ids
}

func (h *harness) view() string {
	return stripANSI(h.m.View())
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func keyEnter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func keyEsc() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEscape} }

func keyDown() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyDown} }

func keyCtrl(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

// inbox returns n read messages "1".."n" an hour apart.
func inbox(n int) []*model.Message {
	msgs := make([]*model.Message, n)
	for i := range msgs {
		id := string(rune('1' + i))
		msgs[i] = testutil.NewMsg(id).At(time.Duration(i) * time.Hour).Build()
	}
	return msgs
}
