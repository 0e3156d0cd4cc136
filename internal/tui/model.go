// Package tui provides the terminal interface for mudex: a message index
// over the engine's working set and a detail view for one message.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/oplog"
)

// viewLevel is the screen being shown.
type viewLevel int

const (
	levelIndex viewLevel = iota
	levelDetail
)

// modalType is the dialog drawn over the current view.
type modalType int

const (
	modalNone modalType = iota
	modalHelp
	modalQuitConfirm
	modalContacts
)

// bar is the single-line input area above the footer.
type bar int

const (
	barNone    bar = iota
	barConfirm     // y/n for a pending move
	barFlag        // u/n/f adds, U/N/F removes
	barPrompt      // text input
)

// promptKind says what the text input is for.
type promptKind int

const (
	promptSearch promptKind = iota
	promptFolder
	promptMove
	promptContacts
)

func (p promptKind) label() string {
	switch p {
	case promptFolder:
		return "Folder: "
	case promptMove:
		return "Move to: "
	case promptContacts:
		return "Contacts: "
	}
	return "Search: "
}

// Folders are the well-known maildir folders.
type Folders struct {
	Inbox   string
	Archive string
	Drafts  string
	Trash   string
}

// Columns are the fixed index column widths in terminal cells.
type Columns struct {
	Flags int
	Date  int
	From  int
}

// Colors are lipgloss color values for row styles. Marked may be
// "reverse".
type Colors struct {
	Unread    string
	Important string
	Marked    string
}

// SyncFunc runs the external sync command.
type SyncFunc func(ctx context.Context) error

// Options configures the TUI.
type Options struct {
	Version string
	Folders Folders
	Columns Columns
	Colors  Colors
	// Sync is run by the sync key; nil disables it.
	Sync SyncFunc
}

// SyncFinishedMsg reports a finished sync, whether started from the
// keyboard or by the scheduler through tea.Program.Send. A successful
// sync refreshes the index.
type SyncFinishedMsg struct {
	Err error
}

// pendingMove is a move waiting for confirmation.
type pendingMove struct {
	ids    []string
	folder string
	prompt string
}

// Model is the top-level bubbletea model.
type Model struct {
	engine *engine.Engine
	opts   Options
	keys   keyMap
	styles rowStyles

	level viewLevel
	modal modalType
	bar   bar

	// Index view
	rows         []engine.Row
	cursor       int
	scrollOffset int
	pageSize     int

	// Detail view
	detail      *model.Detail
	detailMsg   *model.Message
	fullHeaders bool
	viewport    viewport.Model

	prompt   promptKind
	input    textinput.Model
	pending  *pendingMove
	contacts []model.Contact

	help help.Model

	flash    string
	flashErr bool
	flashID  int

	spinnerFrame  int
	spinnerActive bool
	syncing       bool

	width    int
	height   int
	quitting bool
}

// New creates the model. The engine must not be used by anything else
// while the program runs.
func New(e *engine.Engine, opts Options) Model {
	ti := textinput.New()
	ti.CharLimit = 400
	ti.Width = 60

	if opts.Folders.Inbox == "" {
		opts.Folders.Inbox = e.Options().Inbox
	}
	if opts.Folders.Archive == "" {
		opts.Folders.Archive = e.Options().Archive
	}
	if opts.Folders.Trash == "" {
		opts.Folders.Trash = e.Options().Trash
	}
	if opts.Folders.Drafts == "" {
		opts.Folders.Drafts = "/Drafts"
	}
	if opts.Columns.Flags <= 0 {
		opts.Columns.Flags = 6
	}
	if opts.Columns.Date <= 0 {
		opts.Columns.Date = 12
	}
	if opts.Columns.From <= 0 {
		opts.Columns.From = 20
	}

	return Model{
		engine:   e,
		opts:     opts,
		keys:     defaultKeyMap(),
		styles:   newRowStyles(opts.Colors),
		input:    ti,
		help:     help.New(),
		viewport: viewport.New(80, 20),
		pageSize: 20,
		width:    80,
		height:   25,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	inbox := m.opts.Folders.Inbox
	return tea.Batch(
		waitForCompletion(m.engine.Completions()),
		func() tea.Msg { return loadFolderMsg{folder: inbox} },
		spinnerTick(),
	)
}

// completionMsg carries finished engine work back to Update.
type completionMsg struct {
	c engine.Completion
}

// loadFolderMsg asks Update to list a folder.
type loadFolderMsg struct {
	folder string
}

// flashClearMsg expires the flash message with the same id.
type flashClearMsg struct {
	id int
}

// spinnerTickMsg advances the busy spinner.
type spinnerTickMsg struct{}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	spinnerInterval = 80 * time.Millisecond
	flashDuration   = 4 * time.Second
)

// waitForCompletion blocks on the engine's completion channel.
func waitForCompletion(ch <-chan engine.Completion) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return completionMsg{c: c}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg { return spinnerTickMsg{} })
}

// startSpinner restarts the spinner loop if it stopped.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

func (m Model) busy() bool {
	return m.syncing || m.engine.Busy()
}

// setFlash shows text on the info line until it expires.
func (m *Model) setFlash(text string, isErr bool) tea.Cmd {
	m.flashID++
	m.flash = text
	m.flashErr = isErr
	id := m.flashID
	return tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashClearMsg{id: id} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		// title, header, separator, info line, footer
		m.pageSize = max(m.height-5, 1)
		m.help.Width = m.width
		m.resizeViewport()
		m.scrollOffset = calculateScrollOffset(m.cursor, m.scrollOffset, m.pageSize)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case loadFolderMsg:
		return m.submit(m.engine.LoadFolder(msg.folder))

	case completionMsg:
		out := m.engine.Apply(msg.c)
		cmd := m.handleOutcome(out)
		return m, tea.Batch(cmd, waitForCompletion(m.engine.Completions()))

	case SyncFinishedMsg:
		m.syncing = false
		if msg.Err != nil {
			return m, m.setFlash("Sync failed: "+msg.Err.Error(), true)
		}
		flash := m.setFlash("Sync finished, updating index", false)
		next, cmd := m.submit(m.engine.Refresh())
		return next, tea.Batch(flash, cmd)

	case flashClearMsg:
		if msg.id == m.flashID {
			m.flash = ""
			m.flashErr = false
		}
		return m, nil

	case spinnerTickMsg:
		if m.busy() {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
			return m, spinnerTick()
		}
		m.spinnerActive = false
		return m, nil
	}
	return m, nil
}

// submit reports a synchronous engine error or starts the spinner.
func (m Model) submit(err error) (Model, tea.Cmd) {
	if err != nil {
		return m, m.setFlash(err.Error(), true)
	}
	return m, m.startSpinner()
}

// handleOutcome refreshes rows and reports what happened.
func (m *Model) handleOutcome(out engine.Outcome) tea.Cmd {
	prevCursor := m.cursor
	m.syncRows()
	if out.Discarded {
		return nil
	}

	var cmds []tea.Cmd
	switch out.Kind {
	case engine.OutcomeSearch, engine.OutcomeRefresh:
		if out.Err == nil {
			m.cursor, m.scrollOffset = 0, 0
			if out.Kind == engine.OutcomeRefresh {
				cmds = append(cmds, m.setFlash("Index updated, "+out.Status, false))
			}
		}
	case engine.OutcomeMove:
		if out.Entry != nil && out.Entry.Move != nil {
			m.setCursor(cursorAfterRemoval(prevCursor, out.Entry.Move.Positions))
		}
		if m.level == levelDetail && m.detailMsg != nil && !m.engine.Store().Contains(m.detailMsg.ID) {
			m.closeDetail()
		}
	case engine.OutcomeUndo:
		if out.NeedsRefresh {
			if err := m.engine.Refresh(); err != nil {
				cmds = append(cmds, m.setFlash(err.Error(), true))
			}
		}
	case engine.OutcomeOpen:
		if out.Detail != nil {
			m.showDetail(out.Detail, out.Message)
		}
	case engine.OutcomeContacts:
		if out.Err == nil {
			m.contacts = out.Contacts
			m.modal = modalContacts
		}
	}

	switch {
	case errors.Is(out.Err, oplog.ErrNothingToUndo):
		cmds = append(cmds, m.setFlash("Nothing to undo", false))
	case out.Err != nil:
		cmds = append(cmds, m.setFlash(out.Err.Error(), true))
	case out.Status != "" && out.Kind != engine.OutcomeSearch && out.Kind != engine.OutcomeRefresh && out.Kind != engine.OutcomeOpen:
		cmds = append(cmds, m.setFlash(capitalize(out.Status), false))
	}
	if m.busy() {
		cmds = append(cmds, m.startSpinner())
	}
	return tea.Batch(cmds...)
}

// syncRows re-reads the engine's view and keeps the cursor in range.
func (m *Model) syncRows() {
	m.rows = m.engine.CurrentView()
	m.setCursor(m.cursor)
}

func (m *Model) setCursor(i int) {
	if i >= len(m.rows) {
		i = len(m.rows) - 1
	}
	if i < 0 {
		i = 0
	}
	m.cursor = i
	m.scrollOffset = calculateScrollOffset(m.cursor, m.scrollOffset, m.listRows())
}

// listRows is the number of message rows that fit.
func (m Model) listRows() int {
	return max(m.pageSize, 1)
}

// currentID is the id of the row under the cursor, or "".
func (m Model) currentID() string {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return ""
	}
	return m.rows[m.cursor].ID
}

// targets are the ids an action on the current context applies to.
func (m Model) targets() []string {
	if m.level == levelDetail && m.detailMsg != nil {
		return m.engine.Targets(m.detailMsg.ID)
	}
	return m.engine.Targets(m.currentID())
}

// cursorAfterRemoval keeps the cursor on the same neighbourhood: it moves
// up by the number of removed rows that were above it.
func cursorAfterRemoval(cursor int, removed map[string]int) int {
	for _, pos := range removed {
		if pos < cursor {
			cursor--
		}
	}
	return cursor
}

// calculateScrollOffset keeps cursor within a window of pageSize rows.
func calculateScrollOffset(cursor, offset, pageSize int) int {
	if cursor < offset {
		return cursor
	}
	if cursor >= offset+pageSize {
		return cursor - pageSize + 1
	}
	return offset
}
