package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/oplog"
)

// handleKey routes a key press by what currently owns the keyboard:
// modal, bar, then the active view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Kill) {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.modal {
	case modalQuitConfirm:
		return m.handleQuitConfirmKeys(msg)
	case modalHelp, modalContacts:
		// Any key closes an informational modal.
		m.modal = modalNone
		return m, nil
	}

	switch m.bar {
	case barConfirm:
		return m.handleConfirmKeys(msg)
	case barFlag:
		return m.handleFlagKeys(msg)
	case barPrompt:
		return m.handlePromptKeys(msg)
	}

	if m.level == levelDetail {
		return m.handleDetailKeys(msg)
	}
	return m.handleIndexKeys(msg)
}

func (m Model) handleIndexKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.modal = modalQuitConfirm
		return m, nil
	case key.Matches(msg, k.Help):
		m.modal = modalHelp
		return m, nil

	case key.Matches(msg, k.Up):
		m.setCursor(m.cursor - 1)
	case key.Matches(msg, k.Down):
		m.setCursor(m.cursor + 1)
	case key.Matches(msg, k.PageUp):
		m.setCursor(m.cursor - m.listRows())
	case key.Matches(msg, k.PageDown):
		m.setCursor(m.cursor + m.listRows())
	case key.Matches(msg, k.Home):
		m.setCursor(0)
	case key.Matches(msg, k.End):
		m.setCursor(len(m.rows) - 1)

	case key.Matches(msg, k.Open):
		if id := m.currentID(); id != "" {
			return m.submit(m.engine.Open(id))
		}
	case key.Matches(msg, k.Search):
		return m.openPrompt(promptSearch, m.engine.Query())
	case key.Matches(msg, k.GoFolder):
		return m.openPrompt(promptFolder, "")
	case key.Matches(msg, k.Contacts):
		return m.openPrompt(promptContacts, "")
	case key.Matches(msg, k.Inbox):
		return m.submit(m.engine.LoadFolder(m.opts.Folders.Inbox))
	case key.Matches(msg, k.Archived):
		return m.submit(m.engine.LoadFolder(m.opts.Folders.Archive))
	case key.Matches(msg, k.Drafts):
		return m.submit(m.engine.LoadFolder(m.opts.Folders.Drafts))
	case key.Matches(msg, k.ShowThread):
		if id := m.currentID(); id != "" {
			return m.submit(m.engine.ShowThread(id))
		}

	case key.Matches(msg, k.Mark):
		if id := m.currentID(); id != "" {
			if _, err := m.engine.Mark(id); err != nil {
				return m, m.setFlash(err.Error(), true)
			}
			m.syncRows()
			m.setCursor(m.cursor + 1)
		}
	case key.Matches(msg, k.ClearMarks):
		m.engine.ClearMarks()
		m.syncRows()
	case key.Matches(msg, k.Archive):
		return m.confirmMove(m.opts.Folders.Archive, "Archive", "")
	case key.Matches(msg, k.Delete):
		return m.confirmMove(m.opts.Folders.Trash, "Delete", "")
	case key.Matches(msg, k.MoveTo):
		if len(m.targets()) == 0 {
			return m, m.setFlash("No message selected", true)
		}
		return m.openPrompt(promptMove, "")
	case key.Matches(msg, k.Flag):
		if len(m.targets()) == 0 {
			return m, m.setFlash("No message selected", true)
		}
		m.bar = barFlag
	case key.Matches(msg, k.Undo):
		return m.undo()

	case key.Matches(msg, k.Threading):
		m.engine.ToggleThreading()
		id := m.currentID()
		m.syncRows()
		m.setCursor(m.rowIndex(id))
		mode := "off"
		if m.engine.Threading() {
			mode = "on"
		}
		return m, m.setFlash("Threading "+mode, false)
	case key.Matches(msg, k.Refresh):
		return m.submit(m.engine.Refresh())
	case key.Matches(msg, k.Sync):
		return m.startSync()
	}
	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Back):
		m.closeDetail()
		return m, nil
	case key.Matches(msg, k.Help):
		m.modal = modalHelp
		return m, nil
	case key.Matches(msg, k.NextMsg):
		return m.step(1)
	case key.Matches(msg, k.PrevMsg):
		return m.step(-1)
	case key.Matches(msg, k.FullHeaders):
		m.fullHeaders = !m.fullHeaders
		m.renderDetail()
		return m, nil
	case key.Matches(msg, k.Archive):
		return m.confirmMove(m.opts.Folders.Archive, "Archive", "")
	case key.Matches(msg, k.Delete):
		return m.confirmMove(m.opts.Folders.Trash, "Delete", "")
	case key.Matches(msg, k.Flag):
		m.bar = barFlag
		return m, nil
	case key.Matches(msg, k.Undo):
		return m.undo()
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// step opens the neighbour of the open message in the index.
func (m Model) step(delta int) (tea.Model, tea.Cmd) {
	if m.detailMsg == nil {
		return m, nil
	}
	i := m.rowIndex(m.detailMsg.ID) + delta
	if i < 0 || i >= len(m.rows) {
		return m, m.setFlash("No more messages", false)
	}
	m.setCursor(i)
	return m.submit(m.engine.Open(m.rows[i].ID))
}

func (m Model) rowIndex(id string) int {
	for i, r := range m.rows {
		if r.ID == id {
			return i
		}
	}
	return m.cursor
}

// confirmMove asks before moving the targets into folder.
func (m Model) confirmMove(folder, verb, suffix string) (tea.Model, tea.Cmd) {
	ids := m.targets()
	if len(ids) == 0 {
		return m, m.setFlash("No message selected", true)
	}
	prompt := verb + " this message" + suffix + "?"
	if len(m.engine.Store().Marked()) > 0 {
		prompt = fmt.Sprintf("%s %d marked message(s)%s?", verb, len(ids), suffix)
	}
	m.pending = &pendingMove{ids: ids, folder: folder, prompt: prompt}
	m.bar = barConfirm
	return m, nil
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		p := m.pending
		m.pending = nil
		m.bar = barNone
		if p == nil {
			return m, nil
		}
		if err := m.engine.Move(p.ids, p.folder); err != nil {
			return m, m.setFlash(err.Error(), true)
		}
		m.engine.ClearMarks()
		m.syncRows()
		return m, m.startSpinner()
	case "n", "N", "esc", "q":
		m.pending = nil
		m.bar = barNone
	}
	return m, nil
}

// flagKeys maps the flag bar keys to settable flags. Upper case clears.
var flagKeys = map[string]model.Flag{
	"u": model.FlagUnread,
	"n": model.FlagNew,
	"f": model.FlagImportant,
}

func (m Model) handleFlagKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()
	if s == "esc" || s == "q" {
		m.bar = barNone
		return m, nil
	}
	flag, ok := flagKeys[strings.ToLower(s)]
	if !ok {
		return m, nil
	}
	m.bar = barNone
	value := s == strings.ToLower(s)
	if err := m.engine.ApplyFlag(m.targets(), flag, value); err != nil {
		return m, m.setFlash(err.Error(), true)
	}
	m.engine.ClearMarks()
	m.syncRows()
	return m, m.startSpinner()
}

func (m Model) undo() (tea.Model, tea.Cmd) {
	err := m.engine.Undo()
	if errors.Is(err, oplog.ErrNothingToUndo) {
		return m, m.setFlash("Nothing to undo", false)
	}
	next, cmd := m.submit(err)
	next.syncRows()
	return next, cmd
}

func (m Model) openPrompt(kind promptKind, value string) (tea.Model, tea.Cmd) {
	m.prompt = kind
	m.bar = barPrompt
	m.input.Prompt = kind.label()
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.bar = barNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.bar = barNone
		m.input.Blur()
		return m.submitPrompt(strings.TrimSpace(m.input.Value()))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitPrompt(value string) (tea.Model, tea.Cmd) {
	switch m.prompt {
	case promptSearch:
		if value == "" {
			return m, nil
		}
		return m.submit(m.engine.RunQuery(value))
	case promptFolder:
		if value == "" {
			return m, nil
		}
		return m.submit(m.engine.LoadFolder(value))
	case promptMove:
		if value == "" {
			return m, nil
		}
		return m.confirmMove(value, "Move", " to "+value)
	case promptContacts:
		return m.submit(m.engine.Contacts(value))
	}
	return m, nil
}

func (m Model) handleQuitConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "q", "enter":
		m.quitting = true
		return m, tea.Quit
	case "n", "N", "esc":
		m.modal = modalNone
	}
	return m, nil
}

// startSync runs the sync command off the UI goroutine.
func (m Model) startSync() (tea.Model, tea.Cmd) {
	if m.opts.Sync == nil {
		return m, m.setFlash("No sync command configured", true)
	}
	if m.syncing {
		return m, m.setFlash("Sync already running", false)
	}
	m.syncing = true
	run := m.opts.Sync
	cmd := func() tea.Msg {
		return SyncFinishedMsg{Err: run(context.Background())}
	}
	return m, tea.Batch(cmd, m.setFlash("Syncing…", false), m.startSpinner())
}
