package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds the bindings of the index and detail views. Bindings double
// as the footer and help modal content.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	Open     key.Binding
	Back     key.Binding
	Search   key.Binding
	Inbox    key.Binding
	Archived key.Binding
	Drafts   key.Binding
	GoFolder key.Binding
	Contacts key.Binding

	Mark       key.Binding
	ClearMarks key.Binding
	Archive    key.Binding
	Delete     key.Binding
	MoveTo     key.Binding
	Flag       key.Binding
	Undo       key.Binding

	Threading  key.Binding
	ShowThread key.Binding
	Refresh    key.Binding
	Sync       key.Binding

	NextMsg     key.Binding
	PrevMsg     key.Binding
	FullHeaders key.Binding

	Help key.Binding
	Quit key.Binding
	Kill key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k", "p"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j", "n"), key.WithHelp("↓/j", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", " "), key.WithHelp("space", "page down")),
		Home:     key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("home", "top")),
		End:      key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("end", "bottom")),

		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:     key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("q", "close")),
		Search:   key.NewBinding(key.WithKeys("s", "/"), key.WithHelp("s", "search")),
		Inbox:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "inbox")),
		Archived: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "archive")),
		Drafts:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "drafts")),
		GoFolder: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "change folder")),
		Contacts: key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "contacts")),

		Mark:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark")),
		ClearMarks: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear marks")),
		Archive:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "archive msg")),
		Delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		MoveTo:     key.NewBinding(key.WithKeys("M"), key.WithHelp("M", "move to")),
		Flag:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply flag")),
		Undo:       key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "undo")),

		Threading:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "threading")),
		ShowThread: key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("^t", "show thread")),
		Refresh:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("^r", "refresh")),
		Sync:       key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "sync")),

		NextMsg:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		PrevMsg:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		FullHeaders: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("^r", "full headers")),

		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit: key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		Kill: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

func (k keyMap) indexFooter() []key.Binding {
	return []key.Binding{k.Open, k.Search, k.Mark, k.Archive, k.Delete, k.Flag, k.Undo, k.Threading, k.Help, k.Quit}
}

func (k keyMap) detailFooter() []key.Binding {
	return []key.Binding{k.Back, k.NextMsg, k.PrevMsg, k.Archive, k.Delete, k.Flag, k.FullHeaders}
}

// helpSections lists every index binding grouped for the help modal.
func (k keyMap) helpSections() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End, k.Open},
		{k.Search, k.Inbox, k.Archived, k.Drafts, k.GoFolder, k.Contacts, k.ShowThread},
		{k.Mark, k.ClearMarks, k.Archive, k.Delete, k.MoveTo, k.Flag, k.Undo},
		{k.Threading, k.Refresh, k.Sync, k.Help, k.Quit},
	}
}
