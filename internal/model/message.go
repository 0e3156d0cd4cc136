// Package model defines the message records shared by the index client,
// the thread builder, the message store and the engine.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Address is a sender or recipient with an optional display name.
type Address struct {
	Name  string
	Email string
}

// String renders the address the way it is shown in the index list:
// the display name when present, otherwise the email.
func (a Address) String() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// Contact is a result of a contact search.
type Contact struct {
	Name    string
	Address string
}

// Flags holds the per-message flags derived from the index service.
type Flags struct {
	Unread     bool
	New        bool
	Replied    bool
	Forwarded  bool
	Important  bool
	Encrypted  bool
	Signed     bool
	Draft      bool
	Trashed    bool
	Attachment bool
}

// Flag names a single flag of a message.
type Flag int

const (
	FlagUnread Flag = iota
	FlagNew
	FlagReplied
	FlagForwarded
	FlagImportant
	FlagEncrypted
	FlagSigned
	FlagDraft
	FlagTrashed
	FlagAttachment
)

// ErrFlagNotSettable is returned when a flag derived from message content
// or location is asked to change.
var ErrFlagNotSettable = errors.New("flag cannot be changed")

var flagNames = map[Flag]string{
	FlagUnread:     "unread",
	FlagNew:        "new",
	FlagReplied:    "replied",
	FlagForwarded:  "forwarded",
	FlagImportant:  "important",
	FlagEncrypted:  "encrypted",
	FlagSigned:     "signed",
	FlagDraft:      "draft",
	FlagTrashed:    "trashed",
	FlagAttachment: "attachment",
}

func (f Flag) String() string {
	if s, ok := flagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("flag(%d)", int(f))
}

// Settable reports whether the flag is persisted through the Maildir
// filename and can therefore be set or cleared by the user.
func (f Flag) Settable() bool {
	switch f {
	case FlagUnread, FlagNew, FlagReplied, FlagForwarded, FlagImportant:
		return true
	}
	return false
}

// ParseFlag maps a flag name (as used on the command line) to a Flag.
// "flagged" is accepted as an alias for important.
func ParseFlag(name string) (Flag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "flagged" {
		return FlagImportant, nil
	}
	for f, s := range flagNames {
		if s == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", name)
}

// Get returns the value of a single flag.
func (fl Flags) Get(f Flag) bool {
	switch f {
	case FlagUnread:
		return fl.Unread
	case FlagNew:
		return fl.New
	case FlagReplied:
		return fl.Replied
	case FlagForwarded:
		return fl.Forwarded
	case FlagImportant:
		return fl.Important
	case FlagEncrypted:
		return fl.Encrypted
	case FlagSigned:
		return fl.Signed
	case FlagDraft:
		return fl.Draft
	case FlagTrashed:
		return fl.Trashed
	case FlagAttachment:
		return fl.Attachment
	}
	return false
}

// Names lists the set flags in flag order, e.g. ["unread", "important"].
func (fl Flags) Names() []string {
	var names []string
	for f := FlagUnread; f <= FlagAttachment; f++ {
		if fl.Get(f) {
			names = append(names, f.String())
		}
	}
	return names
}

// With returns a copy of the flags with f set to v.
func (fl Flags) With(f Flag, v bool) Flags {
	switch f {
	case FlagUnread:
		fl.Unread = v
	case FlagNew:
		fl.New = v
	case FlagReplied:
		fl.Replied = v
	case FlagForwarded:
		fl.Forwarded = v
	case FlagImportant:
		fl.Important = v
	case FlagEncrypted:
		fl.Encrypted = v
	case FlagSigned:
		fl.Signed = v
	case FlagDraft:
		fl.Draft = v
	case FlagTrashed:
		fl.Trashed = v
	case FlagAttachment:
		fl.Attachment = v
	}
	return fl
}

// Message is the in-memory representation of one indexed email.
// Identity fields are set once by the index client; Path, Folder and
// Flags change as the message is moved or flagged.
type Message struct {
	ID          string // Message-ID, or "path:<path>" when the header is missing
	DocID       int64
	Path        string
	Folder      string // Maildir folder relative to the root, e.g. "/INBOX"
	From        []Address
	To          []Address
	Cc          []Address
	Subject     string
	Date        time.Time
	References  []string // ancestor ids, oldest first
	Size        int64
	Attachments int
	Flags       Flags
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.From = append([]Address(nil), m.From...)
	c.To = append([]Address(nil), m.To...)
	c.Cc = append([]Address(nil), m.Cc...)
	c.References = append([]string(nil), m.References...)
	return &c
}

// Sender returns the first From address, or the zero Address.
func (m *Message) Sender() Address {
	if len(m.From) > 0 {
		return m.From[0]
	}
	return Address{}
}

// Detail is the full view of a message file.
type Detail struct {
	Path        string
	Headers     map[string]string
	Subject     string
	From        []Address
	To          []Address
	Cc          []Address
	Date        time.Time
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment is attachment metadata from a parsed message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	Inline      bool
}

// Body returns the text body, falling back to the provided HTML
// reduction when only an HTML part exists.
func (d *Detail) Body(stripHTML func(string) string) string {
	if d.Text != "" {
		return d.Text
	}
	if d.HTML != "" && stripHTML != nil {
		return stripHTML(d.HTML)
	}
	return ""
}
