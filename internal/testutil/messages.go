package testutil

import (
	"time"

	"github.com/wesm/mudex/internal/model"
)

// BaseTime is the reference date used by message builders.
var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// MsgBuilder builds model.Message values with a fluent API.
type MsgBuilder struct {
	m model.Message
}

// NewMsg starts a message with the given id, in /INBOX, dated BaseTime.
func NewMsg(id string) *MsgBuilder {
	return &MsgBuilder{m: model.Message{
		ID:      id,
		Path:    "/mail/INBOX/cur/" + id + ":2,S",
		Folder:  "/INBOX",
		Subject: "Subject " + id,
		From:    []model.Address{{Name: "Sender " + id, Email: id + "@example.com"}},
		Date:    BaseTime,
	}}
}

// Refs sets the ancestor chain, oldest first.
func (b *MsgBuilder) Refs(ids ...string) *MsgBuilder { b.m.References = ids; return b }

// At offsets the date from BaseTime.
func (b *MsgBuilder) At(d time.Duration) *MsgBuilder { b.m.Date = BaseTime.Add(d); return b }

// Date sets an absolute date.
func (b *MsgBuilder) Date(t time.Time) *MsgBuilder { b.m.Date = t; return b }

// Path sets the storage path.
func (b *MsgBuilder) Path(p string) *MsgBuilder { b.m.Path = p; return b }

// Folder sets the maildir folder.
func (b *MsgBuilder) Folder(f string) *MsgBuilder { b.m.Folder = f; return b }

// Subject sets the subject.
func (b *MsgBuilder) Subject(s string) *MsgBuilder { b.m.Subject = s; return b }

// From sets a single sender.
func (b *MsgBuilder) From(name, email string) *MsgBuilder {
	b.m.From = []model.Address{{Name: name, Email: email}}
	return b
}

// Flag sets a flag value.
func (b *MsgBuilder) Flag(f model.Flag, v bool) *MsgBuilder {
	b.m.Flags = b.m.Flags.With(f, v)
	return b
}

// Unread marks the message unread.
func (b *MsgBuilder) Unread() *MsgBuilder { return b.Flag(model.FlagUnread, true) }

// Important flags the message.
func (b *MsgBuilder) Important() *MsgBuilder { return b.Flag(model.FlagImportant, true) }

// Build returns a fresh copy of the message.
func (b *MsgBuilder) Build() *model.Message {
	m := b.m
	return m.Clone()
}

// Msgs builds messages named by ids with default fields.
func Msgs(ids ...string) []*model.Message {
	out := make([]*model.Message, len(ids))
	for i, id := range ids {
		out[i] = NewMsg(id).Build()
	}
	return out
}

// IDs returns the ids of msgs in order.
func IDs(msgs []*model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
