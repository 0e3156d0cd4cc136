// Package mime parses message files for the detail view using enmime.
package mime

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/textutil"
)

// displayHeaders are copied into Message.Headers when present.
var displayHeaders = []string{
	"From", "To", "Cc", "Reply-To", "Subject", "Date",
	"Message-ID", "In-Reply-To", "References", "List-Id", "User-Agent",
}

// Message is a parsed message file.
type Message struct {
	Headers     map[string]string
	Subject     string
	Date        time.Time
	From        []model.Address
	To          []model.Address
	Cc          []model.Address
	MessageID   string
	InReplyTo   string
	References  []string
	BodyText    string
	BodyHTML    string
	Attachments []model.Attachment
	Errors      []string // Non-fatal parsing errors
}

// Parse parses raw MIME data into a Message.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	msg := &Message{
		Headers:   make(map[string]string),
		Subject:   textutil.EnsureUTF8(env.GetHeader("Subject")),
		MessageID: trimAngles(env.GetHeader("Message-ID")),
		InReplyTo: trimAngles(env.GetHeader("In-Reply-To")),
		BodyText:  textutil.EnsureUTF8(env.Text),
		BodyHTML:  textutil.EnsureUTF8(env.HTML),
		From:      addressList(env, "From"),
		To:        addressList(env, "To"),
		Cc:        addressList(env, "Cc"),
	}
	for _, h := range displayHeaders {
		if v := env.GetHeader(h); v != "" {
			msg.Headers[h] = textutil.EnsureUTF8(v)
		}
	}
	if s := env.GetHeader("Date"); s != "" {
		msg.Date, _ = parseDate(s)
	}
	if refs := env.GetHeader("References"); refs != "" {
		msg.References = parseReferences(refs)
	}

	for _, p := range env.Attachments {
		if !isBodyPart(p) {
			msg.Attachments = append(msg.Attachments, attachmentOf(p, false))
		}
	}
	for _, p := range env.Inlines {
		if !isBodyPart(p) {
			msg.Attachments = append(msg.Attachments, attachmentOf(p, true))
		}
	}
	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

// Detail converts the message to the engine's detail record.
func (m *Message) Detail(path string) *model.Detail {
	return &model.Detail{
		Path:        path,
		Headers:     m.Headers,
		Subject:     m.Subject,
		From:        m.From,
		To:          m.To,
		Cc:          m.Cc,
		Date:        m.Date,
		Text:        m.BodyText,
		HTML:        m.BodyHTML,
		Attachments: m.Attachments,
	}
}

// Ancestors returns References with In-Reply-To appended when it is not
// already the last entry: the parent chain oldest first.
func (m *Message) Ancestors() []string {
	refs := append([]string(nil), m.References...)
	if m.InReplyTo != "" && (len(refs) == 0 || refs[len(refs)-1] != m.InReplyTo) {
		refs = append(refs, m.InReplyTo)
	}
	return refs
}

func addressList(env *enmime.Envelope, header string) []model.Address {
	list, err := env.AddressList(header)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]model.Address, 0, len(list))
	for _, a := range list {
		if a.Address == "" {
			continue
		}
		out = append(out, model.Address{Name: a.Name, Email: strings.ToLower(a.Address)})
	}
	return out
}

// isBodyPart reports whether an enmime part is really body text: text/plain
// or text/html with no filename and no explicit attachment disposition.
func isBodyPart(p *enmime.Part) bool {
	switch baseValue(p.ContentType) {
	case "text/plain", "text/html":
	default:
		return false
	}
	return p.FileName == "" && baseValue(p.Disposition) != "attachment"
}

// baseValue lowercases a header value and drops its parameters.
func baseValue(v string) string {
	v = strings.ToLower(v)
	if i := strings.Index(v, ";"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func attachmentOf(p *enmime.Part, inline bool) model.Attachment {
	return model.Attachment{
		Filename:    p.FileName,
		ContentType: p.ContentType,
		Size:        len(p.Content),
		Inline:      inline,
	}
}

func trimAngles(s string) string {
	return strings.Trim(strings.TrimSpace(s), "<>")
}

// parseReferences splits a References header into message ids.
func parseReferences(refs string) []string {
	var out []string
	for _, r := range strings.Fields(refs) {
		if r = strings.Trim(r, "<>"); r != "" {
			out = append(out, r)
		}
	}
	return out
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate parses a Date header in the many shapes real mail uses.
// Unparseable input yields the zero time and a nil error; the result is UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	candidates := []string{s}
	if i := strings.LastIndex(s, "("); i > 0 {
		candidates = []string{strings.TrimSpace(s[:i]), s}
	}
	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, nil
}
