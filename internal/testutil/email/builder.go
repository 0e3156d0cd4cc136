// Package email builds raw RFC 5322 messages for tests.
package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type attachment struct {
	filename    string
	contentType string
	data        []byte
}

type header struct{ key, value string }

// MessageBuilder constructs messages with a fluent API.
// Lines end in \n unless CRLF is requested.
type MessageBuilder struct {
	headers     []header
	contentType string
	body        string
	html        string
	attachments []attachment
	boundary    string
	crlf        bool
}

// NewMessage creates a plain text message with default headers.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		headers: []header{
			{"From", "Sender <sender@example.com>"},
			{"To", "recipient@example.com"},
			{"Subject", "Test Message"},
			{"Date", "Mon, 01 Jan 2024 12:00:00 +0000"},
		},
		body:     "This is a test message body.",
		boundary: "mudex-boundary",
	}
}

// Header sets a header, replacing an existing one with the same key.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	for i := range b.headers {
		if strings.EqualFold(b.headers[i].key, key) {
			b.headers[i].value = value
			return b
		}
	}
	b.headers = append(b.headers, header{key, value})
	return b
}

// From sets the From header.
func (b *MessageBuilder) From(v string) *MessageBuilder { return b.Header("From", v) }

// To sets the To header.
func (b *MessageBuilder) To(v string) *MessageBuilder { return b.Header("To", v) }

// Cc sets the Cc header.
func (b *MessageBuilder) Cc(v string) *MessageBuilder { return b.Header("Cc", v) }

// Subject sets the Subject header.
func (b *MessageBuilder) Subject(v string) *MessageBuilder { return b.Header("Subject", v) }

// Date sets the Date header.
func (b *MessageBuilder) Date(v string) *MessageBuilder { return b.Header("Date", v) }

// MessageID sets the Message-ID header; angle brackets are added.
func (b *MessageBuilder) MessageID(id string) *MessageBuilder {
	return b.Header("Message-ID", "<"+id+">")
}

// References sets In-Reply-To to the last id and References to all of them.
func (b *MessageBuilder) References(ids ...string) *MessageBuilder {
	if len(ids) == 0 {
		return b
	}
	wrapped := make([]string, len(ids))
	for i, id := range ids {
		wrapped[i] = "<" + id + ">"
	}
	b.Header("In-Reply-To", wrapped[len(wrapped)-1])
	return b.Header("References", strings.Join(wrapped, " "))
}

// ContentType overrides the Content-Type of a single-part message.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

// Body sets the text body.
func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// HTML adds an HTML alternative; an empty Body makes the message HTML-only.
func (b *MessageBuilder) HTML(v string) *MessageBuilder { b.html = v; return b }

// WithAttachment adds a base64-encoded attachment.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, attachment{filename, contentType, data})
	return b
}

// CRLF switches to \r\n line endings.
func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// Bytes renders the message.
func (b *MessageBuilder) Bytes() []byte {
	nl := "\n"
	if b.crlf {
		nl = "\r\n"
	}
	var s strings.Builder
	line := func(format string, args ...any) {
		s.WriteString(fmt.Sprintf(format, args...))
		s.WriteString(nl)
	}

	for _, h := range b.headers {
		line("%s: %s", h.key, h.value)
	}

	if len(b.attachments) == 0 && b.html == "" {
		ct := b.contentType
		if ct == "" {
			ct = `text/plain; charset="utf-8"`
		}
		line("Content-Type: %s", ct)
		line("")
		line("%s", b.body)
		return []byte(s.String())
	}

	if len(b.attachments) == 0 && b.body == "" {
		line(`Content-Type: text/html; charset="utf-8"`)
		line("")
		line("%s", b.html)
		return []byte(s.String())
	}

	line("MIME-Version: 1.0")
	line("Content-Type: multipart/mixed; boundary=%q", b.boundary)
	line("")
	if b.body != "" {
		line("--%s", b.boundary)
		line(`Content-Type: text/plain; charset="utf-8"`)
		line("")
		line("%s", b.body)
	}
	if b.html != "" {
		line("--%s", b.boundary)
		line(`Content-Type: text/html; charset="utf-8"`)
		line("")
		line("%s", b.html)
	}
	for _, att := range b.attachments {
		ct := att.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		line("--%s", b.boundary)
		line("Content-Type: %s; name=%q", ct, att.filename)
		line("Content-Disposition: attachment; filename=%q", att.filename)
		line("Content-Transfer-Encoding: base64")
		line("")
		line("%s", base64.StdEncoding.EncodeToString(att.data))
	}
	line("--%s--", b.boundary)
	return []byte(s.String())
}
