package mu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/wesm/mudex/internal/model"
)

// record is one element of `mu find --format=json`. mu emits keys with a
// leading colon (":subject"); plain keys are accepted too.
type record map[string]json.RawMessage

func (r record) raw(key string) (json.RawMessage, bool) {
	if v, ok := r[":"+key]; ok && !isNull(v) {
		return v, true
	}
	if v, ok := r[key]; ok && !isNull(v) {
		return v, true
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

func (r record) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r.raw(k)
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			return n.String()
		}
	}
	return ""
}

func (r record) num(key string) int64 {
	v, ok := r.raw(key)
	if !ok {
		return 0
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return int64(f)
	}
	return 0
}

// parseFind decodes a find response into messages, keeping the first of
// any duplicate ids.
func parseFind(data []byte) ([]*model.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		// Some mu versions stream one object per line.
		recs, err = parseJSONLines(data)
		if err != nil {
			return nil, fmt.Errorf("decode find output: %w", err)
		}
	}

	out := make([]*model.Message, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		m := rec.message()
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out, nil
}

func parseJSONLines(data []byte) ([]record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var recs []record
	for dec.More() {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (r record) message() *model.Message {
	m := &model.Message{
		ID:      strings.Trim(r.str("msgid", "message-id"), "<>"),
		DocID:   r.num("docid"),
		Path:    r.str("path"),
		Folder:  r.str("maildir"),
		Subject: r.str("subject"),
		Size:    r.num("size"),
	}
	if m.ID == "" && m.Path != "" {
		m.ID = "path:" + m.Path
	}
	if v, ok := r.raw("date"); ok {
		m.Date = parseMuDate(v)
	}
	m.From = r.addresses("from")
	m.To = r.addresses("to")
	m.Cc = r.addresses("cc")
	m.References = r.references()

	flags := r.flagNames()
	m.Flags = model.Flags{
		Unread:     flags["unread"] || flags["new"],
		New:        flags["new"],
		Replied:    flags["replied"],
		Forwarded:  flags["passed"],
		Important:  flags["flagged"],
		Encrypted:  flags["encrypted"],
		Signed:     flags["signed"],
		Draft:      flags["draft"],
		Trashed:    flags["trashed"],
		Attachment: flags["attach"],
	}
	if m.Flags.Attachment {
		m.Attachments = 1
	}
	return m
}

// parseMuDate accepts mu's Emacs-style [high, low, usec] triple, a unix
// timestamp, or an ISO 8601 string.
func parseMuDate(v json.RawMessage) time.Time {
	var parts []float64
	if json.Unmarshal(v, &parts) == nil && len(parts) >= 2 {
		secs := int64(parts[0])<<16 + int64(parts[1])
		var usec int64
		if len(parts) >= 3 {
			usec = int64(parts[2])
		}
		return time.Unix(secs, usec*1000)
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9))
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// addresses accepts a list of {name, email} objects, a single object, a
// list of strings, or an RFC 5322 address list string.
func (r record) addresses(key string) []model.Address {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(v, &items) != nil {
		items = []json.RawMessage{v}
	}
	var out []model.Address
	for _, item := range items {
		out = append(out, parseAddressValue(item)...)
	}
	return out
}

func parseAddressValue(v json.RawMessage) []model.Address {
	var obj record
	if json.Unmarshal(v, &obj) == nil {
		a := model.Address{
			Name:  unquoteName(obj.str("name")),
			Email: obj.str("email", "addr"),
		}
		if a.Email == "" && a.Name == "" {
			return nil
		}
		return []model.Address{a}
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return ParseAddressString(s)
	}
	return nil
}

// ParseAddressString parses "Name <addr>, other@example.com". Input that
// is not a valid address list is kept as a bare email.
func ParseAddressString(s string) []model.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		return []model.Address{{Email: s}}
	}
	out := make([]model.Address, 0, len(list))
	for _, a := range list {
		out = append(out, model.Address{Name: a.Name, Email: a.Address})
	}
	return out
}

func unquoteName(name string) string {
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
		name = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(name)
	}
	return name
}

// references returns the ancestor chain oldest first, with in-reply-to
// appended when it is not already last.
func (r record) references() []string {
	var refs []string
	if v, ok := r.raw("references"); ok {
		var list []string
		if json.Unmarshal(v, &list) == nil {
			refs = list
		} else if s := r.str("references"); s != "" {
			refs = strings.Fields(s)
		}
	}
	irt := r.str("in-reply-to")

	out := make([]string, 0, len(refs)+1)
	for _, ref := range refs {
		if ref = strings.Trim(ref, "<> "); ref != "" {
			out = append(out, ref)
		}
	}
	if irt = strings.Trim(irt, "<> "); irt != "" && (len(out) == 0 || out[len(out)-1] != irt) {
		out = append(out, irt)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// flagNames collects the flag names of a record. mu emits a list, but
// some versions use a map whose keys and values are both flag names.
func (r record) flagNames() map[string]bool {
	out := make(map[string]bool)
	v, ok := r.raw("flags")
	if !ok {
		return out
	}
	var list []string
	if json.Unmarshal(v, &list) == nil {
		for _, f := range list {
			out[strings.TrimPrefix(f, ":")] = true
		}
		return out
	}
	var dict map[string]string
	if json.Unmarshal(v, &dict) == nil {
		for k, val := range dict {
			out[strings.TrimPrefix(k, ":")] = true
			out[strings.TrimPrefix(val, ":")] = true
		}
		return out
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		for _, f := range strings.Fields(s) {
			out[strings.TrimPrefix(f, ":")] = true
		}
	}
	return out
}

// parseContacts decodes `mu cfind --format=json` output. Non-JSON output
// falls back to one address per line.
func parseContacts(data []byte) []model.Contact {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		var single record
		if json.Unmarshal(data, &single) == nil {
			recs = []record{single}
		} else {
			return parseContactLines(data)
		}
	}
	out := make([]model.Contact, 0, len(recs))
	for _, rec := range recs {
		c := model.Contact{Name: rec.str("name"), Address: rec.str("email", "addr")}
		if c.Address != "" {
			out = append(out, c)
		}
	}
	return out
}

func parseContactLines(data []byte) []model.Contact {
	var out []model.Contact
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec record
		if json.Unmarshal([]byte(line), &rec) == nil {
			if addr := rec.str("email", "addr"); addr != "" {
				out = append(out, model.Contact{Name: rec.str("name"), Address: addr})
			}
			continue
		}
		for _, a := range ParseAddressString(line) {
			out = append(out, model.Contact{Name: a.Name, Address: a.Email})
		}
	}
	return out
}
