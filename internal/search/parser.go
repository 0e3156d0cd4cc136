// Package search parses and builds mu query strings.
package search

import (
	"strings"
)

// Query is the part of a mu query that the UI cares about: terms to
// highlight and the maildir the results come from.
type Query struct {
	TextTerms    []string // Bare words and quoted phrases
	FromAddrs    []string // from: / f:
	ToAddrs      []string // to: / t:
	CcAddrs      []string // cc: / c:
	SubjectTerms []string // subject: / s:
	Maildirs     []string // maildir: / m:
	Flags        []string // flag: / g:
	MsgIDs       []string // msgid: / i:
	Others       []string // field:value pairs passed through untouched
}

// IsEmpty returns true if the query has no search criteria.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 &&
		len(q.FromAddrs) == 0 &&
		len(q.ToAddrs) == 0 &&
		len(q.CcAddrs) == 0 &&
		len(q.SubjectTerms) == 0 &&
		len(q.Maildirs) == 0 &&
		len(q.Flags) == 0 &&
		len(q.MsgIDs) == 0 &&
		len(q.Others) == 0
}

// Folder returns the single maildir the query is restricted to, or "" when
// the query spans folders or has other criteria.
func (q *Query) Folder() string {
	if len(q.Maildirs) != 1 {
		return ""
	}
	only := Query{Maildirs: q.Maildirs}
	if !q.equalShape(only) {
		return ""
	}
	return q.Maildirs[0]
}

func (q *Query) equalShape(o Query) bool {
	return len(q.TextTerms) == len(o.TextTerms) &&
		len(q.FromAddrs) == len(o.FromAddrs) &&
		len(q.ToAddrs) == len(o.ToAddrs) &&
		len(q.CcAddrs) == len(o.CcAddrs) &&
		len(q.SubjectTerms) == len(o.SubjectTerms) &&
		len(q.Flags) == len(o.Flags) &&
		len(q.MsgIDs) == len(o.MsgIDs) &&
		len(q.Others) == len(o.Others)
}

// HighlightTerms returns the terms worth highlighting in rendered rows.
func (q *Query) HighlightTerms() []string {
	var out []string
	out = append(out, q.TextTerms...)
	out = append(out, q.SubjectTerms...)
	out = append(out, q.FromAddrs...)
	return out
}

type fieldFn func(q *Query, value string)

var fields = map[string]fieldFn{
	"from":    func(q *Query, v string) { q.FromAddrs = append(q.FromAddrs, strings.ToLower(v)) },
	"to":      func(q *Query, v string) { q.ToAddrs = append(q.ToAddrs, strings.ToLower(v)) },
	"cc":      func(q *Query, v string) { q.CcAddrs = append(q.CcAddrs, strings.ToLower(v)) },
	"subject": func(q *Query, v string) { q.SubjectTerms = append(q.SubjectTerms, v) },
	"maildir": func(q *Query, v string) { q.Maildirs = append(q.Maildirs, v) },
	"flag":    func(q *Query, v string) { q.Flags = append(q.Flags, strings.ToLower(v)) },
	"msgid":   func(q *Query, v string) { q.MsgIDs = append(q.MsgIDs, v) },
}

// mu accepts single-letter shortcuts for common fields.
var shortcuts = map[string]string{
	"f": "from",
	"t": "to",
	"c": "cc",
	"s": "subject",
	"m": "maildir",
	"g": "flag",
	"i": "msgid",
}

var boolOperators = map[string]bool{"and": true, "or": true, "not": true, "xor": true}

// Parse parses a mu query string.
//
// Recognized fields are assigned to their slices; other field:value pairs
// are kept in Others. Boolean operators and parentheses are dropped.
func Parse(queryStr string) *Query {
	q := &Query{}
	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.TextTerms = append(q.TextTerms, unquote(token))
			continue
		}
		token = strings.Trim(token, "()")
		if token == "" || boolOperators[strings.ToLower(token)] {
			continue
		}
		if idx := strings.Index(token, ":"); idx > 0 {
			name := strings.ToLower(token[:idx])
			if full, ok := shortcuts[name]; ok {
				name = full
			}
			value := unquote(token[idx+1:])
			if fn, ok := fields[name]; ok {
				fn(q, value)
			} else {
				q.Others = append(q.Others, token)
			}
			continue
		}
		q.TextTerms = append(q.TextTerms, token)
	}
	return q
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query on spaces, keeping quoted phrases and
// field:"quoted value" pairs together.
func tokenize(queryStr string) []string {
	var (
		tokens     []string
		current    strings.Builder
		quote      rune
		afterColon bool
		fieldQuote bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range queryStr {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			fieldQuote = afterColon
			if fieldQuote {
				current.WriteRune('"')
			} else {
				flush()
			}
			afterColon = false
		case quote != 0 && r == quote:
			if fieldQuote {
				current.WriteRune('"')
				flush()
			} else if current.Len() > 0 {
				tokens = append(tokens, `"`+current.String()+`"`)
				current.Reset()
			}
			quote = 0
			fieldQuote = false
		case quote == 0 && (r == ' ' || r == '\t'):
			flush()
			afterColon = false
		default:
			current.WriteRune(r)
			afterColon = r == ':'
		}
	}
	flush()
	return tokens
}
