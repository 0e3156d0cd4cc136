package search

import (
	"regexp"
	"strings"
)

// Quote returns v quoted for use as a mu field value when it contains
// characters mu would otherwise split on.
func Quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"()") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// Field renders name:value with the value quoted as needed.
func Field(name, value string) string {
	return name + ":" + Quote(value)
}

// FolderQuery returns the query listing every message in a maildir folder.
func FolderQuery(folder string) string {
	return Field("maildir", folder)
}

// ThreadQuery returns a query matching every message that is, or refers
// to, one of ids. ids are typically a message's own id followed by its
// references; duplicates and empty ids are skipped.
func ThreadQuery(ids ...string) string {
	seen := make(map[string]bool, len(ids))
	var terms []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		terms = append(terms, Field("msgid", id), Field("refs", id))
	}
	return strings.Join(terms, " OR ")
}

var replyPrefixRe = regexp.MustCompile(`(?i)^\s*((re|fwd?|aw|wg)\s*(\[\d+\])?\s*:\s*)+`)

// NormalizeSubject strips reply and forward prefixes from a subject.
func NormalizeSubject(subject string) string {
	return strings.TrimSpace(replyPrefixRe.ReplaceAllString(subject, ""))
}

// SubjectQuery matches messages whose subject contains the normalized
// subject. Used when a message carries no usable ids.
func SubjectQuery(subject string) string {
	s := NormalizeSubject(subject)
	if s == "" {
		return ""
	}
	return Field("subject", s)
}
