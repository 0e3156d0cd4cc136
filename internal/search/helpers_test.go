package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// assertParsed parses q and compares the result with want. Nil and empty
// term slices compare equal.
func assertParsed(t *testing.T, q string, want Query) {
	t.Helper()
	got := Parse(q)
	if diff := cmp.Diff(want, *got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse(%q) mismatch (-want +got):\n%s", q, diff)
	}
}
