package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoTargets is returned when none of the given ids is in the working set.
var ErrNoTargets = errors.New("no messages selected")

// PartialFailure reports a batch where some ids did not complete.
// Succeeded ids stay applied.
type PartialFailure struct {
	Op        string
	Succeeded []string
	Failed    map[string]error
	// Skipped ids were not attempted because the batch stopped early.
	Skipped []string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed%s: %s",
		e.Op, len(e.Succeeded), len(e.Failed), skippedNote(len(e.Skipped)), firstError(e.Failed))
}

// FailedIDs returns the failed ids sorted.
func (e *PartialFailure) FailedIDs() []string { return sortedKeys(e.Failed) }

// PartialUndo reports ids an undo could not restore, typically because
// the file was moved again or deleted externally.
type PartialUndo struct {
	Restored []string
	Failed   map[string]error
}

func (e *PartialUndo) Error() string {
	return fmt.Sprintf("undo: %d restored, %d failed: %s", len(e.Restored), len(e.Failed), firstError(e.Failed))
}

// FailedIDs returns the failed ids sorted.
func (e *PartialUndo) FailedIDs() []string { return sortedKeys(e.Failed) }

func skippedNote(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(", %d skipped", n)
}

func firstError(m map[string]error) string {
	ids := sortedKeys(m)
	if len(ids) == 0 {
		return "no errors"
	}
	msg := fmt.Sprintf("%s: %v", ids[0], m[ids[0]])
	if len(ids) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(ids)-1)
	}
	return strings.TrimSpace(msg)
}

func sortedKeys(m map[string]error) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
