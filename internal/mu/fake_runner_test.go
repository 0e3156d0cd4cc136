package mu

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// scripted is the canned response for one subcommand.
type scripted struct {
	stdout string
	stderr string
	err    error
}

// fakeRunner records invocations and answers by subcommand.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]scripted
	calls     [][]string
	// fail makes a subcommand fail when its argument list contains the
	// given path.
	fail map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]scripted),
		fail:      make(map[string]string),
	}
}

func (f *fakeRunner) on(sub string, r scripted) { f.responses[sub] = r }

func (f *fakeRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sub := args[0]
	if p, ok := f.fail[sub]; ok {
		for _, a := range args[1:] {
			if a == p {
				return nil, []byte("mu: cannot " + sub + "\n"), errors.New("exit status 1")
			}
		}
	}
	r := f.responses[sub]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

// subcommands returns "sub arg" strings for every recorded call.
func (f *fakeRunner) subcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}
