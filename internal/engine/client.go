package engine

import (
	"context"
	"sync"

	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/mu"
)

// IndexClient is the part of the mu client the engine drives. It must be
// safe for concurrent use.
type IndexClient interface {
	Search(ctx context.Context, opts mu.SearchOptions) ([]*model.Message, error)
	View(ctx context.Context, path string) (*model.Detail, error)
	Contacts(ctx context.Context, pattern string, opts mu.ContactOptions) ([]model.Contact, error)
	ApplyMove(ctx context.Context, path, toFolder string) (string, error)
	MovePath(ctx context.Context, from, to string) error
	SetFlag(ctx context.Context, path string, flag model.Flag, value bool) (string, error)
	ReindexAll(ctx context.Context) error
}

var (
	_ IndexClient = (*mu.Client)(nil)
	_ IndexClient = (*mu.MockClient)(nil)
)

// locator tracks the latest path of every message renamed by a job. Jobs
// resolve paths through it at run time, so a job queued behind a rename
// of the same message sees the renamed file.
type locator struct {
	mu    sync.Mutex
	paths map[string]string
}

func newLocator() *locator {
	return &locator{paths: make(map[string]string)}
}

func (l *locator) get(id, fallback string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.paths[id]; ok {
		return p
	}
	return fallback
}

func (l *locator) set(id, path string) {
	l.mu.Lock()
	l.paths[id] = path
	l.mu.Unlock()
}

// reset forgets every path. Called after a re-index, when the index is
// authoritative again.
func (l *locator) reset() {
	l.mu.Lock()
	l.paths = make(map[string]string)
	l.mu.Unlock()
}
