package mu

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wesm/mudex/internal/model"
)

// Operation constants for call tracking.
const (
	OpSearch   = "search"
	OpView     = "view"
	OpContacts = "contacts"
	OpMove     = "move"
	OpFlag     = "flag"
	OpReindex  = "reindex"
)

// MockCall is one recorded call, in arrival order.
type MockCall struct {
	Op    string
	Query string // OpSearch
	From  string // OpMove, OpFlag
	To    string // OpMove, OpFlag
	Flag  model.Flag
	Value bool
	Err   error
}

// MockClient is an in-memory stand-in for Client with per-path error
// injection, blocking searches and call tracking. It keeps a set of
// existing paths so moves of vanished files fail like the real client.
type MockClient struct {
	mu sync.Mutex

	Root string

	// Results maps a query to its result. Unknown queries return nothing.
	Results      map[string][]*model.Message
	SearchErrors map[string]error
	// SearchGates blocks a query until its channel is closed.
	SearchGates map[string]chan struct{}

	Details        map[string]*model.Detail
	ContactResults []model.Contact

	MoveErrors   map[string]error // keyed by source path
	FlagErrors   map[string]error // keyed by source path
	ReindexError error

	// BeforeMove runs before each move with the source path.
	BeforeMove func(from string)

	Calls []MockCall

	files map[string]bool
}

// NewMockClient creates an empty mock rooted at /mail.
func NewMockClient() *MockClient {
	return &MockClient{
		Root:         "/mail",
		Results:      make(map[string][]*model.Message),
		SearchErrors: make(map[string]error),
		SearchGates:  make(map[string]chan struct{}),
		Details:      make(map[string]*model.Detail),
		MoveErrors:   make(map[string]error),
		FlagErrors:   make(map[string]error),
		files:        make(map[string]bool),
	}
}

// SetResults registers the result for query; message paths become existing files.
func (m *MockClient) SetResults(query string, msgs ...*model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[query] = msgs
	for _, msg := range msgs {
		m.files[msg.Path] = true
	}
}

// RemoveFile simulates an external deletion of path.
func (m *MockClient) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Exists reports whether the mock considers path present.
func (m *MockClient) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path]
}

// CallsOf returns recorded calls with the given op.
func (m *MockClient) CallsOf(op string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockClient) record(c MockCall) {
	m.Calls = append(m.Calls, c)
}

// Search returns clones of the registered result for opts.Query.
func (m *MockClient) Search(ctx context.Context, opts SearchOptions) ([]*model.Message, error) {
	m.mu.Lock()
	gate := m.SearchGates[opts.Query]
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, serviceError("find", "cancelled", ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.SearchErrors[opts.Query]
	m.record(MockCall{Op: OpSearch, Query: opts.Query, Err: err})
	if err != nil {
		return nil, err
	}
	src := m.Results[opts.Query]
	out := make([]*model.Message, 0, len(src))
	for _, msg := range src {
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
		out = append(out, msg.Clone())
	}
	return out, nil
}

// View returns the registered detail for path.
func (m *MockClient) View(_ context.Context, path string) (*model.Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Details[path]
	var err error
	if !ok {
		err = serviceError("view", "message file not found: "+path, nil)
	}
	m.record(MockCall{Op: OpView, From: path, Err: err})
	return d, err
}

// Contacts returns ContactResults filtered by a case-insensitive substring.
func (m *MockClient) Contacts(_ context.Context, pattern string, _ ContactOptions) ([]model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockCall{Op: OpContacts, Query: pattern})
	var out []model.Contact
	p := strings.ToLower(pattern)
	for _, c := range m.ContactResults {
		if strings.Contains(strings.ToLower(c.Name+" "+c.Address), p) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ApplyMove moves path into toFolder under Root.
func (m *MockClient) ApplyMove(ctx context.Context, path, toFolder string) (string, error) {
	f := splitPath(path)
	f.folderDir = filepath.Join(m.Root, strings.Trim(toFolder, "/"))
	f.sub = "cur"
	target := f.path()
	if err := m.move(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// MovePath moves from to exactly to.
func (m *MockClient) MovePath(_ context.Context, from, to string) error {
	return m.move(from, to)
}

func (m *MockClient) move(from, to string) error {
	if m.BeforeMove != nil {
		m.BeforeMove(from)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.MoveErrors[from]
	if err == nil && !m.files[from] {
		err = serviceError("move", "message file missing: "+from, nil)
	}
	m.record(MockCall{Op: OpMove, From: from, To: to, Err: err})
	if err != nil {
		return err
	}
	delete(m.files, from)
	m.files[to] = true
	return nil
}

// SetFlag renames path the way the real client would.
func (m *MockClient) SetFlag(_ context.Context, path string, flag model.Flag, value bool) (string, error) {
	newPath, err := FlagPath(path, flag, value)
	if err != nil {
		return "", serviceError("flag", err.Error(), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ferr := m.FlagErrors[path]; ferr != nil {
		err = ferr
	} else if !m.files[path] {
		err = serviceError("flag", "message file missing: "+path, nil)
	}
	m.record(MockCall{Op: OpFlag, From: path, To: newPath, Flag: flag, Value: value, Err: err})
	if err != nil {
		return "", err
	}
	delete(m.files, path)
	m.files[newPath] = true
	return newPath, nil
}

// ReindexAll records a re-index.
func (m *MockClient) ReindexAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(MockCall{Op: OpReindex, Err: m.ReindexError})
	return m.ReindexError
}
