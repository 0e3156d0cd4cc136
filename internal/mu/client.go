// Package mu is the client for the mu mail indexer. It runs mu
// subcommands, parses their JSON output into model records, and performs
// Maildir renames with the compensating remove/add calls that keep the
// index consistent without a full re-scan.
package mu

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wesm/mudex/internal/mime"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/textutil"
	"golang.org/x/sync/singleflight"
)

// SearchOptions configures a find request.
type SearchOptions struct {
	Query          string
	MaxResults     int  // 0 means no limit
	Threads        bool // ask mu for thread order
	Descending     bool // newest first
	IncludeRelated bool // include messages in the same threads
}

// ContactOptions configures a cfind request.
type ContactOptions struct {
	Personal   bool
	MaxResults int
}

// Client talks to mu through a Runner.
type Client struct {
	runner    Runner
	logger    *slog.Logger
	lazyIndex bool

	rootMu    sync.Mutex
	root      string
	rootGroup singleflight.Group
}

// New creates a Client over runner.
func New(runner Runner) *Client {
	return &Client{
		runner:    runner,
		logger:    slog.Default(),
		lazyIndex: true,
	}
}

// WithLogger sets the logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithMaildir fixes the root maildir instead of asking `mu info`.
func (c *Client) WithMaildir(root string) *Client {
	c.rootMu.Lock()
	c.root = root
	c.rootMu.Unlock()
	return c
}

// WithLazyIndex controls --lazy-check on re-index.
func (c *Client) WithLazyIndex(lazy bool) *Client {
	c.lazyIndex = lazy
	return c
}

// run executes a mu subcommand and converts failures to IndexServiceError.
func (c *Client) run(ctx context.Context, op string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	stdout, stderr, err := c.runner.Run(ctx, args...)
	c.logger.Debug("mu invocation",
		"args", args,
		"duration", time.Since(start),
		"stdout_bytes", len(stdout),
		"err", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout, stderr, serviceError(op, "cancelled", ctxErr)
		}
		reason := textutil.FirstLine(textutil.EnsureUTF8(string(stderr)))
		if reason == "" {
			reason = err.Error()
		}
		return stdout, stderr, serviceError(op, reason, err)
	}
	return stdout, stderr, nil
}

// Search runs a find query. A query with no matches returns an empty
// slice; the result is fully materialized in mu's order.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]*model.Message, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, serviceError("find", "empty query", nil)
	}
	args := []string{"find", "--format=json", "--sortfield=date", "--skip-dups"}
	if opts.Descending {
		args = append(args, "--reverse")
	}
	if opts.MaxResults > 0 {
		args = append(args, "--maxnum="+strconv.Itoa(opts.MaxResults))
	}
	if opts.Threads {
		args = append(args, "--threads")
	}
	if opts.IncludeRelated {
		args = append(args, "--include-related")
	}
	args = append(args, opts.Query)

	stdout, stderr, err := c.run(ctx, "find", args...)
	if err != nil {
		if isNoMatches(stderr) {
			return []*model.Message{}, nil
		}
		return nil, err
	}
	msgs, err := parseFind(stdout)
	if err != nil {
		return nil, serviceError("find", "unparseable output", err)
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

func isNoMatches(stderr []byte) bool {
	return bytes.Contains(bytes.ToLower(stderr), []byte("no matches"))
}

// View parses the message file at path.
func (c *Client) View(ctx context.Context, path string) (*model.Detail, error) {
	if err := ctx.Err(); err != nil {
		return nil, serviceError("view", "cancelled", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, serviceError("view", "message file not found: "+path, err)
		}
		return nil, serviceError("view", "read message file", err)
	}
	msg, err := mime.Parse(raw)
	if err != nil {
		return nil, serviceError("view", "unparseable message", err)
	}
	return msg.Detail(path), nil
}

// Contacts runs cfind for pattern (empty matches everything).
func (c *Client) Contacts(ctx context.Context, pattern string, opts ContactOptions) ([]model.Contact, error) {
	args := []string{"cfind", "--format=json"}
	if opts.Personal {
		args = append(args, "--personal")
	}
	if opts.MaxResults > 0 {
		args = append(args, "--maxnum="+strconv.Itoa(opts.MaxResults))
	}
	if pattern != "" {
		args = append(args, pattern)
	}
	stdout, stderr, err := c.run(ctx, "cfind", args...)
	if err != nil {
		if isNoMatches(stderr) {
			return nil, nil
		}
		return nil, err
	}
	return parseContacts(stdout), nil
}

// NotifyRemoved tells mu that path no longer exists.
func (c *Client) NotifyRemoved(ctx context.Context, path string) error {
	_, _, err := c.run(ctx, "remove", "remove", path)
	return err
}

// NotifyAdded tells mu to index the message at path.
func (c *Client) NotifyAdded(ctx context.Context, path string) error {
	_, _, err := c.run(ctx, "add", "add", path)
	return err
}

// ReindexAll runs a full `mu index`.
func (c *Client) ReindexAll(ctx context.Context) error {
	args := []string{"index"}
	if c.lazyIndex {
		args = append(args, "--lazy-check")
	}
	_, _, err := c.run(ctx, "index", args...)
	return err
}

// RootMaildir returns the root maildir: the configured one, else the
// value reported by `mu info`, else ~/Maildir. The result is cached and
// concurrent first lookups share one invocation.
func (c *Client) RootMaildir(ctx context.Context) (string, error) {
	c.rootMu.Lock()
	root := c.root
	c.rootMu.Unlock()
	if root != "" {
		return root, nil
	}

	v, err, _ := c.rootGroup.Do("root", func() (any, error) {
		stdout, _, err := c.run(ctx, "info", "info")
		root := ""
		if err == nil {
			root = parseInfoMaildir(stdout)
		} else {
			c.logger.Warn("mu info failed; falling back to ~/Maildir", "err", err)
		}
		if root == "" {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return "", serviceError("info", "cannot determine root maildir", herr)
			}
			root = filepath.Join(home, "Maildir")
		}
		c.rootMu.Lock()
		c.root = root
		c.rootMu.Unlock()
		return root, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// parseInfoMaildir extracts the maildir from `mu info` table output:
//
//	| maildir           | /home/user/Maildir          |
func parseInfoMaildir(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "|") {
			continue
		}
		cells := strings.Split(line, "|")
		for i := 0; i+1 < len(cells); i++ {
			if strings.EqualFold(strings.TrimSpace(cells[i]), "maildir") {
				if v := strings.TrimSpace(cells[i+1]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// Folders lists every maildir folder under the root, e.g. "/INBOX".
func (c *Client) Folders(ctx context.Context) ([]string, error) {
	root, err := c.RootMaildir(ctx)
	if err != nil {
		return nil, err
	}
	var folders []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() || d.Name() != "cur" {
			return nil
		}
		rel, rerr := filepath.Rel(root, filepath.Dir(path))
		if rerr == nil && rel != "." {
			folders = append(folders, "/"+filepath.ToSlash(rel))
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("walk maildir %s: %w", root, err)
	}
	sort.Strings(folders)
	return folders, nil
}
