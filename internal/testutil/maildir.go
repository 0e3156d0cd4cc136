package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// NewMaildir creates a maildir root under t.TempDir with the given
// folders (e.g. "/INBOX"), each with cur, new and tmp subdirectories.
func NewMaildir(t *testing.T, folders ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range folders {
		for _, sub := range []string{"cur", "new", "tmp"} {
			dir := filepath.Join(root, strings.Trim(f, "/"), sub)
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Fatalf("create maildir %s: %v", dir, err)
			}
		}
	}
	return root
}

// Deliver writes raw into root/<folder>/<sub>/<name> and returns its path.
// sub is "cur" or "new".
func Deliver(t *testing.T, root, folder, sub, name string, raw []byte) string {
	t.Helper()
	dir := filepath.Join(root, strings.Trim(folder, "/"), sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("write message: %v", err)
	}
	return path
}

// MustExist fails the test if path does not exist.
func MustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// MustNotExist fails the test if path exists.
func MustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s not to exist (err=%v)", path, err)
	}
}
