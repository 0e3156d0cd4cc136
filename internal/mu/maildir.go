package mu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/wesm/mudex/internal/model"
)

// infoSep separates the unique part of a Maildir filename from its flags.
const infoSep = ":2,"

// maildirFlag maps settable flags to their Maildir info letters. Unread is
// the absence of S.
var maildirFlag = map[model.Flag]byte{
	model.FlagUnread:    'S',
	model.FlagReplied:   'R',
	model.FlagForwarded: 'P',
	model.FlagImportant: 'F',
}

// filename is a Maildir message path split into its parts.
type filename struct {
	folderDir string // directory holding cur/new/tmp
	sub       string // "cur", "new", or "" when not in a maildir
	base      string // unique part
	flags     string // info letters, sorted
	hasInfo   bool
}

func splitPath(path string) filename {
	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	f := filename{folderDir: dir}
	if s := filepath.Base(dir); s == "cur" || s == "new" {
		f.sub = s
		f.folderDir = filepath.Dir(dir)
	}
	if i := strings.LastIndex(name, infoSep); i >= 0 {
		f.base = name[:i]
		f.flags = sortFlags(name[i+len(infoSep):])
		f.hasInfo = true
	} else {
		f.base = name
	}
	return f
}

func (f filename) path() string {
	dir := f.folderDir
	if f.sub != "" {
		dir = filepath.Join(dir, f.sub)
	}
	name := f.base
	if f.hasInfo || f.sub == "cur" {
		name += infoSep + f.flags
	}
	return filepath.Join(dir, name)
}

func (f *filename) setLetter(c byte, on bool) {
	has := strings.IndexByte(f.flags, c) >= 0
	switch {
	case on && !has:
		f.flags = sortFlags(f.flags + string(c))
	case !on && has:
		f.flags = strings.ReplaceAll(f.flags, string(c), "")
	}
	f.hasInfo = true
}

func sortFlags(s string) string {
	b := []byte(s)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	out := b[:0]
	for i, c := range b {
		if i > 0 && c == b[i-1] {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// FlagPath returns the path the message at path would have with flag set
// to value. Changing any flag of a message in new/ moves it to cur/.
func FlagPath(path string, flag model.Flag, value bool) (string, error) {
	if !flag.Settable() {
		return "", fmt.Errorf("%s: %w", flag, model.ErrFlagNotSettable)
	}
	f := splitPath(path)
	if flag == model.FlagNew {
		if f.sub == "" {
			return "", fmt.Errorf("%s is not inside a maildir", path)
		}
		if value {
			f.sub = "new"
		} else {
			f.sub = "cur"
		}
		return f.path(), nil
	}

	letter := maildirFlag[flag]
	on := value
	if flag == model.FlagUnread {
		on = !value
	}
	f.setLetter(letter, on)
	if f.sub == "new" {
		f.sub = "cur"
	}
	return f.path(), nil
}

// SetFlag persists a flag change by renaming the message file and
// re-registering it with mu. It returns the new path (unchanged when the
// flag already had the value).
func (c *Client) SetFlag(ctx context.Context, path string, flag model.Flag, value bool) (string, error) {
	newPath, err := FlagPath(path, flag, value)
	if err != nil {
		return "", serviceError("flag", err.Error(), err)
	}
	if newPath == path {
		if _, err := os.Stat(path); err != nil {
			return "", serviceError("flag", "message file missing: "+path, err)
		}
		return path, nil
	}
	if err := c.MovePath(ctx, path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// ApplyMove moves the message at path into toFolder (e.g. "/Archive") and
// returns the new path. Messages always land in cur/.
func (c *Client) ApplyMove(ctx context.Context, path, toFolder string) (string, error) {
	root, err := c.RootMaildir(ctx)
	if err != nil {
		return "", err
	}
	f := splitPath(path)
	f.folderDir = filepath.Join(root, filepath.FromSlash(strings.Trim(toFolder, "/")))
	f.sub = "cur"
	target := f.path()
	if target == path {
		return path, nil
	}
	if err := c.MovePath(ctx, path, target); err != nil {
		return "", err
	}
	return target, nil
}

// FolderOf returns the maildir folder of path relative to the root, or ""
// when path is outside it.
func (c *Client) FolderOf(ctx context.Context, path string) string {
	root, err := c.RootMaildir(ctx)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, splitPath(path).folderDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}

// MovePath renames from to exactly to, telling mu to drop the old path and
// index the new one. On failure it puts the file and the index entry back
// where they were before returning the error.
func (c *Client) MovePath(ctx context.Context, from, to string) error {
	if _, err := os.Stat(from); err != nil {
		return serviceError("move", "message file missing: "+from, err)
	}
	if _, err := os.Stat(to); err == nil {
		return serviceError("move", "target already exists: "+to, fs.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0700); err != nil {
		return serviceError("move", "create target folder", err)
	}

	if err := c.NotifyRemoved(ctx, from); err != nil {
		return err
	}
	if err := renameFile(from, to); err != nil {
		c.readd(from)
		return serviceError("move", "rename message file", err)
	}
	if err := c.NotifyAdded(ctx, to); err != nil {
		if rerr := renameFile(to, from); rerr != nil {
			c.logger.Error("move rollback failed", "from", to, "to", from, "err", rerr)
			return errors.Join(err, rerr)
		}
		c.readd(from)
		return err
	}
	return nil
}

// readd restores the index entry for path after a failed move. It uses a
// fresh context so a cancelled request still leaves the index consistent.
func (c *Client) readd(path string) {
	if err := c.NotifyAdded(context.Background(), path); err != nil {
		c.logger.Warn("re-adding message after failed move", "path", path, "err", err)
	}
}

// renameFile renames, copying across filesystems when needed.
func renameFile(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(from, to); err != nil {
		_ = os.Remove(to)
		return err
	}
	return os.Remove(from)
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	dst, err := os.OpenFile(to, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
