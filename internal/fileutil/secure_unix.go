//go:build !windows

// Package fileutil provides owner-only file helpers for the mudex home
// directory and log file. On Unix they are thin wrappers over os; on
// Windows owner-only modes also get a DACL limited to the current user.
package fileutil

import "os"

// SecureMkdirAll creates path and any missing parents with perm.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// SecureOpenFile opens the named file with the given flag and permissions.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
