//go:build !windows

package config

import "os"

// replaceFile moves src over dst. On POSIX systems rename replaces an
// existing destination atomically.
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
