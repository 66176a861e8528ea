//go:build dev

// Package webembed holds the dashboard served at /.
package webembed

import (
	"io/fs"
	"os"
)

// EnvDistDir points dev builds at a dashboard directory on disk.
const EnvDistDir = "NICKUTC_WEB_DIR"

// GetFS serves the dashboard from disk so edits show up without a rebuild.
// It reads EnvDistDir, falling back to webembed/dist under the working
// directory.
func GetFS() (fs.FS, error) {
	dir := os.Getenv(EnvDistDir)
	if dir == "" {
		dir = "webembed/dist"
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return os.DirFS(dir), nil
}
