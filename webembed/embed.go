//go:build !dev

// Package webembed holds the dashboard served at /.
package webembed

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// GetFS returns the dashboard files rooted at dist.
func GetFS() (fs.FS, error) {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return sub, nil
}
