//go:build windows

package singleinstance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"

	"github.com/graaaaa/nickutc/internal/appinfo"
	"golang.org/x/sys/windows"
)

// mutexName derives a per-data-directory mutex name. Paths are compared
// case-insensitively, as NTFS does.
func mutexName(lockPath string) (*uint16, error) {
	abs, err := filepath.Abs(lockPath)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(strings.ToLower(abs)))
	return windows.UTF16PtrFromString(appinfo.MutexName + "-" + hex.EncodeToString(sum[:8]))
}

// AcquireLock holds a named mutex for the life of the process. No file is
// created at lockPath.
func AcquireLock(lockPath string) (release func(), ok bool, err error) {
	name, err := mutexName(lockPath)
	if err != nil {
		return nil, false, err
	}

	h, err := windows.CreateMutex(nil, false, name)
	switch {
	case errors.Is(err, windows.ERROR_ALREADY_EXISTS):
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return func() { _ = windows.CloseHandle(h) }, true, nil
}
