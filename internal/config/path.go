// Package config loads and saves nickutc's on-disk settings: config.json
// for tunables and tracked users, secrets.json for credentials. Both live
// in the data directory next to the SQLite database.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/graaaaa/nickutc/internal/appinfo"
)

// EnvDataDir overrides the data directory.
const EnvDataDir = "NICKUTC_DATA_DIR"

var dataDir struct {
	sync.RWMutex
	override string
}

// SetDataDir pins the data directory, as the --data-dir flag does. An
// empty dir goes back to the environment and platform default.
func SetDataDir(dir string) {
	dataDir.Lock()
	dataDir.override = dir
	dataDir.Unlock()
}

// DataDir resolves the data directory: SetDataDir first, then
// NICKUTC_DATA_DIR, then a per-user platform directory.
func DataDir() (string, error) {
	dataDir.RLock()
	dir := dataDir.override
	dataDir.RUnlock()
	if dir != "" {
		return dir, nil
	}
	if dir = os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	return platformDataDir()
}

// platformDataDir is %LOCALAPPDATA%\nickutc on Windows, so the database
// stays out of the roaming profile, and os.UserConfigDir()/nickutc elsewhere.
func platformDataDir() (string, error) {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appinfo.DirName), nil
		}
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, appinfo.DirName), nil
}

// EnsureDataDir resolves the data directory and creates it owner-only.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return dir, nil
}

func inDataDir(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func ConfigPath() (string, error)   { return inDataDir(appinfo.ConfigFileName) }
func SecretsPath() (string, error)  { return inDataDir(appinfo.SecretsFileName) }
func LockFilePath() (string, error) { return inDataDir(appinfo.LockFileName) }
func DatabasePath() (string, error) { return inDataDir(appinfo.DatabaseFileName) }
