// Package appinfo provides application identity constants.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "nickutc"

	// DirName is the data directory name under the user config dir.
	DirName = "nickutc"

	// MutexName is the Windows mutex name for single instance control,
	// scoped to the current user session.
	MutexName = "Local\\nickutc"

	LockFileName     = "nickutc.lock"
	ConfigFileName   = "config.json"
	SecretsFileName  = "secrets.json"
	DatabaseFileName = "nickutc.db"
)
