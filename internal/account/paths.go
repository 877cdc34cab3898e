package account

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.cmsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cmsync")
}

// Dir returns the account-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// DBPath returns the local message log database path for an account.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "cmsync.db")
}

// NativeDBPath returns the native SMS/MMS provider database path for an
// account. On-device this is the platform's mmssms.db; in tests it is a
// fixture created by the provider fake.
func NativeDBPath(name string) string {
	return filepath.Join(Dir(name), "native.db")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "cmsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
