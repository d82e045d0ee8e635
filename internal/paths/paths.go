// Package paths resolves the on-disk layout of the clankers data root.
//
// Resolution is pure: environment overrides win, then platform defaults.
// Nothing here creates directories; callers create what they need on
// first use.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	dataDirName       = "clankers"
	defaultDBFile     = "clankers.db"
	defaultConfigFile = "clankers.json"
	defaultSocketName = "dxta-clankers.sock"
	windowsPipePath   = `\\.\pipe\dxta-clankers`
	logDirName        = "logs"
	logFilePattern    = "clankers-%s.jsonl"
)

// DataRoot returns the platform data root.
//
// Linux: $XDG_DATA_HOME or ~/.local/share
// macOS: ~/Library/Application Support
// Windows: %APPDATA% or ~/AppData/Roaming
// CLANKERS_DATA_PATH overrides all of the above.
func DataRoot() string {
	if v := os.Getenv("CLANKERS_DATA_PATH"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if v := os.Getenv("APPDATA"); v != "" {
			return v
		}
		return filepath.Join(home, "AppData", "Roaming")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support")
	default:
		if v := os.Getenv("XDG_DATA_HOME"); v != "" {
			return v
		}
		return filepath.Join(home, ".local", "share")
	}
}

// DataDir returns the application directory under the data root.
func DataDir() string {
	return filepath.Join(DataRoot(), dataDirName)
}

// DBPath returns the SQLite database file path.
// CLANKERS_DB_PATH overrides.
func DBPath() string {
	if v := os.Getenv("CLANKERS_DB_PATH"); v != "" {
		return v
	}
	return filepath.Join(DataDir(), defaultDBFile)
}

// ConfigPath returns the JSON config file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), defaultConfigFile)
}

// SocketPath returns the daemon endpoint. On Windows this is the
// advertised named-pipe path; the server may fall back to localhost TCP.
// CLANKERS_SOCKET_PATH overrides.
func SocketPath() string {
	if v := os.Getenv("CLANKERS_SOCKET_PATH"); v != "" {
		return v
	}
	if runtime.GOOS == "windows" {
		return windowsPipePath
	}
	return filepath.Join(DataDir(), defaultSocketName)
}

// LogDir returns the structured log directory.
// CLANKERS_LOG_PATH overrides.
func LogDir() string {
	if v := os.Getenv("CLANKERS_LOG_PATH"); v != "" {
		return v
	}
	return filepath.Join(DataDir(), logDirName)
}

// CurrentLogFile returns today's log file path, using the local date.
func CurrentLogFile() string {
	date := time.Now().Format("2006-01-02")
	return filepath.Join(LogDir(), fmt.Sprintf(logFilePattern, date))
}
