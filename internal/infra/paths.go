// Package infra implements infrastructure concerns: persistence, processes, partner transports and export.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the daemon.
type ExecMode string

const (
	// ExecModeUser keeps data under the invoking user's home (no sudo required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps data under /var/lib (sudo required)
	ExecModeSystem ExecMode = "system"
)

const (
	systemDataDir = "/var/lib/discipline"
	userDataDir   = ".discipline"

	settingsFileName = "settings.yaml"
	envFileName      = ".env"
	logFileName      = "discipline.log"
)

// DataPaths holds every file location the daemon touches.
type DataPaths struct {
	Mode     ExecMode
	DataDir  string
	Settings string
	EnvFile  string
	Database string
	Key      string
	Log      string
	IsRoot   bool
}

// DetectDataPaths chooses paths based on effective UID.
func DetectDataPaths() DataPaths {
	if os.Geteuid() == 0 {
		return DataPathsFor(ExecModeSystem, systemDataDir)
	}
	return UserDataPaths()
}

// UserDataPaths returns user mode paths regardless of current euid.
// Under sudo the invoking user's home is used.
func UserDataPaths() DataPaths {
	return DataPathsFor(ExecModeUser, filepath.Join(GetRealUserHome(), userDataDir))
}

// DataPathsFor lays out the files under dataDir.
func DataPathsFor(mode ExecMode, dataDir string) DataPaths {
	return DataPaths{
		Mode:     mode,
		DataDir:  dataDir,
		Settings: filepath.Join(dataDir, settingsFileName),
		EnvFile:  filepath.Join(dataDir, envFileName),
		Database: filepath.Join(dataDir, storeDBName),
		Key:      filepath.Join(dataDir, keyFileName),
		Log:      filepath.Join(dataDir, logFileName),
		IsRoot:   os.Geteuid() == 0,
	}
}

// Ensure creates the data directory with owner-only permissions.
func (p DataPaths) Ensure() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
