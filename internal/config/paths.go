package config

import (
	"os"
	"path/filepath"
)

const appDirName = "kontrol"

// ConfigPath returns the path to the declarative configuration file.
// Uses XDG_CONFIG_HOME if set, otherwise the platform user config dir.
func ConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configHome = dir
	}
	return filepath.Join(configHome, appDirName, "kontrol.toml"), nil
}

// DataDir returns the path to the kontrol data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share/kontrol.
func DataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appDirName), nil
}
