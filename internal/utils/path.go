package utils

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDirCandidates lists where the config directory of app may live, most preferred first.
// XDG_CONFIG_HOME and APPDATA are honoured when set.
func ConfigDirCandidates(app string) []string {
	var dirs []string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			dirs = append(dirs, filepath.Join(appData, app))
		}
	default:
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			dirs = append(dirs, filepath.Join(configHome, app))
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return dirs
	}
	dirs = append(dirs, filepath.Join(homeDir, ".config", app))
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, filepath.Join(homeDir, "Library", "Application Support", app))
	}
	return dedupe(dirs)
}

func dedupe(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
