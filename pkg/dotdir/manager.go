// Package dotdir manages the .thinkmate/ and ~/.thinkmate directories.
//
// The directory holds config.toml, the log file, the session state that
// remembers which conversation was last active, and (for the file storage
// driver) one JSON record per conversation under history/.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the thinkmate directory.
	dirName = ".thinkmate"

	historyDir = "history"
	logFile    = "thinkmate.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .thinkmate/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.thinkmate/ dir
//  3. Home ~/.thinkmate/ dir, created if missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating thinkmate directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// HistoryDir returns the history/ directory inside the resolved target,
// creating it if needed. An explicit historyOverride wins over the target.
func (m *Manager) HistoryDir(overrideDir, historyOverride string) (string, error) {
	if historyOverride != "" {
		if err := os.MkdirAll(historyOverride, 0o700); err != nil {
			return "", fmt.Errorf("creating history directory %s: %w", historyOverride, err)
		}
		return filepath.Abs(historyOverride)
	}

	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, historyDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating history directory %s: %w", dir, err)
	}
	return dir, nil
}

// LogPath returns the path of the log file inside the resolved target.
func (m *Manager) LogPath(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(target, logFile), nil
}

// localDirExists checks whether a .thinkmate/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
