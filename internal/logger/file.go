package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxLogFiles is how many *.log files OpenLogFile keeps in the log directory,
// counting the one it creates.
const MaxLogFiles = 5

const (
	logFilePrefix = "s3nav-"
	logFileLayout = "2006-01-02-15-04-05"
)

// DefaultLogDir returns the per-user directory log files are written to.
func DefaultLogDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "s3nav"), nil
	case "windows":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "s3nav", "Logs"), nil
	default:
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, "s3nav", "logs"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "state", "s3nav", "logs"), nil
	}
}

// OpenLogFile creates dir if needed, prunes old log files and opens a new
// timestamped log file for appending. The caller closes the file.
func OpenLogFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	name := logFilePrefix + now.Format(logFileLayout) + ".log"
	if err := pruneLogFiles(dir, MaxLogFiles-1, name); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// pruneLogFiles deletes the oldest *.log files so that at most keep remain,
// not counting the file named current. Names sort by their timestamp.
func pruneLogFiles(dir string, keep int, current string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") || e.Name() == current {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for len(files) > keep {
		if err := os.Remove(filepath.Join(dir, files[0])); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old log file: %w", err)
		}
		files = files[1:]
	}
	return nil
}

// Redact masks a credential for logging. The first four characters are
// kept so that keys can still be told apart.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	n := utf8.RuneCountInString(secret)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	runes := []rune(secret)
	return string(runes[:4]) + strings.Repeat("*", n-4)
}
