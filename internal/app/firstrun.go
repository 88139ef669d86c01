package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	markerFileName = "first_run_completed"
	appName        = "cloudspectre"
)

// GetAppConfigDir returns the path to the application's configuration directory.
func GetAppConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// IsFirstRun reports whether the marker file is missing, creating it on the
// way. Any error counts as "not first run".
func IsFirstRun() bool {
	dir, err := GetAppConfigDir()
	if err != nil {
		slog.Debug("failed to get app config directory", slog.String("error", err.Error()))
		return false
	}
	return isFirstRunIn(dir)
}

func isFirstRunIn(dir string) bool {
	marker := filepath.Join(dir, markerFileName)

	_, err := os.Stat(marker)
	if err == nil {
		return false
	}
	if !os.IsNotExist(err) {
		slog.Debug("failed to check first run marker", slog.String("path", marker), slog.String("error", err.Error()))
		return false
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Debug("failed to create app config directory", slog.String("path", dir), slog.String("error", err.Error()))
		return false
	}
	f, err := os.Create(marker)
	if err != nil {
		slog.Debug("failed to create first run marker", slog.String("path", marker), slog.String("error", err.Error()))
		return false
	}
	_ = f.Close()
	return true
}

// PrintFirstRunNotice explains the run mode the first time the tool is used.
func PrintFirstRunNotice(w io.Writer, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "%s runs in dry-run mode by default: decisions are logged, nothing is changed.\n", appName)
		fmt.Fprintln(w, "Pass --dry-run=false (or DRY_RUN=false) to reclaim resources.")
		return
	}
	fmt.Fprintf(w, "%s is running LIVE: decided actions will stop, terminate and delete resources.\n", appName)
}
