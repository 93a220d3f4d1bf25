// Package appdir resolves this module's on-disk config directory, the
// desktop-resident equivalent of the teacher's --kubeconfig flag resolution:
// a well-known location a long-running agent process reads and writes
// without the caller naming a path on every invocation.
//
// Grounded on original_source/crates/kftray-commons/src/utils/
// validate_configs.rs's detect_multiple_configs precedence
// (KFTRAY_CONFIG > XDG_CONFIG_HOME/kftray > $HOME/.kftray). The
// multiple-locations-detected warning dialog there is Tauri/GUI-specific
// and out of scope; this package only resolves the one path, creating it
// if absent. Built on os.Getenv/os.UserHomeDir rather than an ecosystem
// directory-resolution library: none of the retrieved examples import one,
// and the precedence itself is bespoke to this project rather than a
// generic XDG lookup.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

// Dir resolves the app config directory, creating it (mode 0o700) if it
// does not already exist.
func Dir() (string, error) {
	dir := resolve()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create app config dir %s: %w", dir, err)
	}
	return dir, nil
}

func resolve() string {
	if v := os.Getenv(constants.AppConfigEnvVar); v != "" {
		return v
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, constants.AppDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", "."+constants.AppDirName)
	}
	return filepath.Join(home, "."+constants.AppDirName)
}

// DBPath returns the sqlite file path inside the resolved app config
// directory.
func DBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.DefaultDBFileName), nil
}

// LogDir returns (and creates) the HTTP-logs subdirectory inside the
// resolved app config directory.
func LogDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	logDir := filepath.Join(dir, constants.DefaultLogDirName)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return "", fmt.Errorf("create log dir %s: %w", logDir, err)
	}
	return logDir, nil
}
