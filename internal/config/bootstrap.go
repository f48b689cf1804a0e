// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

//go:embed autoir.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/autoir/autoir.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", autoirerr.Errorf(autoirerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "autoir", "autoir.yaml"), nil
}

// BootstrapConfig writes the default commented config to path unless a file
// is already there. It returns the path written, or "" when nothing was
// written. Failures are logged at debug level and skipped.
func BootstrapConfig(path string) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}
