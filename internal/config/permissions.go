// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file is readable by
// group or others. Provider keys and the Telegram token live there.
func WarnInsecurePermissions(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return false
	}

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	mode := info.Mode()
	if mode.Perm()&(groupRead|otherRead) == 0 {
		return false
	}
	slog.Warn("config file is readable by other users and may expose credentials",
		"path", path,
		"mode", mode,
		"recommended", "0600",
	)
	return true
}
