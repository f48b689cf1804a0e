// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/autoir-dev/autoir/internal/config"
	"github.com/autoir-dev/autoir/internal/server"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, running server and free disk space under the data directory.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "server address (default: server.listen)")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr := serverAddress(cmd)
	dataDir := viper.GetString("storage.data_dir")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Server", func() string { return checkServer(addr) }},
		{"Data Dir", func() string { return checkDataDir(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("autoir %s (commit %s)", version, commit)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	source := "defaults (no config file found)"
	if f := viper.ConfigFileUsed(); f != "" {
		source = f
	}
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Sprintf("invalid, from %s: %s", source, err)
	}
	return fmt.Sprintf("valid, from %s (%d pipeline(s), analyzer %s)", source, len(cfg.Pipelines), cfg.Analyzer.Kind)
}

func checkServer(addr string) string {
	var body server.StatusBody
	if err := newAPIClient(addr).getJSON("/api/v1/status", nil, &body); err != nil {
		if autoirerr.HasCode(err, autoirerr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'autoir start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s (%d pipeline(s))", body.Status, addr, len(body.Pipelines))
}

func checkDataDir(dataDir string) string {
	info, err := os.Stat(dataDir)
	switch {
	case os.IsNotExist(err):
		return fmt.Sprintf("%s does not exist yet (created on start)", dataDir)
	case err != nil:
		return fmt.Sprintf("error: %s", err)
	case !info.IsDir():
		return fmt.Sprintf("%s is not a directory", dataDir)
	}
	if unix.Access(dataDir, unix.W_OK) != nil {
		return fmt.Sprintf("%s is not writable", dataDir)
	}
	return dataDir
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "."
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
