// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// execute runs the root command against a fresh global Viper and a
// temporary $HOME so no developer config leaks in.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// writeConfig writes a config with its data directory under a temp dir.
func writeConfig(t *testing.T, extra string) (path, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	path = filepath.Join(dir, "autoir.yaml")
	content := "storage:\n  data_dir: " + dataDir + "\n  embedding_dim: 3\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, dataDir
}
