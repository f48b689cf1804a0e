// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoir-dev/autoir/internal/config"
	"github.com/autoir-dev/autoir/internal/query"
	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <table>",
		Short: "Create an event table or verify its embedding dimension",
		Long:  "Open the local store directly and ensure <table> exists with the given embedding dimension. A table created with another dimension is reported as a mismatch.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchema,
	}

	cmd.Flags().Int("dim", 0, "embedding dimension (default: storage.embedding_dim)")

	return cmd
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dim, _ := cmd.Flags().GetInt("dim")
	if dim < 0 {
		return autoirerr.Errorf(autoirerr.CodeCLIInputInvalid, "--dim must be positive, got %d", dim)
	}
	if dim == 0 {
		dim = cfg.Storage.EmbeddingDim
	}

	stores, err := store.Open(&store.StorageConfig{Backend: cfg.Storage.Backend, EmbeddingDim: dim}, cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer func() { _ = stores.Close() }()

	table := args[0]
	if err := query.NewFromStores(stores).EnsureSchema(contextOrBackground(cmd), table, dim); err != nil {
		if autoirerr.IsSchemaMismatch(err) {
			return fmt.Errorf("table %q exists with a different embedding dimension: %w", table, err)
		}
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Table %s ready (embedding dimension %d)\n", table, dim)
	return err
}
