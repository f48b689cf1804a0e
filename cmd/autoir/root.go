// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoir-dev/autoir/internal/config"
	"github.com/autoir-dev/autoir/internal/secrets"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// NewRootCmd creates the root autoir command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autoir",
		Short:         "AutoIR: automated incident detection over log events",
		Long:          "AutoIR stores embedded log events, scans them on a schedule, and opens deduplicated incidents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newIncidentsCmd(),
		newSchemaCmd(),
		newDoctorCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return autoirerr.Errorf(autoirerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset so the bare name never matches the
		// ./autoir binary.
		v.SetConfigName("autoir")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/autoir")
		v.AddConfigPath("/etc/autoir")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return autoirerr.Errorf(autoirerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := bootstrapDefaultConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return autoirerr.Errorf(autoirerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	setupLogging(v.GetBool("verbose"))
	config.WarnInsecurePermissions(v.ConfigFileUsed())

	// Unresolved references stay as keyring:// URIs; the provider or
	// notifier using them fails on first call.
	if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
		slog.Warn("unresolved keyring secrets in config", "error", err)
	}
	return nil
}

func bootstrapDefaultConfig() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	return config.BootstrapConfig(path)
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
