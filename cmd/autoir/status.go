// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoir-dev/autoir/internal/server"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server, pipeline and provider status",
		Long:  "Query the running server's status endpoint and print pipelines, providers and tables.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "server address (default: server.listen)")

	return cmd
}

// serverAddress returns the --address flag, or the configured listen address.
func serverAddress(cmd *cobra.Command) string {
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		return addr
	}
	return viper.GetString("server.listen")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr := serverAddress(cmd)
	out := cmd.OutOrStdout()

	var body server.StatusBody
	if err := newAPIClient(addr).getJSON("/api/v1/status", nil, &body); err != nil {
		if autoirerr.HasCode(err, autoirerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s (version %s)\n", addr, body.Status, body.Version)
	return writeStatus(out, body)
}

func writeStatus(out io.Writer, body server.StatusBody) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "\nPIPELINE\tTABLE\tSTATE\tCYCLES\tFAILURES\tCURSOR\tLAST ERROR")
	for _, p := range body.Pipelines {
		cursor, lastErr := "-", ""
		if p.LastCycle != nil {
			cursor = fmt.Sprint(p.LastCycle.CursorMs)
			lastErr = p.LastCycle.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", p.PipelineID, p.Table, p.State, p.Cycles, p.Failures, cursor, lastErr)
	}

	_, _ = fmt.Fprintln(tw, "\nPROVIDER\tAVAILABLE\tMESSAGE")
	for _, p := range body.Providers {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\n", p.Provider, p.Available, p.Message)
	}

	_, _ = fmt.Fprintln(tw, "\nTABLE\tDIM\tEVENTS")
	for _, t := range body.Tables {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Name, t.EmbeddingDim, t.EventCount)
	}

	return tw.Flush()
}
