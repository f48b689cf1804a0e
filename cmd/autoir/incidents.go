// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoir-dev/autoir/internal/store"
)

func newIncidentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List incidents from the running server",
		RunE:  runIncidents,
	}

	cmd.Flags().String("address", "", "server address (default: server.listen)")
	cmd.Flags().String("status", "", "filter by status (open, acknowledged, resolved)")
	cmd.Flags().Int("limit", 20, "maximum incidents to list")

	return cmd
}

func runIncidents(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", status)
	}

	var body struct {
		Incidents []store.Incident `json:"incidents"`
	}
	if err := newAPIClient(serverAddress(cmd)).getJSON("/api/v1/incidents", q, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Incidents) == 0 {
		_, err := fmt.Fprintln(out, "No incidents.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEVERITY\tSTATUS\tEVENTS\tUPDATED\tGROUP\tTITLE\tDEDUPE KEY")
	for _, inc := range body.Incidents {
		updated := time.UnixMilli(inc.UpdatedAtMs).UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			inc.Severity, inc.Status, inc.EventCount, updated, inc.AffectedGroup, inc.Title, inc.DedupeKey)
	}
	return tw.Flush()
}
