package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAgentsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Show the agents and app webhooks the configuration enables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAgents(cmd)
		},
	}
}

func (c *cli) runAgents(cmd *cobra.Command) error {
	r, closeFn, err := c.newReporter(false, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "release: %s\n", r.Release())

	names := r.Agents()
	if len(names) == 0 {
		fmt.Fprintln(out, "operator agents: none")
	} else {
		fmt.Fprintf(out, "operator agents: %s\n", strings.Join(names, ", "))
	}

	rc := c.cfg.Reporting
	switch {
	case !rc.UserReporting:
		fmt.Fprintln(out, "user reporting: disabled")
	case rc.UserReportingStacktrace:
		fmt.Fprintln(out, "user reporting: enabled (with stack traces)")
	default:
		fmt.Fprintln(out, "user reporting: enabled")
	}

	apps := r.Registry().Apps()
	if len(apps) == 0 {
		fmt.Fprintln(out, "apps: none")
		return nil
	}

	fmt.Fprintln(out, "apps:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, id := range apps {
		chat := "-"
		if app, ok := r.Registry().Lookup(id); ok && app.SlackWebhook != "" {
			chat = "slack"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", id, chat)
	}
	return tw.Flush()
}
