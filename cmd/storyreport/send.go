package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyscript/platform-reporting/pkg/reporting"
)

type sendFlags struct {
	appID, appName, appVersion string
	story                      string
	line                       int
	message, rootCause         string
	ident, event               string
	allowUserAgents            bool
	dryRun                     bool
}

func newSendCmd(c *cli) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Report a story failure",
		Long: `Build a story error from the flags, hand it to every enabled agent and
wait for delivery before exiting.`,
		Example: `  storyreport send --app-id 3f2c --app-name shop --story checkout.story \
    --line 12 --message "payment service unavailable" --allow-user-agents`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSend(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.appID, "app-id", "", "App UUID")
	flags.StringVar(&f.appName, "app-name", "", "App name")
	flags.StringVar(&f.appVersion, "app-version", "", "App version")
	flags.StringVar(&f.story, "story", "", "Story name")
	flags.IntVar(&f.line, "line", 0, "Story line number (0: unknown)")
	flags.StringVarP(&f.message, "message", "m", "", "Failure message (required)")
	flags.StringVar(&f.rootCause, "root-cause", "", "Message of the underlying error")
	flags.StringVar(&f.ident, "ident", "", "Analytics identity (e.g. the owner's email)")
	flags.StringVar(&f.event, "event", "", "Analytics event name")
	flags.BoolVar(&f.allowUserAgents, "allow-user-agents", false, "Also notify the app owner")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Print the report instead of sending it")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func (c *cli) runSend(cmd *cobra.Command, f *sendFlags) error {
	if f.line < 0 {
		return fmt.Errorf("--line must not be negative, got %d", f.line)
	}
	if (f.ident == "") != (f.event == "") {
		return errors.New("--ident and --event must be given together")
	}

	r, closeFn, err := c.newReporter(f.dryRun, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	storyErr := f.storyError()
	r.Capture(storyErr, reporting.CaptureOptions{
		AllowUserAgents:   f.allowUserAgents,
		AnalyticsIdentity: f.ident,
		AnalyticsEvent:    f.event,
	})

	if err := closeFn(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reported %s to %d agent(s)\n", reporting.ErrorType(storyErr), len(r.Agents()))
	return nil
}

func (f *sendFlags) storyError() *reporting.StoryError {
	var story *reporting.Story
	if f.story != "" || f.appID != "" || f.appName != "" || f.appVersion != "" {
		story = &reporting.Story{Name: f.story}
		if f.appID != "" || f.appName != "" || f.appVersion != "" {
			story.App = &reporting.App{AppID: f.appID, AppName: f.appName, Version: f.appVersion}
		}
	}

	var line *reporting.Line
	if f.line > 0 {
		line = &reporting.Line{LineNumber: f.line}
	}

	var root error
	if f.rootCause != "" {
		root = errors.New(f.rootCause)
	}
	return reporting.NewStoryError(f.message, story, line, root)
}
