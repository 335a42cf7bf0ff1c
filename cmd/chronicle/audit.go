package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"chronicle/internal/audit"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <session>",
		Short: "Replay a session's events and check stored state against them",
		Args:  cobra.ExactArgs(1),
		RunE:  runAudit,
	}
	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.store(ctx)
	if err != nil {
		return err
	}
	report, err := audit.Run(ctx, st, args[0])
	if err != nil {
		return err
	}

	var errorIssues []audit.Issue
	var warnIssues []audit.Issue
	for _, issue := range report.Issues {
		switch issue.Severity {
		case audit.SeverityError:
			errorIssues = append(errorIssues, issue)
		case audit.SeverityWarn:
			warnIssues = append(warnIssues, issue)
		}
	}

	out := cmd.OutOrStdout()
	if len(errorIssues) == 0 && len(warnIssues) == 0 {
		fmt.Fprintf(out, "No issues found in %d events.\n", report.Events)
		return nil
	}

	if len(errorIssues) > 0 {
		fmt.Fprintf(out, "Errors (%d):\n", len(errorIssues))
		printIssues(out, errorIssues)
	}
	if len(warnIssues) > 0 {
		if len(errorIssues) > 0 {
			fmt.Fprintln(out, "")
		}
		fmt.Fprintf(out, "Warnings (%d):\n", len(warnIssues))
		printIssues(out, warnIssues)
	}

	if len(errorIssues) > 0 {
		return fmt.Errorf("audit found errors")
	}
	return nil
}

func printIssues(out io.Writer, issues []audit.Issue) {
	for _, issue := range issues {
		location := issue.Character
		if location == "" {
			location = "session"
		}
		if issue.EventID != "" {
			location = fmt.Sprintf("%s (event %s)", location, issue.EventID)
		}
		fmt.Fprintf(out, "  - %s: %s (%s)\n", location, issue.Message, issue.Code)
	}
}
