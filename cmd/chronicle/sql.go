package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chronicle/internal/store"
)

func sqlCmd() *cobra.Command {
	var rawArgs []string
	cmd := &cobra.Command{
		Use:   "sql <statement>",
		Short: "Execute a raw SQL statement (sqlite and postgres only)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := strings.Join(args, " ")
			return runSQL(cmd, statement, parseArgs(rawArgs))
		},
	}
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Positional statement parameter (repeatable)")
	return cmd
}

func runSQL(cmd *cobra.Command, statement string, params []any) error {
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
	exec, ok := st.(store.Executor)
	if !ok || !st.Capabilities().Statements {
		return fmt.Errorf("%s storage does not run raw statements", st.Capabilities().Backend)
	}

	rows, err := exec.Execute(ctx, statement, params...)
	if err != nil {
		return err
	}
	return printJSON(cmd, rows)
}

func parseArgs(values []string) []any {
	params := make([]any, 0, len(values))
	for _, v := range values {
		params = append(params, strings.TrimSpace(v))
	}
	return params
}
