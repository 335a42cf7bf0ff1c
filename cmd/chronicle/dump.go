package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chronicle/internal/store"
)

// snapshot is the dump file layout: one record list per collection.
type snapshot struct {
	Backend     string                              `json:"backend"`
	Collections map[store.Collection][]store.Record `json:"collections"`
}

func dumpCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export every collection as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}

func runDump(cmd *cobra.Command, outPath string) error {
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
	snap := snapshot{
		Backend:     st.Capabilities().Backend,
		Collections: make(map[store.Collection][]store.Record),
	}
	for _, c := range store.Collections() {
		records, err := st.ReadCollection(ctx, c)
		if err != nil {
			return fmt.Errorf("reading %s: %w", c, err)
		}
		snap.Collections[c] = records
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding dump: %w", err)
	}
	return nil
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Upsert a JSON dump into the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, args[0])
		},
	}
}

func runRestore(cmd *cobra.Command, path string) error {
	ctx := context.Background()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.store(ctx)
	if err != nil {
		return err
	}
	if backend := st.Capabilities().Backend; snap.Backend != "" && !compatibleBackends(snap.Backend, backend) {
		return fmt.Errorf("dump from %s cannot be restored into %s", snap.Backend, backend)
	}

	out := cmd.OutOrStdout()
	for _, c := range store.Collections() {
		records := snap.Collections[c]
		if len(records) == 0 {
			continue
		}
		if err := st.WriteCollection(ctx, c, records); err != nil {
			return fmt.Errorf("writing %s: %w", c, err)
		}
		fmt.Fprintf(out, "  %s: %d records\n", c, len(records))
	}
	fmt.Fprintln(out, "Restore complete.")
	return nil
}

// compatibleBackends reports whether record ids from one backend are
// valid in another. The relational backends share integer ids; bolt keys
// are time-prefixed strings.
func compatibleBackends(from, to string) bool {
	relational := func(b string) bool { return b == "sqlite" || b == "postgres" }
	return from == to || (relational(from) && relational(to))
}
