package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/memory"
	"chronicle/internal/store"
)

func newCmd() *cobra.Command {
	var packID string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a story session from a character pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(packID) == "" {
				return fmt.Errorf("--pack is required")
			}
			return runNew(cmd, packID)
		},
	}
	cmd.Flags().StringVar(&packID, "pack", "", "Character pack id")
	return cmd
}

func runNew(cmd *cobra.Command, packID string) error {
	ctx := context.Background()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	pack, err := config.FindPack(e.cfg.Packs, packID)
	if err != nil {
		return err
	}
	res, err := e.system().InitializeStory(ctx, pack)
	if err != nil {
		return err
	}
	if !res.MemoryInitialized {
		return fmt.Errorf("story memory could not be initialized")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s started.\n", res.SessionID)
	fmt.Fprintf(out, "  Characters: %s\n", strings.Join(res.Characters, ", "))
	return nil
}

type recordFlags struct {
	session    string
	title      string
	action     string
	response   string
	scene      int
	importance int
	characters []string
	victims    []string
}

func recordCmd() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "record <description>",
		Short: "Record a story event in a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&f.session, "session", "", "Session id")
	cmd.Flags().StringVar(&f.title, "title", "", "Event title")
	cmd.Flags().StringVar(&f.action, "action", "", "Player action that led to the event")
	cmd.Flags().StringVar(&f.response, "response", "", "Narrative response")
	cmd.Flags().IntVar(&f.scene, "scene", 0, "Scene number (defaults to the current scene)")
	cmd.Flags().IntVar(&f.importance, "importance", 0, "Importance 1-4 (classified when omitted)")
	cmd.Flags().StringArrayVar(&f.characters, "character", nil, "Participant as name or name=state (repeatable)")
	cmd.Flags().StringArrayVar(&f.victims, "victim", nil, "Character who died (repeatable)")
	return cmd
}

func runRecord(cmd *cobra.Command, f recordFlags, description string) error {
	ctx := context.Background()
	participants, err := parseParticipants(f.characters)
	if err != nil {
		return err
	}
	importance := store.Importance(f.importance)
	if importance != 0 && !importance.Valid() {
		return fmt.Errorf("--importance must be between 1 and 4")
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	sys, err := e.session(ctx, f.session)
	if err != nil {
		return err
	}
	rec, err := sys.RecordMemory(ctx, memory.Proposal{
		Title:        f.title,
		Description:  description,
		PlayerAction: f.action,
		Response:     f.response,
		Scene:        f.scene,
		Importance:   importance,
		Characters:   participants,
		Victims:      f.victims,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recorded %s event %s (%s).\n", rec.Type, rec.EventID, rec.Importance)
	if len(rec.Witnesses) > 0 {
		fmt.Fprintf(out, "  Witnesses: %s\n", strings.Join(rec.Witnesses, ", "))
	}
	if len(rec.Deaths) > 0 {
		fmt.Fprintf(out, "  Deaths:    %s\n", strings.Join(rec.Deaths, ", "))
	}
	if len(rec.Rejected) > 0 {
		fmt.Fprintf(out, "  Rejected:  %s\n", strings.Join(rec.Rejected, ", "))
	}
	if rec.Degraded {
		return fmt.Errorf("event recorded with errors; see log")
	}
	return nil
}

// parseParticipants reads name or name=state pairs.
func parseParticipants(values []string) ([]memory.Participant, error) {
	var out []memory.Participant
	for _, v := range values {
		name, state, _ := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid character %q: empty name", v)
		}
		p := memory.Participant{Name: name}
		if s := store.CharacterState(strings.ToLower(strings.TrimSpace(state))); s != "" {
			if !s.Valid() {
				return nil, fmt.Errorf("invalid character %q: unknown state %q", v, state)
			}
			p.State = s
		}
		out = append(out, p)
	}
	return out, nil
}

func contextCmd() *cobra.Command {
	var sessionID string
	var budget int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the continuity digest for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd, sessionID, budget, asJSON)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().IntVar(&budget, "budget", 0, "Digest budget in characters (defaults to config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full context as JSON")
	return cmd
}

func runContext(cmd *cobra.Command, sessionID string, budget int, asJSON bool) error {
	ctx := context.Background()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	sys, err := e.session(ctx, sessionID)
	if err != nil {
		return err
	}
	sc, err := sys.GetStoryContext(ctx, digest.Options{Budget: budget})
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd, sc)
	}
	fmt.Fprintln(cmd.OutOrStdout(), sc.FormattedContext)
	return nil
}

func statsCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()

			sys, err := e.session(ctx, sessionID)
			if err != nil {
				return err
			}
			stats, err := sys.GetMemoryStats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (%s)\n", stats.SessionID, stats.Backend)
			fmt.Fprintf(out, "  Scene:         %d\n", stats.Scene)
			fmt.Fprintf(out, "  Decisions:     %d\n", stats.Decisions)
			fmt.Fprintf(out, "  Characters:    %d (%d alive, %d dead)\n", stats.Characters, stats.Alive, stats.Dead)
			fmt.Fprintf(out, "  Events:        %d (%d critical)\n", stats.Events, stats.CriticalEvents)
			fmt.Fprintf(out, "  Relationships: %d\n", stats.Relationships)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	return cmd
}

func retireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire <session>",
		Short: "Retire a story session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ok, err := e.system().DeleteStoryMemory(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s retired.\n", args[0])
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete retired sessions past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.system().Sweep(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d retired sessions.\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of retired sessions (defaults to maintenance.retention_days)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	return nil
}
