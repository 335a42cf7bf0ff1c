package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/store"
)

func sessionsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List story sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			sessions, err := st.ListSessions(ctx, !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}
			for _, s := range sessions {
				status := "active"
				if !s.Active {
					status = "retired"
				}
				fmt.Fprintf(out, "%s %s as %s [scene %d, %s]\n", s.ID, s.PackID, s.CharacterName, s.CurrentScene, status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include retired sessions")
	return cmd
}

func charactersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "characters <session>",
		Short: "List the characters of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			chars, err := st.GetCharactersBySession(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(chars) == 0 {
				fmt.Fprintln(out, "No characters found.")
				return nil
			}
			for _, c := range chars {
				fmt.Fprintf(out, "%s (%s) %s, last seen scene %d\n", c.Name, c.Role, c.State, c.LastSeenScene)
			}
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var critical bool
	var limit int
	cmd := &cobra.Command{
		Use:   "events <session>",
		Short: "List the events of a session, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, args[0], critical, limit)
		},
	}
	cmd.Flags().BoolVar(&critical, "critical", false, "Only critical events")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum events to list")
	return cmd
}

func runEvents(cmd *cobra.Command, sessionID string, critical bool, limit int) error {
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
	var events []store.Event
	if critical {
		events, err = st.GetCriticalEvents(ctx, sessionID)
	} else {
		events, err = st.GetRecentEvents(ctx, sessionID, limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(out, "Scene %d [%s] %s: %s\n", ev.Scene, ev.Importance, ev.Type, ev.Description)
		if len(ev.Witnesses) > 0 {
			fmt.Fprintf(out, "  witnesses: %s\n", strings.Join(ev.Witnesses, ", "))
		}
	}
	return nil
}

func packsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packs",
		Short: "List the character packs in the packs directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			packs, errs, err := config.LoadPacks(cfg.Packs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(packs) == 0 {
				fmt.Fprintln(out, "No packs found.")
			}
			for _, p := range packs {
				fmt.Fprintf(out, "%s: %s (%d cast) [%s]\n", p.ID, p.Character, len(p.Cast), p.SourceFile)
			}
			if len(errs) > 0 {
				fmt.Fprintf(out, "\nErrors (%d):\n", len(errs))
				for _, item := range errs {
					fmt.Fprintf(out, "  - %v\n", item)
				}
				return fmt.Errorf("some packs could not be loaded")
			}
			return nil
		},
	}
}
