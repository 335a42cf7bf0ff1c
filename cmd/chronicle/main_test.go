package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chronicle/internal/store"
)

const bakerStreet = `---
id: baker-street
character: Sherlock Holmes
title: A Study in Scarlet
cast:
  - name: Watson
  - name: Lestrade
---

Consulting detective of Baker Street.
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("chronicle %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestStoryCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	mustRun(t, "init", "--name", "baker")
	if err := os.WriteFile(filepath.Join(dir, "packs", "baker.md"), []byte(bakerStreet), 0o600); err != nil {
		t.Fatalf("writing pack: %v", err)
	}
	if _, err := run(t, "init", "--name", "again"); err == nil {
		t.Fatal("expected init to refuse an existing config")
	}

	out := mustRun(t, "packs")
	if !strings.Contains(out, "baker-street: Sherlock Holmes (2 cast)") {
		t.Fatalf("unexpected packs output: %s", out)
	}

	out = mustRun(t, "new", "--pack", "baker-street")
	if !strings.Contains(out, "Session 1 started.") {
		t.Fatalf("unexpected new output: %s", out)
	}

	out = mustRun(t, "record", "--session", "1", "--scene", "4", "--victim", "Lestrade",
		"The assassin kills Lestrade in the alley while Watson watches")
	if !strings.Contains(out, "Deaths:    Lestrade") {
		t.Fatalf("unexpected record output: %s", out)
	}

	out = mustRun(t, "context", "--session", "1")
	if !strings.Contains(out, "Lestrade: DEAD - CANNOT INTERACT OR SPEAK") {
		t.Fatalf("digest should mark Lestrade dead:\n%s", out)
	}

	out = mustRun(t, "audit", "1")
	if !strings.Contains(out, "No issues found in 1 events.") {
		t.Fatalf("unexpected audit output: %s", out)
	}

	mustRun(t, "sql", "UPDATE characters SET state = 'alive' WHERE name_normalized = ?", "--arg", "lestrade")
	if out, err := run(t, "audit", "1"); err == nil || !strings.Contains(out, "resurrected_character") {
		t.Fatalf("expected audit to flag the revived row, got %v\n%s", err, out)
	}

	out = mustRun(t, "stats", "--session", "1")
	if !strings.Contains(out, "Scene:         4") {
		t.Fatalf("unexpected stats output: %s", out)
	}

	dump := filepath.Join(dir, "dump.json")
	mustRun(t, "dump", "--out", dump)
	mustRun(t, "retire", "1")
	if _, err := run(t, "stats", "--session", "1"); err == nil {
		t.Fatal("expected retired session to be unavailable")
	}
	out = mustRun(t, "restore", dump)
	if !strings.Contains(out, "story_events: 1 records") {
		t.Fatalf("unexpected restore output: %s", out)
	}
	mustRun(t, "stats", "--session", "1")
}

func TestParseParticipants(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []string
		wantErr bool
	}{
		{name: "name only", values: []string{"Watson"}, want: []string{""}},
		{name: "with state", values: []string{"Watson=Injured"}, want: []string{"injured"}},
		{name: "unknown state", values: []string{"Watson=asleep"}, wantErr: true},
		{name: "empty name", values: []string{"=dead"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParticipants(tt.values)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) || string(got[0].State) != tt.want[0] || got[0].Name != "Watson" {
				t.Fatalf("unexpected participants: %+v", got)
			}
		})
	}
}

func TestCompatibleBackends(t *testing.T) {
	if !compatibleBackends("sqlite", "postgres") {
		t.Fatal("relational backends share ids")
	}
	if compatibleBackends("bolt", "sqlite") {
		t.Fatal("bolt ids are not valid in sqlite")
	}
	if !compatibleBackends("bolt", "bolt") {
		t.Fatal("same backend is always compatible")
	}
}

func TestOpenStoreDriver(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	mustRun(t, "init", "--name", "bolted", "--driver", "bolt")

	e, err := loadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	defer e.close()
	st, err := e.store(t.Context())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if st.Capabilities().Backend != "bolt" {
		t.Fatalf("expected bolt backend, got %s", st.Capabilities().Backend)
	}
	if _, ok := st.(store.Executor); ok {
		t.Fatal("bolt must not run raw statements")
	}
}
