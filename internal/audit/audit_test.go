package audit

import (
	"context"
	"testing"

	"chronicle/internal/enforce"
	"chronicle/internal/store"
	"chronicle/internal/store/sqlite"
)

type fixture struct {
	db      *sqlite.Client
	session *store.Session
	en      *enforce.Enforcer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.New(ctx, "sqlite://:memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(ctx) })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	id, err := db.CreateSession(ctx, store.SessionInput{CharacterName: "Holmes"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	session, err := db.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return &fixture{db: db, session: session, en: enforce.New(db, nil)}
}

// play records an event and applies it the way the memory layer does.
func (f *fixture) play(t *testing.T, in store.EventInput, c enforce.Change) {
	t.Helper()
	ctx := context.Background()
	in.Metadata = c.Attach(in.Metadata)
	id, err := f.db.RecordEvent(ctx, f.session.ID, in)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := f.db.ListEvents(ctx, f.session.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, e := range events {
		if e.ID == id {
			f.en.Apply(ctx, f.session, e)
			return
		}
	}
	t.Fatalf("event %s not found", id)
}

func (f *fixture) exec(t *testing.T, stmt string, args ...any) {
	t.Helper()
	if _, err := f.db.Execute(context.Background(), stmt, args...); err != nil {
		t.Fatalf("execute %q: %v", stmt, err)
	}
}

func (f *fixture) story(t *testing.T) {
	t.Helper()
	f.play(t, store.EventInput{
		Type:        store.EventCharacterInteraction,
		Description: "Watson and Lestrade share a cab",
		Scene:       1,
		Witnesses:   []string{"Watson", "Lestrade"},
	}, enforce.Change{Deltas: map[string]store.RelationshipDelta{"Watson": {Trust: 10}}})
	f.play(t, store.EventInput{
		Type:        store.EventCharacterDeath,
		Description: "The assassin kills Lestrade in the alley",
		Scene:       2,
		Importance:  store.ImportanceCritical,
		Witnesses:   []string{"Lestrade", "Watson"},
	}, enforce.Change{Victims: []string{"Lestrade"}})
}

func codes(r *Report) map[string]int {
	out := make(map[string]int)
	for _, issue := range r.Issues {
		out[issue.Code]++
	}
	return out
}

func TestRunClean(t *testing.T) {
	f := newFixture(t)
	f.story(t)

	report, err := Run(context.Background(), f.db, f.session.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Events != 2 {
		t.Fatalf("expected 2 events, got %d", report.Events)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", report.Issues)
	}
}

func TestRunFindsDrift(t *testing.T) {
	tests := []struct {
		name     string
		stmt     string
		code     string
		severity Severity
	}{
		{
			name:     "resurrected",
			stmt:     `UPDATE characters SET state = 'alive' WHERE name_normalized = 'lestrade'`,
			code:     codeResurrected,
			severity: SeverityError,
		},
		{
			name:     "unexplained death",
			stmt:     `UPDATE characters SET state = 'dead' WHERE name_normalized = 'watson'`,
			code:     codeUnexplainedDeath,
			severity: SeverityWarn,
		},
		{
			name:     "state drift",
			stmt:     `UPDATE characters SET state = 'missing' WHERE name_normalized = 'watson'`,
			code:     codeStateDrift,
			severity: SeverityWarn,
		},
		{
			name:     "missing character",
			stmt:     `DELETE FROM characters WHERE name_normalized = 'watson'`,
			code:     codeMissingCharacter,
			severity: SeverityError,
		},
		{
			name:     "relationship drift",
			stmt:     `UPDATE character_relationships SET trust = 99`,
			code:     codeRelationshipDrift,
			severity: SeverityWarn,
		},
		{
			name:     "malformed change",
			stmt:     `UPDATE story_events SET metadata = '{"participant_states":"broken"}' WHERE scene_number = 1`,
			code:     codeMalformedChange,
			severity: SeverityWarn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.story(t)
			f.exec(t, tt.stmt)

			report, err := Run(context.Background(), f.db, f.session.ID)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			var found bool
			for _, issue := range report.Issues {
				if issue.Code == tt.code {
					found = true
					if issue.Severity != tt.severity {
						t.Fatalf("expected %s severity, got %s", tt.severity, issue.Severity)
					}
				}
			}
			if !found {
				t.Fatalf("expected %s issue, got %+v", tt.code, report.Issues)
			}
		})
	}
}

func TestRunReportsRejectedRevival(t *testing.T) {
	f := newFixture(t)
	f.story(t)
	f.play(t, store.EventInput{
		Type:        store.EventCharacterInteraction,
		Description: "Lestrade is seen at the Yard",
		Scene:       3,
	}, enforce.Change{States: map[string]store.CharacterState{"Lestrade": store.StateAlive}})

	report, err := Run(context.Background(), f.db, f.session.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := codes(report)
	if got[codeRejectedChange] != 1 {
		t.Fatalf("expected one rejected change, got %+v", report.Issues)
	}
	if got[codeResurrected] != 0 {
		t.Fatalf("stored state should still agree with replay, got %+v", report.Issues)
	}
	if report.Errors() != 0 {
		t.Fatalf("expected only warnings, got %d errors", report.Errors())
	}
}

type stubSource struct {
	session *store.Session
	chars   []store.Character
	events  []store.Event
}

func (s stubSource) Capabilities() store.Capabilities {
	return store.Capabilities{Backend: "stub"}
}

func (s stubSource) GetSession(context.Context, string) (*store.Session, error) {
	if s.session == nil {
		return nil, store.ErrRecordNotFound
	}
	return s.session, nil
}

func (s stubSource) GetCharactersBySession(context.Context, string) ([]store.Character, error) {
	return s.chars, nil
}

func (s stubSource) ListEvents(context.Context, string) ([]store.Event, error) {
	return s.events, nil
}

func (s stubSource) GetRelationships(context.Context, string) ([]store.Relationship, error) {
	panic("relationships read without capability")
}

func TestRunDuplicateNames(t *testing.T) {
	src := stubSource{
		session: &store.Session{ID: "s1", CharacterName: "Holmes"},
		chars: []store.Character{
			{Name: "Holmes", Role: store.RolePlayer, State: store.StateAlive},
			{Name: "Irene Adler", State: store.StateAlive},
			{Name: " IRENE ADLER", State: store.StateAlive},
		},
	}
	report, err := Run(context.Background(), src, "s1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := codes(report); got[codeDuplicateName] != 1 || report.Errors() != 1 {
		t.Fatalf("expected one duplicate name error, got %+v", report.Issues)
	}
}

func TestRunMissingSession(t *testing.T) {
	if _, err := Run(context.Background(), stubSource{}, "nope"); err == nil {
		t.Fatal("expected error for missing session")
	}
	if _, err := Run(context.Background(), nil, "s1"); err == nil {
		t.Fatal("expected error for nil store")
	}
}
