// Package storetest holds the behaviour every store.Store backend must
// share. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"chronicle/internal/store"
)

// Opener returns a fresh, schema-ready store for one subtest.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"session creates player", testSessionCreatesPlayer},
		{"missing session", testMissingSession},
		{"duplicate character", testDuplicateCharacter},
		{"character ordering", testCharacterOrdering},
		{"dead is terminal", testDeadIsTerminal},
		{"death pins last seen scene", testDeathPinsScene},
		{"event queries", testEventQueries},
		{"witness round trip", testWitnessRoundTrip},
		{"relationships", testRelationships},
		{"retire and sweep", testRetireAndSweep},
		{"update session", testUpdateSession},
		{"collections", testCollections},
		{"rewriting a snapshot keeps history", testSnapshotKeepsHistory},
		{"random transitions keep the dead dead", testRandomTransitions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func newSession(t *testing.T, s store.Store, player string) string {
	t.Helper()
	id, err := s.CreateSession(context.Background(), store.SessionInput{
		PackID:        "baker-street",
		CharacterName: player,
		Title:         "A Study in Scarlet",
		Phase:         "opening",
		Metadata:      map[string]any{"setting": "London, 1881"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if id == "" {
		t.Fatal("expected session id")
	}
	return id
}

func addCharacter(t *testing.T, s store.Store, sessionID, name string, role store.Role) {
	t.Helper()
	if _, err := s.CreateCharacter(context.Background(), sessionID, store.CharacterInput{Name: name, Role: role}); err != nil {
		t.Fatalf("create character %s: %v", name, err)
	}
}

func testSessionCreatesPlayer(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	session, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.CharacterName != "Holmes" || !session.Active {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.Metadata["setting"] != "London, 1881" {
		t.Fatalf("expected metadata round trip, got %v", session.Metadata)
	}

	player, err := s.GetCharacter(ctx, id, "holmes")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if player.Role != store.RolePlayer || player.State != store.StateAlive {
		t.Fatalf("expected alive player, got %s/%s", player.Role, player.State)
	}
}

func testMissingSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetSession(ctx, "999999"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := s.RecordEvent(ctx, "999999", store.EventInput{Description: "nothing"}); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound recording into missing session, got %v", err)
	}
	if _, err := s.CreateCharacter(ctx, "999999", store.CharacterInput{Name: "Ghost"}); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound creating in missing session, got %v", err)
	}
}

func testDuplicateCharacter(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	addCharacter(t, s, id, "Watson", store.RoleSupporting)

	existing, err := s.CreateCharacter(ctx, id, store.CharacterInput{Name: "WATSON"})
	if !errors.Is(err, store.ErrDuplicateCharacter) {
		t.Fatalf("expected ErrDuplicateCharacter, got %v", err)
	}
	if existing == "" {
		t.Fatal("expected the existing character id alongside the duplicate error")
	}

	other := newSession(t, s, "Moriarty")
	if _, err := s.CreateCharacter(ctx, other, store.CharacterInput{Name: "Watson"}); err != nil {
		t.Fatalf("same name in another session should be allowed: %v", err)
	}
}

func testCharacterOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	addCharacter(t, s, id, "Lestrade", store.RoleNPC)
	addCharacter(t, s, id, "Watson", store.RoleSupporting)
	addCharacter(t, s, id, "Hudson", store.RoleSupporting)
	addCharacter(t, s, id, "Gregson", store.RoleNPC)

	chars, err := s.GetCharactersBySession(ctx, id)
	if err != nil {
		t.Fatalf("list characters: %v", err)
	}
	want := []string{"Holmes", "Hudson", "Watson", "Gregson", "Lestrade"}
	if len(chars) != len(want) {
		t.Fatalf("expected %d characters, got %d", len(want), len(chars))
	}
	for i, name := range want {
		if chars[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, chars[i].Name)
		}
	}
}

func testDeadIsTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	addCharacter(t, s, id, "Lestrade", store.RoleNPC)

	if err := s.UpdateCharacterState(ctx, id, "Lestrade", store.StateDead, 4); err != nil {
		t.Fatalf("kill lestrade: %v", err)
	}
	err := s.UpdateCharacterState(ctx, id, "lestrade", store.StateAlive, 5)
	if !errors.Is(err, store.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}

	ch, err := s.GetCharacter(ctx, id, "Lestrade")
	if err != nil {
		t.Fatalf("get lestrade: %v", err)
	}
	if ch.State != store.StateDead {
		t.Fatalf("expected dead, got %s", ch.State)
	}
	if ch.LastSeenScene != 4 {
		t.Fatalf("expected last seen scene 4, got %d", ch.LastSeenScene)
	}

	if err := s.UpdateCharacterState(ctx, id, "Lestrade", store.StateDead, 6); err != nil {
		t.Fatalf("dead to dead should be accepted: %v", err)
	}
	if err := s.UpdateCharacterState(ctx, id, "Nobody", store.StateDead, 6); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for unknown character, got %v", err)
	}
}

func testDeathPinsScene(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	addCharacter(t, s, id, "Lestrade", store.RoleNPC)

	steps := []struct {
		state store.CharacterState
		scene int
		want  int
	}{
		{store.StateAlive, 6, 6},
		{store.StateDead, 4, 4},
		{store.StateDead, 8, 4},
	}
	for _, step := range steps {
		if err := s.UpdateCharacterState(ctx, id, "Lestrade", step.state, step.scene); err != nil {
			t.Fatalf("%s at scene %d: %v", step.state, step.scene, err)
		}
		ch, err := s.GetCharacter(ctx, id, "Lestrade")
		if err != nil {
			t.Fatalf("get lestrade: %v", err)
		}
		if ch.LastSeenScene != step.want {
			t.Fatalf("%s at scene %d: expected last seen %d, got %d", step.state, step.scene, step.want, ch.LastSeenScene)
		}
	}
}

func record(t *testing.T, s store.Store, sessionID string, scene int, imp store.Importance, title string) string {
	t.Helper()
	id, err := s.RecordEvent(context.Background(), sessionID, store.EventInput{
		Type:        store.EventMajorDecision,
		Title:       title,
		Description: title,
		Scene:       scene,
		Importance:  imp,
	})
	if err != nil {
		t.Fatalf("record %s: %v", title, err)
	}
	return id
}

func testEventQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	record(t, s, id, 1, store.ImportanceLow, "arrive")
	record(t, s, id, 2, store.ImportanceCritical, "murder")
	record(t, s, id, 2, store.ImportanceMedium, "question")
	record(t, s, id, 3, store.ImportanceHigh, "clue")

	recent, err := s.GetRecentEvents(ctx, id, 3)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	wantRecent := []string{"clue", "question", "murder"}
	if len(recent) != len(wantRecent) {
		t.Fatalf("expected %d recent events, got %d", len(wantRecent), len(recent))
	}
	for i, title := range wantRecent {
		if recent[i].Title != title {
			t.Fatalf("recent[%d]: expected %s, got %s", i, title, recent[i].Title)
		}
	}

	critical, err := s.GetCriticalEvents(ctx, id)
	if err != nil {
		t.Fatalf("critical events: %v", err)
	}
	if len(critical) != 2 || critical[0].Title != "clue" || critical[1].Title != "murder" {
		t.Fatalf("unexpected critical events: %+v", critical)
	}
	for _, e := range critical {
		if e.Importance < store.ImportanceHigh {
			t.Fatalf("critical query returned importance %d", e.Importance)
		}
	}

	all, err := s.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	wantAll := []string{"arrive", "murder", "question", "clue"}
	for i, title := range wantAll {
		if all[i].Title != title {
			t.Fatalf("events[%d]: expected %s, got %s", i, title, all[i].Title)
		}
	}
}

func testWitnessRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	_, err := s.RecordEvent(ctx, id, store.EventInput{
		Type:            store.EventCharacterInteraction,
		Description:     "Watson and Hudson argue",
		Scene:           1,
		Importance:      store.ImportanceMedium,
		Witnesses:       []string{"Watson", "Hudson", "watson"},
		EmotionalImpact: map[string]any{"tension": 0.4},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := s.GetRecentEvents(ctx, id, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	got := map[string]bool{}
	for _, w := range events[0].Witnesses {
		got[w] = true
	}
	if len(got) != 2 || !got["Watson"] || !got["Hudson"] {
		t.Fatalf("expected witnesses {Watson, Hudson}, got %v", events[0].Witnesses)
	}
	if events[0].EmotionalImpact["tension"] != 0.4 {
		t.Fatalf("expected emotional impact round trip, got %v", events[0].EmotionalImpact)
	}
}

func testRelationships(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	if !s.Capabilities().Relationships {
		rel, err := s.UpdateRelationship(ctx, id, "Holmes", "Watson", store.RelationshipDelta{Trust: 5}, 1)
		if err != nil || rel != nil {
			t.Fatalf("expected no-op relationship update, got %v, %v", rel, err)
		}
		rels, err := s.GetRelationships(ctx, id)
		if err != nil || len(rels) != 0 {
			t.Fatalf("expected empty relationships, got %v, %v", rels, err)
		}
		return
	}

	if _, err := s.UpdateRelationship(ctx, id, "Watson", "Holmes", store.RelationshipDelta{Trust: 5}, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}
	rel, err := s.UpdateRelationship(ctx, id, "holmes", "watson", store.RelationshipDelta{Trust: 3, Fear: -10}, 2)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if rel.Trust != store.BaselineTrust+8 {
		t.Fatalf("expected trust %d, got %d", store.BaselineTrust+8, rel.Trust)
	}
	if rel.InteractionCount != 2 || rel.LastInteractionScene != 2 {
		t.Fatalf("expected 2 interactions ending at scene 2, got %d at %d", rel.InteractionCount, rel.LastInteractionScene)
	}
	if rel.Fear != 0 {
		t.Fatalf("expected fear clamped at 0, got %d", rel.Fear)
	}

	if _, err := s.UpdateRelationship(ctx, id, "Holmes", "Watson", store.RelationshipDelta{Affection: 500}, 3); err != nil {
		t.Fatalf("third update: %v", err)
	}

	rels, err := s.GetRelationships(ctx, id)
	if err != nil {
		t.Fatalf("get relationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected one edge per pair, got %d", len(rels))
	}
	if rels[0].CharacterA != "Holmes" || rels[0].CharacterB != "Watson" {
		t.Fatalf("expected normalized pair Holmes/Watson, got %s/%s", rels[0].CharacterA, rels[0].CharacterB)
	}
	if rels[0].Affection != 100 || rels[0].InteractionCount != 3 {
		t.Fatalf("expected clamped affection 100 and 3 interactions, got %d and %d", rels[0].Affection, rels[0].InteractionCount)
	}
}

func testRetireAndSweep(t *testing.T, s store.Store) {
	ctx := context.Background()
	keep := newSession(t, s, "Holmes")
	retire := newSession(t, s, "Moriarty")
	record(t, s, retire, 1, store.ImportanceHigh, "falls")

	if err := s.RetireSession(ctx, retire); err != nil {
		t.Fatalf("retire: %v", err)
	}

	active, err := s.ListSessions(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != keep {
		t.Fatalf("expected only %s active, got %+v", keep, active)
	}
	all, err := s.ListSessions(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}

	n, err := s.SweepRetired(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sweep recent: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing swept before retention, got %d", n)
	}

	n, err = s.SweepRetired(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, err := s.GetSession(ctx, retire); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected swept session gone, got %v", err)
	}
	chars, err := s.GetCharactersBySession(ctx, retire)
	if err != nil {
		t.Fatalf("list swept characters: %v", err)
	}
	if len(chars) != 0 {
		t.Fatalf("expected characters removed with session, got %d", len(chars))
	}
	if _, err := s.GetSession(ctx, keep); err != nil {
		t.Fatalf("active session should survive sweep: %v", err)
	}
}

func testUpdateSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	err := s.UpdateSession(ctx, id, store.SessionUpdate{
		CurrentScene:  3,
		Phase:         "investigation",
		PersonaScore:  72.5,
		DecisionCount: 3,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	session, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.CurrentScene != 3 || session.Phase != "investigation" || session.DecisionCount != 3 {
		t.Fatalf("unexpected session after update: %+v", session)
	}
	if session.Metadata["setting"] != "London, 1881" {
		t.Fatalf("nil metadata update should keep metadata, got %v", session.Metadata)
	}
	if err := s.UpdateSession(ctx, "424242", store.SessionUpdate{}); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func testCollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")

	records, err := s.ReadCollection(ctx, store.CollectionSessions)
	if err != nil {
		t.Fatalf("read sessions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one session record, got %d", len(records))
	}
	if records[0]["id"] != id {
		t.Fatalf("expected record id %s, got %v", id, records[0]["id"])
	}

	records[0]["title"] = "The Sign of Four"
	if err := s.WriteCollection(ctx, store.CollectionSessions, records); err != nil {
		t.Fatalf("write sessions: %v", err)
	}
	session, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Title != "The Sign of Four" {
		t.Fatalf("expected upserted title, got %q", session.Title)
	}

	chars, err := s.ReadCollection(ctx, store.CollectionCharacters)
	if err != nil {
		t.Fatalf("read characters: %v", err)
	}
	if len(chars) != 1 || chars[0]["name"] != "Holmes" {
		t.Fatalf("unexpected character records: %v", chars)
	}

	rels, err := s.ReadCollection(ctx, store.CollectionRelationships)
	if err != nil {
		t.Fatalf("read relationships: %v", err)
	}
	if !s.Capabilities().Relationships && len(rels) != 0 {
		t.Fatalf("expected empty relationship collection, got %d", len(rels))
	}
}

func testSnapshotKeepsHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	addCharacter(t, s, id, "Lestrade", store.RoleNPC)
	eventID := record(t, s, id, 2, store.ImportanceHigh, "Lestrade arrests the wrong man")

	chars, err := s.ReadCollection(ctx, store.CollectionCharacters)
	if err != nil {
		t.Fatalf("read characters: %v", err)
	}
	events, err := s.ReadCollection(ctx, store.CollectionEvents)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event record, got %d", len(events))
	}

	if err := s.UpdateCharacterState(ctx, id, "Lestrade", store.StateDead, 3); err != nil {
		t.Fatalf("kill lestrade: %v", err)
	}

	events[0]["description"] = "Lestrade goes home"
	events[0]["importance"] = 1
	if err := s.WriteCollection(ctx, store.CollectionCharacters, chars); err != nil {
		t.Fatalf("write characters: %v", err)
	}
	if err := s.WriteCollection(ctx, store.CollectionEvents, events); err != nil {
		t.Fatalf("write events: %v", err)
	}

	ch, err := s.GetCharacter(ctx, id, "Lestrade")
	if err != nil {
		t.Fatalf("get lestrade: %v", err)
	}
	if ch.State != store.StateDead {
		t.Fatalf("stale snapshot revived lestrade: state %s", ch.State)
	}

	stored, err := s.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != eventID {
		t.Fatalf("expected the original event, got %+v", stored)
	}
	if stored[0].Description != "Lestrade arrests the wrong man" || stored[0].Importance != store.ImportanceHigh {
		t.Fatalf("event was rewritten: %+v", stored[0])
	}
}

func testRandomTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := newSession(t, s, "Holmes")
	names := []string{"Watson", "Lestrade", "Adler", "Mycroft"}
	for _, n := range names {
		addCharacter(t, s, id, n, store.RoleNPC)
	}
	states := []store.CharacterState{store.StateAlive, store.StateInjured, store.StateMissing, store.StateDead}

	rng := rand.New(rand.NewPCG(7, 11))
	dead := map[string]bool{}
	for scene := 1; scene <= 60; scene++ {
		name := names[rng.IntN(len(names))]
		state := states[rng.IntN(len(states))]
		err := s.UpdateCharacterState(ctx, id, name, state, scene)
		switch {
		case dead[name] && state != store.StateDead:
			if !errors.Is(err, store.ErrInvariantViolation) {
				t.Fatalf("scene %d: expected revival of %s rejected, got %v", scene, name, err)
			}
		case err != nil:
			t.Fatalf("scene %d: %v", scene, err)
		}
		if state == store.StateDead {
			dead[name] = true
		}

		for n := range dead {
			ch, err := s.GetCharacter(ctx, id, n)
			if err != nil {
				t.Fatalf("get %s: %v", n, err)
			}
			if ch.State != store.StateDead {
				t.Fatalf("scene %d: %s came back as %s", scene, n, ch.State)
			}
		}
	}
}
