package bolt

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.etcd.io/bbolt"

	"chronicle/internal/store"
	"chronicle/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chronicle.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTemp(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSessionIDShape(t *testing.T) {
	s := openTemp(t)
	id, err := s.CreateSession(context.Background(), store.SessionInput{CharacterName: "Holmes"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	millis, suffix, ok := strings.Cut(id, "-")
	if !ok || len(millis) < 13 || len(suffix) != 8 {
		t.Fatalf("expected <unix-millis>-<suffix>, got %q", id)
	}
}

func TestCollectionKeys(t *testing.T) {
	s := openTemp(t)
	if _, err := s.CreateSession(context.Background(), store.SessionInput{CharacterName: "Holmes"}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for _, key := range []string{"chronicle:story_sessions", "chronicle:characters"} {
			if b.Get([]byte(key)) == nil {
				t.Errorf("expected key %s", key)
			}
		}
		if b.Get([]byte("chronicle:character_relationships")) != nil {
			t.Error("relationships must never be written")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func putRaw(t *testing.T, s *Store, key, payload string) {
	t.Helper()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(payload))
	})
	if err != nil {
		t.Fatalf("put raw: %v", err)
	}
}

func TestMalformedEmbeddedFieldDefaults(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.CreateSession(ctx, store.SessionInput{CharacterName: "Holmes"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	putRaw(t, s, "chronicle:story_events", `[
		{"id":"e1","session_id":"`+id+`","event_type":"discovery","scene_number":2,"importance":3,"witnesses":"Watson","metadata":{"k":"v"}},
		"garbage",
		{"id":"e2","session_id":"`+id+`","event_type":"conflict","scene_number":1,"importance":2,"witnesses":["Hudson"],"metadata":7}
	]`)

	events, err := s.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected malformed document skipped, got %d events", len(events))
	}
	if events[0].ID != "e2" || len(events[0].Witnesses) != 1 || len(events[0].Metadata) != 0 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].ID != "e1" || len(events[1].Witnesses) != 0 || events[1].Metadata["k"] != "v" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestMalformedListReadsEmptyButBlocksWrites(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.CreateSession(ctx, store.SessionInput{CharacterName: "Holmes"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	putRaw(t, s, "chronicle:story_events", `{broken`)

	events, err := s.GetRecentEvents(ctx, id, 5)
	if err != nil {
		t.Fatalf("read should degrade, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}

	if _, err := s.RecordEvent(ctx, id, store.EventInput{Description: "clue"}); err == nil {
		t.Fatal("expected write over a malformed list to fail")
	}
}

func TestWriteCollectionMergesByID(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	err := s.WriteCollection(ctx, store.CollectionSessions, []store.Record{
		{"id": "s1", "character_name": "Holmes", "is_active": true, "title": "one"},
		{"id": "s2", "character_name": "Watson", "is_active": true},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	err = s.WriteCollection(ctx, store.CollectionSessions, []store.Record{
		{"id": "s1", "title": "two", "unknown_field": "dropped"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	records, err := s.ReadCollection(ctx, store.CollectionSessions)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["title"] != "two" || records[0]["character_name"] != "Holmes" {
		t.Fatalf("expected merged record, got %v", records[0])
	}
	if _, ok := records[0]["unknown_field"]; ok {
		t.Fatal("unknown fields must not be persisted")
	}

	if err := s.WriteCollection(ctx, store.CollectionRelationships, []store.Record{{"id": "r1"}}); err != nil {
		t.Fatalf("relationship write should be a no-op: %v", err)
	}
}
