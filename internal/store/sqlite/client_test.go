package sqlite

import (
	"context"
	"testing"

	"chronicle/internal/store"
	"chronicle/internal/store/storetest"
)

func openMemory(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, "sqlite://:memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })
	if err := c.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return c
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openMemory(t)
	})
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	c := openMemory(t)
	if err := c.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second ensure schema: %v", err)
	}
}

func TestMalformedEmbeddedDataDefaults(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t)

	id, err := c.CreateSession(ctx, store.SessionInput{CharacterName: "Holmes"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := c.RecordEvent(ctx, id, store.EventInput{Description: "clue", Scene: 1, Importance: store.ImportanceHigh, Witnesses: []string{"Watson"}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := c.Execute(ctx, `UPDATE story_events SET witnesses = '{not json', metadata = '[1,2'`); err != nil {
		t.Fatalf("corrupt rows: %v", err)
	}
	if _, err := c.Execute(ctx, `UPDATE story_sessions SET metadata = 'oops'`); err != nil {
		t.Fatalf("corrupt session: %v", err)
	}

	events, err := c.GetCriticalEvents(ctx, id)
	if err != nil {
		t.Fatalf("malformed fields must not fail the read: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(events[0].Witnesses) != 0 || len(events[0].Metadata) != 0 {
		t.Fatalf("expected defaults for malformed fields, got %v / %v", events[0].Witnesses, events[0].Metadata)
	}

	session, err := c.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Metadata == nil || len(session.Metadata) != 0 {
		t.Fatalf("expected empty metadata, got %v", session.Metadata)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t)
	if _, err := c.CreateSession(ctx, store.SessionInput{CharacterName: "Holmes"}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	rows, err := c.Execute(ctx, `SELECT name, role FROM characters WHERE name_normalized = ?`, "holmes")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 || rows[0]["role"] != "player" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
