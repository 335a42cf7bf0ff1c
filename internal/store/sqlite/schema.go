package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS story_sessions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		pack_id        TEXT NOT NULL DEFAULT '',
		character_name TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		current_scene  INTEGER NOT NULL DEFAULT 0,
		phase          TEXT NOT NULL DEFAULT '',
		persona_score  REAL NOT NULL DEFAULT 0,
		decision_count INTEGER NOT NULL DEFAULT 0,
		is_active      INTEGER NOT NULL DEFAULT 1,
		metadata       TEXT DEFAULT '{}',
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id        INTEGER NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
		name              TEXT NOT NULL,
		name_normalized   TEXT NOT NULL,
		role              TEXT NOT NULL DEFAULT 'npc',
		state             TEXT NOT NULL DEFAULT 'alive',
		emotion           TEXT NOT NULL DEFAULT 'neutral',
		emotion_intensity REAL NOT NULL DEFAULT 0.5,
		confidence        REAL NOT NULL DEFAULT 0.5,
		stress            REAL NOT NULL DEFAULT 0,
		last_seen_scene   INTEGER NOT NULL DEFAULT 0,
		traits            TEXT DEFAULT '{}',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		CONSTRAINT uq_character_name UNIQUE (session_id, name_normalized)
	);

	CREATE TABLE IF NOT EXISTS character_relationships (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id             INTEGER NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
		character_a            TEXT NOT NULL,
		character_b            TEXT NOT NULL,
		pair_key               TEXT NOT NULL,
		affection              INTEGER NOT NULL DEFAULT 50,
		trust                  INTEGER NOT NULL DEFAULT 50,
		respect                INTEGER NOT NULL DEFAULT 50,
		fear                   INTEGER NOT NULL DEFAULT 0,
		romance                INTEGER NOT NULL DEFAULT 0,
		rivalry                INTEGER NOT NULL DEFAULT 0,
		interaction_count      INTEGER NOT NULL DEFAULT 0,
		last_interaction_scene INTEGER NOT NULL DEFAULT 0,
		relationship_type      TEXT NOT NULL DEFAULT 'acquaintance',
		created_at             TEXT NOT NULL,
		updated_at             TEXT NOT NULL,
		CONSTRAINT uq_relationship_pair UNIQUE (session_id, pair_key)
	);

	CREATE TABLE IF NOT EXISTS story_events (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id       INTEGER NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
		event_type       TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		scene_number     INTEGER NOT NULL DEFAULT 0,
		importance       INTEGER NOT NULL DEFAULT 2,
		player_action    TEXT NOT NULL DEFAULT '',
		ai_response      TEXT NOT NULL DEFAULT '',
		emotional_impact TEXT DEFAULT '{}',
		witnesses        TEXT DEFAULT '[]',
		metadata         TEXT DEFAULT '{}',
		created_at       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_active ON story_sessions (is_active, updated_at);
	CREATE INDEX IF NOT EXISTS idx_characters_session_state ON characters (session_id, state);
	CREATE INDEX IF NOT EXISTS idx_relationships_session ON character_relationships (session_id);
	CREATE INDEX IF NOT EXISTS idx_events_session_scene ON story_events (session_id, scene_number);
	CREATE INDEX IF NOT EXISTS idx_events_importance ON story_events (importance);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	statements := splitStatements(ddl)
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
