package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	// All statements run in one Exec, which PostgreSQL applies inside an
	// implicit transaction.
	ddl := `
CREATE TABLE IF NOT EXISTS story_sessions (
    id             BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    pack_id        TEXT NOT NULL DEFAULT '',
    character_name TEXT NOT NULL,
    title          TEXT NOT NULL DEFAULT '',
    current_scene  INTEGER NOT NULL DEFAULT 0,
    phase          TEXT NOT NULL DEFAULT '',
    persona_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    decision_count INTEGER NOT NULL DEFAULT 0,
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    metadata       JSONB DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS characters (
    id                BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    session_id        BIGINT NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
    name              TEXT NOT NULL,
    name_normalized   TEXT NOT NULL,
    role              TEXT NOT NULL DEFAULT 'npc',
    state             TEXT NOT NULL DEFAULT 'alive',
    emotion           TEXT NOT NULL DEFAULT 'neutral',
    emotion_intensity DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    confidence        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    stress            DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_seen_scene   INTEGER NOT NULL DEFAULT 0,
    traits            JSONB DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_character_name UNIQUE (session_id, name_normalized)
);

CREATE TABLE IF NOT EXISTS character_relationships (
    id                     BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    session_id             BIGINT NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
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
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_relationship_pair UNIQUE (session_id, pair_key)
);

CREATE TABLE IF NOT EXISTS story_events (
    id               BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    session_id       BIGINT NOT NULL REFERENCES story_sessions(id) ON DELETE CASCADE,
    event_type       TEXT NOT NULL,
    title            TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    scene_number     INTEGER NOT NULL DEFAULT 0,
    importance       INTEGER NOT NULL DEFAULT 2,
    player_action    TEXT NOT NULL DEFAULT '',
    ai_response      TEXT NOT NULL DEFAULT '',
    emotional_impact JSONB DEFAULT '{}',
    witnesses        JSONB DEFAULT '[]',
    metadata         JSONB DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_active ON story_sessions (is_active, updated_at);
CREATE INDEX IF NOT EXISTS idx_characters_session_state ON characters (session_id, state);
CREATE INDEX IF NOT EXISTS idx_relationships_session ON character_relationships (session_id);
CREATE INDEX IF NOT EXISTS idx_events_session_scene ON story_events (session_id, scene_number);
CREATE INDEX IF NOT EXISTS idx_events_importance ON story_events (importance);
`

	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
