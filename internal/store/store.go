package store

import (
	"context"
	"time"
)

type Collection string

const (
	CollectionSessions      Collection = "story_sessions"
	CollectionCharacters    Collection = "characters"
	CollectionRelationships Collection = "character_relationships"
	CollectionEvents        Collection = "story_events"
)

// Collections lists every logical collection in dependency order.
func Collections() []Collection {
	return []Collection{
		CollectionSessions,
		CollectionCharacters,
		CollectionRelationships,
		CollectionEvents,
	}
}

// Columns lists the persisted fields of each collection. Records written
// through WriteCollection are restricted to these keys.
var Columns = map[Collection][]string{
	CollectionSessions: {
		"id", "pack_id", "character_name", "title", "current_scene", "phase",
		"persona_score", "decision_count", "is_active", "metadata", "created_at", "updated_at",
	},
	CollectionCharacters: {
		"id", "session_id", "name", "role", "state", "emotion", "emotion_intensity",
		"confidence", "stress", "last_seen_scene", "traits", "created_at", "updated_at",
	},
	CollectionRelationships: {
		"id", "session_id", "character_a", "character_b", "affection", "trust", "respect",
		"fear", "romance", "rivalry", "interaction_count", "last_interaction_scene",
		"relationship_type", "created_at", "updated_at",
	},
	CollectionEvents: {
		"id", "session_id", "event_type", "title", "description", "scene_number", "importance",
		"player_action", "ai_response", "emotional_impact", "witnesses", "metadata", "created_at",
	},
}

// EmbeddedFields are the columns that hold structured JSON.
var EmbeddedFields = map[string]bool{
	"metadata":         true,
	"traits":           true,
	"witnesses":        true,
	"emotional_impact": true,
}

// Record is one row or document as a field map.
type Record map[string]any

type Capabilities struct {
	Backend       string
	Relationships bool
	Statements    bool
}

// Adapter is the backend-neutral collection contract shared by every
// storage engine.
type Adapter interface {
	Capabilities() Capabilities
	ReadCollection(ctx context.Context, c Collection) ([]Record, error)
	// WriteCollection upserts records by id. It never deletes, never
	// rewrites stored events and never revives a dead character.
	WriteCollection(ctx context.Context, c Collection, records []Record) error
	Close(ctx context.Context) error
}

// Executor runs raw parameterized statements. Only relational backends
// implement it.
type Executor interface {
	Execute(ctx context.Context, statement string, params ...any) ([]Record, error)
}

type Store interface {
	Adapter

	EnsureSchema(ctx context.Context) error

	CreateSession(ctx context.Context, in SessionInput) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, activeOnly bool) ([]Session, error)
	UpdateSession(ctx context.Context, id string, u SessionUpdate) error
	RetireSession(ctx context.Context, id string) error

	CreateCharacter(ctx context.Context, sessionID string, in CharacterInput) (string, error)
	GetCharacter(ctx context.Context, sessionID, name string) (*Character, error)
	GetCharactersBySession(ctx context.Context, sessionID string) ([]Character, error)
	UpdateCharacterState(ctx context.Context, sessionID, name string, state CharacterState, scene int) error

	UpdateRelationship(ctx context.Context, sessionID, a, b string, delta RelationshipDelta, scene int) (*Relationship, error)
	GetRelationships(ctx context.Context, sessionID string) ([]Relationship, error)

	RecordEvent(ctx context.Context, sessionID string, in EventInput) (string, error)
	GetRecentEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
	GetCriticalEvents(ctx context.Context, sessionID string) ([]Event, error)
	ListEvents(ctx context.Context, sessionID string) ([]Event, error)

	SweepRetired(ctx context.Context, olderThan time.Time) (int64, error)
}
