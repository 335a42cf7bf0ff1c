package audit

import (
	"context"

	"chronicle/internal/store"
)

// Source is the read side of a store that an audit needs.
type Source interface {
	Capabilities() store.Capabilities
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetCharactersBySession(ctx context.Context, sessionID string) ([]store.Character, error)
	ListEvents(ctx context.Context, sessionID string) ([]store.Event, error)
	GetRelationships(ctx context.Context, sessionID string) ([]store.Relationship, error)
}
