package bolt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"chronicle/internal/store"
)

func (s *Store) RecordEvent(ctx context.Context, sessionID string, in store.EventInput) (string, error) {
	in = store.NormalizeEvent(in)
	e := store.Event{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Type:            in.Type,
		Title:           in.Title,
		Description:     in.Description,
		Scene:           in.Scene,
		Importance:      in.Importance,
		PlayerAction:    in.PlayerAction,
		Response:        in.Response,
		EmotionalImpact: in.EmotionalImpact,
		Witnesses:       in.Witnesses,
		Metadata:        in.Metadata,
		CreatedAt:       s.now().UTC(),
	}
	doc, err := newEventDoc(e)
	if err != nil {
		return "", err
	}

	err = s.update(ctx, func(tx *bbolt.Tx) error {
		ok, err := s.sessionExists(tx, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
		}
		items, err := loadList(tx, store.CollectionEvents)
		if err != nil {
			return err
		}
		raw, err := encode(doc)
		if err != nil {
			return err
		}
		return saveList(tx, store.CollectionEvents, append(items, raw))
	})
	if err != nil {
		return "", fmt.Errorf("recording event: %w", err)
	}
	return e.ID, nil
}

// sessionEvents returns the events of a session in insertion order.
func (s *Store) sessionEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	items, err := s.view(ctx, store.CollectionEvents)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	events := make([]store.Event, 0)
	for _, d := range decodeAll[eventDoc](s.logger, store.CollectionEvents, items) {
		if d.SessionID == sessionID {
			events = append(events, d.decode(s.logger))
		}
	}
	return events, nil
}

func (s *Store) GetRecentEvents(ctx context.Context, sessionID string, limit int) ([]store.Event, error) {
	events, err := s.sessionEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	store.SortEventsNewestFirst(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *Store) GetCriticalEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	events, err := s.sessionEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	critical := events[:0]
	for _, e := range events {
		if e.Importance >= store.ImportanceHigh {
			critical = append(critical, e)
		}
	}
	store.SortEventsNewestFirst(critical)
	return critical, nil
}

func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	events, err := s.sessionEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	store.SortEventsOldestFirst(events)
	return events, nil
}
