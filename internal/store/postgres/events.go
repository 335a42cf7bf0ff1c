package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chronicle/internal/store"
)

func (c *Client) RecordEvent(ctx context.Context, sessionID string, in store.EventInput) (string, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return "", err
	}
	in = store.NormalizeEvent(in)

	impactJSON, err := store.EncodeEmbedded(in.EmotionalImpact)
	if err != nil {
		return "", err
	}
	witnessJSON, err := store.EncodeEmbedded(in.Witnesses)
	if err != nil {
		return "", err
	}
	metaJSON, err := store.EncodeEmbedded(in.Metadata)
	if err != nil {
		return "", err
	}

	var id int64
	err = c.pool.QueryRow(ctx, `
INSERT INTO story_events (session_id, event_type, title, description, scene_number, importance, player_action, ai_response, emotional_impact, witnesses, metadata)
SELECT $1::bigint, $2::text, $3::text, $4::text, $5::integer, $6::integer, $7::text, $8::text, $9::jsonb, $10::jsonb, $11::jsonb
WHERE EXISTS (SELECT 1 FROM story_sessions WHERE id = $1::bigint)
RETURNING id`,
		sid, string(in.Type), in.Title, in.Description, in.Scene, int(in.Importance),
		in.PlayerAction, in.Response, string(impactJSON), string(witnessJSON), string(metaJSON),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return formatID(id), nil
}

const eventColumns = `id, session_id, event_type, title, description, scene_number, importance, player_action, ai_response, emotional_impact, witnesses, metadata, created_at`

func (c *Client) queryEvents(ctx context.Context, query string, args ...any) ([]store.Event, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]store.Event, 0)
	for rows.Next() {
		var (
			e                       store.Event
			id, sid                 int64
			eventType               string
			importance              int
			impact, witnesses, meta []byte
		)
		if err := rows.Scan(&id, &sid, &eventType, &e.Title, &e.Description, &e.Scene, &importance,
			&e.PlayerAction, &e.Response, &impact, &witnesses, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.ID = formatID(id)
		e.SessionID = formatID(sid)
		e.Type = store.EventType(eventType)
		e.Importance = store.Importance(importance)

		entity := "event " + e.ID
		store.DecodeEmbedded(c.logger, entity, "emotional_impact", impact, &e.EmotionalImpact)
		if !store.DecodeEmbedded(c.logger, entity, "witnesses", witnesses, &e.Witnesses) {
			e.Witnesses = nil
		}
		store.DecodeEmbedded(c.logger, entity, "metadata", meta, &e.Metadata)
		if e.EmotionalImpact == nil {
			e.EmotionalImpact = map[string]any{}
		}
		if e.Witnesses == nil {
			e.Witnesses = []string{}
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

func (c *Client) GetRecentEvents(ctx context.Context, sessionID string, limit int) ([]store.Event, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return c.queryEvents(ctx, `
SELECT `+eventColumns+` FROM story_events
WHERE session_id = $1
ORDER BY scene_number DESC, id DESC
LIMIT $2`, sid, lim)
}

func (c *Client) GetCriticalEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	return c.queryEvents(ctx, `
SELECT `+eventColumns+` FROM story_events
WHERE session_id = $1 AND importance >= $2
ORDER BY scene_number DESC, id DESC`, sid, int(store.ImportanceHigh))
}

func (c *Client) ListEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	return c.queryEvents(ctx, `
SELECT `+eventColumns+` FROM story_events
WHERE session_id = $1
ORDER BY scene_number ASC, id ASC`, sid)
}
