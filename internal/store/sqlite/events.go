package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

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

	var exists int
	err = c.db.QueryRowContext(ctx, `SELECT 1 FROM story_sessions WHERE id = ?`, sid).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("checking session: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `
	INSERT INTO story_events (session_id, event_type, title, description, scene_number, importance, player_action, ai_response, emotional_impact, witnesses, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sid, in.Type, in.Title, in.Description, in.Scene, int(in.Importance), in.PlayerAction, in.Response,
		string(impactJSON), string(witnessJSON), string(metaJSON), c.timestamp())
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("reading event id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

const eventColumns = `id, session_id, event_type, title, description, scene_number, importance, player_action, ai_response, emotional_impact, witnesses, metadata, created_at`

func (c *Client) queryEvents(ctx context.Context, query string, args ...any) ([]store.Event, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]store.Event, 0)
	for rows.Next() {
		var (
			e                       store.Event
			id, sid                 int64
			impact, witnesses, meta sql.NullString
			created                 string
		)
		if err := rows.Scan(&id, &sid, &e.Type, &e.Title, &e.Description, &e.Scene, &e.Importance,
			&e.PlayerAction, &e.Response, &impact, &witnesses, &meta, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		e.SessionID = strconv.FormatInt(sid, 10)
		e.CreatedAt = parseTime(created)

		entity := "event " + e.ID
		store.DecodeEmbedded(c.logger, entity, "emotional_impact", []byte(impact.String), &e.EmotionalImpact)
		if !store.DecodeEmbedded(c.logger, entity, "witnesses", []byte(witnesses.String), &e.Witnesses) {
			e.Witnesses = nil
		}
		store.DecodeEmbedded(c.logger, entity, "metadata", []byte(meta.String), &e.Metadata)
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
	if limit <= 0 {
		limit = -1
	}
	return c.queryEvents(ctx, `
	SELECT `+eventColumns+` FROM story_events
	WHERE session_id = ?
	ORDER BY scene_number DESC, id DESC
	LIMIT ?
	`, sid, limit)
}

func (c *Client) GetCriticalEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	return c.queryEvents(ctx, `
	SELECT `+eventColumns+` FROM story_events
	WHERE session_id = ? AND importance >= ?
	ORDER BY scene_number DESC, id DESC
	`, sid, int(store.ImportanceHigh))
}

func (c *Client) ListEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	return c.queryEvents(ctx, `
	SELECT `+eventColumns+` FROM story_events
	WHERE session_id = ?
	ORDER BY scene_number ASC, id ASC
	`, sid)
}
