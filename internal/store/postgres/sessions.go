package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"chronicle/internal/store"
)

func (c *Client) CreateSession(ctx context.Context, in store.SessionInput) (string, error) {
	name := strings.TrimSpace(in.CharacterName)
	if name == "" {
		return "", fmt.Errorf("character name is required")
	}
	metaJSON, err := store.EncodeEmbedded(in.Metadata)
	if err != nil {
		return "", err
	}
	traitsJSON, err := store.EncodeEmbedded(in.PlayerTraits)
	if err != nil {
		return "", err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var sessionID int64
	err = tx.QueryRow(ctx, `
INSERT INTO story_sessions (pack_id, character_name, title, phase, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		in.PackID, name, in.Title, in.Phase, string(metaJSON),
	).Scan(&sessionID)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	player := store.CharacterInput{Name: name, Role: store.RolePlayer}.Normalize()
	_, err = tx.Exec(ctx, `
INSERT INTO characters (session_id, name, name_normalized, role, state, emotion, traits)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sessionID, player.Name, store.NormalizeName(player.Name), string(player.Role),
		string(player.State), player.Emotion, string(traitsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("inserting player character: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing session: %w", err)
	}
	return formatID(sessionID), nil
}

const sessionColumns = `id, pack_id, character_name, title, current_scene, phase, persona_score, decision_count, is_active, metadata, created_at, updated_at`

func (c *Client) scanSession(row pgx.Row) (*store.Session, error) {
	var (
		s    store.Session
		id   int64
		meta []byte
	)
	if err := row.Scan(&id, &s.PackID, &s.CharacterName, &s.Title, &s.CurrentScene, &s.Phase,
		&s.PersonaScore, &s.DecisionCount, &s.Active, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ID = formatID(id)
	store.DecodeEmbedded(c.logger, "session "+s.ID, "metadata", meta, &s.Metadata)
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sid, err := parseID("session", id)
	if err != nil {
		return nil, err
	}
	s, err := c.scanSession(c.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM story_sessions WHERE id = $1`, sid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

func (c *Client) ListSessions(ctx context.Context, activeOnly bool) ([]store.Session, error) {
	rows, err := c.pool.Query(ctx, `
SELECT `+sessionColumns+` FROM story_sessions
WHERE (NOT $1 OR is_active)
ORDER BY updated_at DESC, id DESC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]store.Session, 0)
	for rows.Next() {
		s, err := c.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, u store.SessionUpdate) error {
	sid, err := parseID("session", id)
	if err != nil {
		return err
	}
	var meta *string
	if u.Metadata != nil {
		b, err := store.EncodeEmbedded(u.Metadata)
		if err != nil {
			return err
		}
		s := string(b)
		meta = &s
	}

	tag, err := c.pool.Exec(ctx, `
UPDATE story_sessions
SET current_scene = $1, phase = $2, persona_score = $3, decision_count = $4,
    metadata = COALESCE($5::jsonb, metadata),
    updated_at = now()
WHERE id = $6`,
		u.CurrentScene, u.Phase, u.PersonaScore, u.DecisionCount, meta, sid,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	return nil
}

func (c *Client) RetireSession(ctx context.Context, id string) error {
	sid, err := parseID("session", id)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE story_sessions SET is_active = FALSE, updated_at = now() WHERE id = $1`, sid)
	if err != nil {
		return fmt.Errorf("retiring session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	return nil
}

func (c *Client) SweepRetired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM story_sessions WHERE NOT is_active AND updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sweeping retired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
