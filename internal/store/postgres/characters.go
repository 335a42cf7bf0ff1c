package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chronicle/internal/store"
)

func (c *Client) CreateCharacter(ctx context.Context, sessionID string, in store.CharacterInput) (string, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return "", err
	}
	in = in.Normalize()
	if in.Name == "" {
		return "", fmt.Errorf("character name is required")
	}
	if !in.State.Valid() {
		return "", fmt.Errorf("unknown character state %q", in.State)
	}
	traitsJSON, err := store.EncodeEmbedded(in.Traits)
	if err != nil {
		return "", err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM story_sessions WHERE id = $1`, sid).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("checking session: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO characters (session_id, name, name_normalized, role, state, emotion, last_seen_scene, traits)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, name_normalized) DO NOTHING
RETURNING id`,
		sid, in.Name, store.NormalizeName(in.Name), string(in.Role), string(in.State),
		in.Emotion, in.Scene, string(traitsJSON),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		var existing int64
		if err := tx.QueryRow(ctx,
			`SELECT id FROM characters WHERE session_id = $1 AND name_normalized = $2`,
			sid, store.NormalizeName(in.Name),
		).Scan(&existing); err != nil {
			return "", fmt.Errorf("finding existing character: %w", err)
		}
		return formatID(existing), fmt.Errorf("%q in session %s: %w", in.Name, sessionID, store.ErrDuplicateCharacter)
	}
	if err != nil {
		return "", fmt.Errorf("inserting character: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing character: %w", err)
	}
	return formatID(id), nil
}

const characterColumns = `id, session_id, name, role, state, emotion, emotion_intensity, confidence, stress, last_seen_scene, traits, created_at, updated_at`

func (c *Client) scanCharacter(row pgx.Row) (*store.Character, error) {
	var (
		ch          store.Character
		id, sid     int64
		role, state string
		traits      []byte
	)
	if err := row.Scan(&id, &sid, &ch.Name, &role, &state, &ch.Emotion, &ch.EmotionIntensity,
		&ch.Confidence, &ch.Stress, &ch.LastSeenScene, &traits, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, err
	}
	ch.ID = formatID(id)
	ch.SessionID = formatID(sid)
	ch.Role = store.Role(role)
	ch.State = store.CharacterState(state)
	store.DecodeEmbedded(c.logger, "character "+ch.Name, "traits", traits, &ch.Traits)
	if ch.Traits == nil {
		ch.Traits = map[string]any{}
	}
	return &ch, nil
}

func (c *Client) GetCharacter(ctx context.Context, sessionID, name string) (*store.Character, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	ch, err := c.scanCharacter(c.pool.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE session_id = $1 AND name_normalized = $2`,
		sid, store.NormalizeName(name),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("character %q: %w", name, store.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting character: %w", err)
	}
	return ch, nil
}

func (c *Client) GetCharactersBySession(ctx context.Context, sessionID string) ([]store.Character, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx, `
SELECT `+characterColumns+` FROM characters
WHERE session_id = $1
ORDER BY CASE role WHEN 'player' THEN 0 WHEN 'supporting' THEN 1 ELSE 2 END, name_normalized`, sid)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	chars := make([]store.Character, 0)
	for rows.Next() {
		ch, err := c.scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character: %w", err)
		}
		chars = append(chars, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating character rows: %w", err)
	}
	return chars, nil
}

func (c *Client) UpdateCharacterState(ctx context.Context, sessionID, name string, state store.CharacterState, scene int) error {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current string
		seen    int
	)
	err = tx.QueryRow(ctx,
		`SELECT state, last_seen_scene FROM characters WHERE session_id = $1 AND name_normalized = $2 FOR UPDATE`,
		sid, store.NormalizeName(name),
	).Scan(&current, &seen)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("character %q: %w", name, store.ErrRecordNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading character state: %w", err)
	}
	if err := store.CheckTransition(name, store.CharacterState(current), state); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE characters
SET state = $1, last_seen_scene = $2, updated_at = now()
WHERE session_id = $3 AND name_normalized = $4`,
		string(state), store.SeenScene(store.CharacterState(current), state, seen, scene), sid, store.NormalizeName(name),
	)
	if err != nil {
		return fmt.Errorf("updating character state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing character state: %w", err)
	}
	return nil
}
