package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

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

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM story_sessions WHERE id = ?`, sid).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("checking session: %w", err)
	}

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM characters WHERE session_id = ? AND name_normalized = ?`,
		sid, store.NormalizeName(in.Name),
	).Scan(&existing)
	if err == nil {
		return strconv.FormatInt(existing, 10), fmt.Errorf("%q in session %s: %w", in.Name, sessionID, store.ErrDuplicateCharacter)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checking character name: %w", err)
	}

	now := c.timestamp()
	res, err := tx.ExecContext(ctx, `
	INSERT INTO characters (session_id, name, name_normalized, role, state, emotion, emotion_intensity, confidence, stress, last_seen_scene, traits, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
	`, sid, in.Name, store.NormalizeName(in.Name), in.Role, in.State, in.Emotion,
		store.DefaultEmotionIntensity, store.DefaultConfidence, in.Scene, string(traitsJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("inserting character: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("reading character id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing character: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

const characterColumns = `id, session_id, name, role, state, emotion, emotion_intensity, confidence, stress, last_seen_scene, traits, created_at, updated_at`

func (c *Client) scanCharacter(row interface{ Scan(...any) error }) (*store.Character, error) {
	var (
		ch               store.Character
		id, sid          int64
		traits           sql.NullString
		created, updated string
	)
	if err := row.Scan(&id, &sid, &ch.Name, &ch.Role, &ch.State, &ch.Emotion, &ch.EmotionIntensity,
		&ch.Confidence, &ch.Stress, &ch.LastSeenScene, &traits, &created, &updated); err != nil {
		return nil, err
	}
	ch.ID = strconv.FormatInt(id, 10)
	ch.SessionID = strconv.FormatInt(sid, 10)
	ch.CreatedAt = parseTime(created)
	ch.UpdatedAt = parseTime(updated)
	store.DecodeEmbedded(c.logger, "character "+ch.Name, "traits", []byte(traits.String), &ch.Traits)
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
	row := c.db.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE session_id = ? AND name_normalized = ?`,
		sid, store.NormalizeName(name),
	)
	ch, err := c.scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := c.db.QueryContext(ctx, `
	SELECT `+characterColumns+` FROM characters
	WHERE session_id = ?
	ORDER BY CASE role WHEN 'player' THEN 0 WHEN 'supporting' THEN 1 ELSE 2 END, name_normalized
	`, sid)
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

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		current store.CharacterState
		seen    int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT state, last_seen_scene FROM characters WHERE session_id = ? AND name_normalized = ?`,
		sid, store.NormalizeName(name),
	).Scan(&current, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("character %q: %w", name, store.ErrRecordNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading character state: %w", err)
	}
	if err := store.CheckTransition(name, current, state); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE characters
	SET state = ?, last_seen_scene = ?, updated_at = ?
	WHERE session_id = ? AND name_normalized = ?
	`, state, store.SeenScene(current, state, seen, scene), c.timestamp(), sid, store.NormalizeName(name))
	if err != nil {
		return fmt.Errorf("updating character state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing character state: %w", err)
	}
	return nil
}
