package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/store"
)

func parseID(kind, id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", kind, id, store.ErrRecordNotFound)
	}
	return n, nil
}

func (c *Client) CreateSession(ctx context.Context, in store.SessionInput) (string, error) {
	if strings.TrimSpace(in.CharacterName) == "" {
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

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := c.timestamp()
	res, err := tx.ExecContext(ctx, `
	INSERT INTO story_sessions (pack_id, character_name, title, phase, metadata, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, in.PackID, strings.TrimSpace(in.CharacterName), in.Title, in.Phase, string(metaJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("reading session id: %w", err)
	}

	player := store.CharacterInput{
		Name: in.CharacterName,
		Role: store.RolePlayer,
	}.Normalize()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO characters (session_id, name, name_normalized, role, state, emotion, emotion_intensity, confidence, stress, last_seen_scene, traits, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
	`, sessionID, player.Name, store.NormalizeName(player.Name), player.Role, player.State, player.Emotion,
		store.DefaultEmotionIntensity, store.DefaultConfidence, string(traitsJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("inserting player character: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing session: %w", err)
	}
	return strconv.FormatInt(sessionID, 10), nil
}

const sessionColumns = `id, pack_id, character_name, title, current_scene, phase, persona_score, decision_count, is_active, metadata, created_at, updated_at`

func (c *Client) scanSession(row interface{ Scan(...any) error }) (*store.Session, error) {
	var (
		s                store.Session
		id               int64
		active           int
		meta             sql.NullString
		created, updated string
	)
	if err := row.Scan(&id, &s.PackID, &s.CharacterName, &s.Title, &s.CurrentScene, &s.Phase,
		&s.PersonaScore, &s.DecisionCount, &active, &meta, &created, &updated); err != nil {
		return nil, err
	}
	s.ID = strconv.FormatInt(id, 10)
	s.Active = active != 0
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	store.DecodeEmbedded(c.logger, "session "+s.ID, "metadata", []byte(meta.String), &s.Metadata)
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
	row := c.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM story_sessions WHERE id = ?`, sid)
	s, err := c.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

func (c *Client) ListSessions(ctx context.Context, activeOnly bool) ([]store.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM story_sessions
	WHERE (? = 0 OR is_active = 1)
	ORDER BY updated_at DESC, id DESC`

	flag := 0
	if activeOnly {
		flag = 1
	}
	rows, err := c.db.QueryContext(ctx, query, flag)
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
	metaJSON, err := store.EncodeEmbedded(u.Metadata)
	if err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx, `
	UPDATE story_sessions
	SET current_scene = ?, phase = ?, persona_score = ?, decision_count = ?,
		metadata = CASE WHEN ? THEN ? ELSE metadata END,
		updated_at = ?
	WHERE id = ?
	`, u.CurrentScene, u.Phase, u.PersonaScore, u.DecisionCount,
		u.Metadata != nil, string(metaJSON), c.timestamp(), sid)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return expectAffected(res, "session", id)
}

func (c *Client) RetireSession(ctx context.Context, id string) error {
	sid, err := parseID("session", id)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE story_sessions SET is_active = 0, updated_at = ? WHERE id = ?`,
		c.timestamp(), sid,
	)
	if err != nil {
		return fmt.Errorf("retiring session: %w", err)
	}
	return expectAffected(res, "session", id)
}

func (c *Client) SweepRetired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM story_sessions WHERE is_active = 0 AND updated_at < ?`,
		olderThan.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping retired sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected, nil
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrRecordNotFound)
	}
	return nil
}
