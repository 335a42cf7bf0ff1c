package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chronicle/internal/store"
)

const relationshipColumns = `id, session_id, character_a, character_b, affection, trust, respect, fear, romance, rivalry, interaction_count, last_interaction_scene, relationship_type, created_at, updated_at`

func scanRelationship(row interface{ Scan(...any) error }) (*store.Relationship, error) {
	var (
		r                store.Relationship
		id, sid          int64
		created, updated string
	)
	if err := row.Scan(&id, &sid, &r.CharacterA, &r.CharacterB, &r.Affection, &r.Trust, &r.Respect,
		&r.Fear, &r.Romance, &r.Rivalry, &r.InteractionCount, &r.LastInteractionScene, &r.Type,
		&created, &updated); err != nil {
		return nil, err
	}
	r.ID = strconv.FormatInt(id, 10)
	r.SessionID = strconv.FormatInt(sid, 10)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (c *Client) UpdateRelationship(ctx context.Context, sessionID, a, b string, delta store.RelationshipDelta, scene int) (*store.Relationship, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return nil, fmt.Errorf("relationship needs two character names")
	}
	if store.NormalizeName(a) == store.NormalizeName(b) {
		return nil, fmt.Errorf("relationship of %q with itself", a)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	key := store.PairKey(a, b)
	row := tx.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM character_relationships WHERE session_id = ? AND pair_key = ?`,
		sid, key,
	)
	rel, err := scanRelationship(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		fresh := store.NewRelationship(sessionID, a, b)
		rel = &fresh
	case err != nil:
		return nil, fmt.Errorf("reading relationship: %w", err)
	}

	rel.Apply(delta, scene)
	now := c.timestamp()

	if rel.ID == "" {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO character_relationships (session_id, character_a, character_b, pair_key, affection, trust, respect, fear, romance, rivalry, interaction_count, last_interaction_scene, relationship_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sid, rel.CharacterA, rel.CharacterB, key, rel.Affection, rel.Trust, rel.Respect, rel.Fear,
			rel.Romance, rel.Rivalry, rel.InteractionCount, rel.LastInteractionScene, rel.Type, now, now)
		if err != nil {
			return nil, fmt.Errorf("inserting relationship: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading relationship id: %w", err)
		}
		rel.ID = strconv.FormatInt(id, 10)
		rel.CreatedAt = parseTime(now)
	} else {
		_, err := tx.ExecContext(ctx, `
		UPDATE character_relationships
		SET affection = ?, trust = ?, respect = ?, fear = ?, romance = ?, rivalry = ?,
			interaction_count = ?, last_interaction_scene = ?, relationship_type = ?, updated_at = ?
		WHERE id = ?
		`, rel.Affection, rel.Trust, rel.Respect, rel.Fear, rel.Romance, rel.Rivalry,
			rel.InteractionCount, rel.LastInteractionScene, rel.Type, now, rel.ID)
		if err != nil {
			return nil, fmt.Errorf("updating relationship: %w", err)
		}
	}
	rel.UpdatedAt = parseTime(now)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing relationship: %w", err)
	}
	return rel, nil
}

func (c *Client) GetRelationships(ctx context.Context, sessionID string) ([]store.Relationship, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
	SELECT `+relationshipColumns+` FROM character_relationships
	WHERE session_id = ?
	ORDER BY interaction_count DESC, last_interaction_scene DESC, pair_key
	`, sid)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]store.Relationship, 0)
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rels = append(rels, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationship rows: %w", err)
	}
	return rels, nil
}
