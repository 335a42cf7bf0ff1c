package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"chronicle/internal/store"
)

const relationshipColumns = `id, session_id, character_a, character_b, affection, trust, respect, fear, romance, rivalry, interaction_count, last_interaction_scene, relationship_type, created_at, updated_at`

func scanRelationship(row pgx.Row) (*store.Relationship, error) {
	var (
		r       store.Relationship
		id, sid int64
	)
	if err := row.Scan(&id, &sid, &r.CharacterA, &r.CharacterB, &r.Affection, &r.Trust, &r.Respect,
		&r.Fear, &r.Romance, &r.Rivalry, &r.InteractionCount, &r.LastInteractionScene, &r.Type,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ID = formatID(id)
	r.SessionID = formatID(sid)
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

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	key := store.PairKey(a, b)
	rel, err := scanRelationship(tx.QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM character_relationships WHERE session_id = $1 AND pair_key = $2 FOR UPDATE`,
		sid, key,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		fresh := store.NewRelationship(sessionID, a, b)
		rel = &fresh
	case err != nil:
		return nil, fmt.Errorf("reading relationship: %w", err)
	}

	rel.Apply(delta, scene)

	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO character_relationships (session_id, character_a, character_b, pair_key, affection, trust, respect, fear, romance, rivalry, interaction_count, last_interaction_scene, relationship_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (session_id, pair_key) DO UPDATE SET
    affection = EXCLUDED.affection,
    trust = EXCLUDED.trust,
    respect = EXCLUDED.respect,
    fear = EXCLUDED.fear,
    romance = EXCLUDED.romance,
    rivalry = EXCLUDED.rivalry,
    interaction_count = EXCLUDED.interaction_count,
    last_interaction_scene = EXCLUDED.last_interaction_scene,
    relationship_type = EXCLUDED.relationship_type,
    updated_at = now()
RETURNING id, created_at, updated_at`,
		sid, rel.CharacterA, rel.CharacterB, key, rel.Affection, rel.Trust, rel.Respect, rel.Fear,
		rel.Romance, rel.Rivalry, rel.InteractionCount, rel.LastInteractionScene, rel.Type,
	).Scan(&id, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting relationship: %w", err)
	}
	rel.ID = formatID(id)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing relationship: %w", err)
	}
	return rel, nil
}

func (c *Client) GetRelationships(ctx context.Context, sessionID string) ([]store.Relationship, error) {
	sid, err := parseID("session", sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx, `
SELECT `+relationshipColumns+` FROM character_relationships
WHERE session_id = $1
ORDER BY interaction_count DESC, last_interaction_scene DESC, pair_key`, sid)
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
