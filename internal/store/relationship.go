package store

import (
	"strings"
	"time"
)

const (
	BaselineAffection = 50
	BaselineTrust     = 50
	BaselineRespect   = 50
	BaselineType      = "acquaintance"

	axisMin = 0
	axisMax = 100
)

// Relationship is one undirected edge between two characters of a session.
// CharacterA always sorts before CharacterB by normalized name.
type Relationship struct {
	ID                   string    `json:"id"`
	SessionID            string    `json:"session_id"`
	CharacterA           string    `json:"character_a"`
	CharacterB           string    `json:"character_b"`
	Affection            int       `json:"affection"`
	Trust                int       `json:"trust"`
	Respect              int       `json:"respect"`
	Fear                 int       `json:"fear"`
	Romance              int       `json:"romance"`
	Rivalry              int       `json:"rivalry"`
	InteractionCount     int       `json:"interaction_count"`
	LastInteractionScene int       `json:"last_interaction_scene"`
	Type                 string    `json:"relationship_type"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type RelationshipDelta struct {
	Affection int    `json:"affection,omitempty"`
	Trust     int    `json:"trust,omitempty"`
	Respect   int    `json:"respect,omitempty"`
	Fear      int    `json:"fear,omitempty"`
	Romance   int    `json:"romance,omitempty"`
	Rivalry   int    `json:"rivalry,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (d RelationshipDelta) IsZero() bool {
	return d == RelationshipDelta{}
}

// NormalizePair orders two names so the lexicographically smaller
// lowercase name comes first.
func NormalizePair(a, b string) (string, string) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if NormalizeName(b) < NormalizeName(a) {
		return b, a
	}
	return a, b
}

// PairKey is the unique lookup key of an unordered pair.
func PairKey(a, b string) string {
	a, b = NormalizePair(a, b)
	return NormalizeName(a) + "|" + NormalizeName(b)
}

// NewRelationship returns the baseline edge for a pair.
func NewRelationship(sessionID, a, b string) Relationship {
	a, b = NormalizePair(a, b)
	return Relationship{
		SessionID:  sessionID,
		CharacterA: a,
		CharacterB: b,
		Affection:  BaselineAffection,
		Trust:      BaselineTrust,
		Respect:    BaselineRespect,
		Type:       BaselineType,
	}
}

// Apply adds a delta, clamps every axis and counts the interaction.
func (r *Relationship) Apply(d RelationshipDelta, scene int) {
	r.Affection = clamp(r.Affection + d.Affection)
	r.Trust = clamp(r.Trust + d.Trust)
	r.Respect = clamp(r.Respect + d.Respect)
	r.Fear = clamp(r.Fear + d.Fear)
	r.Romance = clamp(r.Romance + d.Romance)
	r.Rivalry = clamp(r.Rivalry + d.Rivalry)
	if d.Type != "" {
		r.Type = d.Type
	}
	r.InteractionCount++
	if scene > r.LastInteractionScene {
		r.LastInteractionScene = scene
	}
}

// Score is the overall warmth of the edge.
func (r Relationship) Score() float64 {
	return float64(r.Affection+r.Trust+r.Respect-r.Fear) / 3
}

// Involves reports whether name is one of the endpoints.
func (r Relationship) Involves(name string) bool {
	n := NormalizeName(name)
	return NormalizeName(r.CharacterA) == n || NormalizeName(r.CharacterB) == n
}

func clamp(v int) int {
	return max(axisMin, min(axisMax, v))
}
