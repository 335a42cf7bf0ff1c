package store

import (
	"strings"
	"time"
)

type Role string

const (
	RolePlayer     Role = "player"
	RoleSupporting Role = "supporting"
	RoleNPC        Role = "npc"
)

// Rank orders roles for roster listings: player first, npc last.
func (r Role) Rank() int {
	switch r {
	case RolePlayer:
		return 0
	case RoleSupporting:
		return 1
	default:
		return 2
	}
}

type CharacterState string

const (
	StateAlive   CharacterState = "alive"
	StateDead    CharacterState = "dead"
	StateInjured CharacterState = "injured"
	StateMissing CharacterState = "missing"
)

func (s CharacterState) Valid() bool {
	switch s {
	case StateAlive, StateDead, StateInjured, StateMissing:
		return true
	}
	return false
}

type EventType string

const (
	EventCharacterDeath       EventType = "character_death"
	EventBetrayal             EventType = "betrayal"
	EventRomance              EventType = "romance"
	EventDiscovery            EventType = "discovery"
	EventConflict             EventType = "conflict"
	EventCharacterInteraction EventType = "character_interaction"
	EventMajorDecision        EventType = "major_decision"
)

type Importance int

const (
	ImportanceLow      Importance = 1
	ImportanceMedium   Importance = 2
	ImportanceHigh     Importance = 3
	ImportanceCritical Importance = 4
)

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "LOW"
	case ImportanceMedium:
		return "MEDIUM"
	case ImportanceHigh:
		return "HIGH"
	case ImportanceCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

func (i Importance) Valid() bool {
	return i >= ImportanceLow && i <= ImportanceCritical
}

type Session struct {
	ID            string         `json:"id"`
	PackID        string         `json:"pack_id"`
	CharacterName string         `json:"character_name"`
	Title         string         `json:"title"`
	CurrentScene  int            `json:"current_scene"`
	Phase         string         `json:"phase"`
	PersonaScore  float64        `json:"persona_score"`
	DecisionCount int            `json:"decision_count"`
	Active        bool           `json:"is_active"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type SessionInput struct {
	PackID        string
	CharacterName string
	Title         string
	Phase         string
	PlayerTraits  map[string]any
	Metadata      map[string]any
}

// SessionUpdate carries the fields that change on a scene advance.
type SessionUpdate struct {
	CurrentScene  int
	Phase         string
	PersonaScore  float64
	DecisionCount int
	Metadata      map[string]any
}

type Character struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	Name             string         `json:"name"`
	Role             Role           `json:"role"`
	State            CharacterState `json:"state"`
	Emotion          string         `json:"emotion"`
	EmotionIntensity float64        `json:"emotion_intensity"`
	Confidence       float64        `json:"confidence"`
	Stress           float64        `json:"stress"`
	LastSeenScene    int            `json:"last_seen_scene"`
	Traits           map[string]any `json:"traits"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type CharacterInput struct {
	Name    string
	Role    Role
	State   CharacterState
	Emotion string
	Traits  map[string]any
	Scene   int
}

const (
	DefaultEmotion          = "neutral"
	DefaultEmotionIntensity = 0.5
	DefaultConfidence       = 0.5
)

// Normalize fills defaults for a new character row.
func (in CharacterInput) Normalize() CharacterInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = RoleNPC
	}
	if in.State == "" {
		in.State = StateAlive
	}
	if in.Emotion == "" {
		in.Emotion = DefaultEmotion
	}
	if in.Traits == nil {
		in.Traits = map[string]any{}
	}
	return in
}

type Event struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	Type            EventType      `json:"event_type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Scene           int            `json:"scene_number"`
	Importance      Importance     `json:"importance"`
	PlayerAction    string         `json:"player_action"`
	Response        string         `json:"ai_response"`
	EmotionalImpact map[string]any `json:"emotional_impact"`
	Witnesses       []string       `json:"witnesses"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

type EventInput struct {
	Type            EventType
	Title           string
	Description     string
	Scene           int
	Importance      Importance
	PlayerAction    string
	Response        string
	EmotionalImpact map[string]any
	Witnesses       []string
	Metadata        map[string]any
}

// NormalizeName is the case-insensitive identity of a character name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
