package bolt

import (
	"encoding/json"
	"log/slog"

	"chronicle/internal/store"
)

// Document shapes keep embedded fields raw so a single malformed field
// degrades to its default instead of dropping the whole document.

type sessionDoc struct {
	store.Session
	Metadata json.RawMessage `json:"metadata"`
}

type characterDoc struct {
	store.Character
	Traits json.RawMessage `json:"traits"`
}

type eventDoc struct {
	store.Event
	EmotionalImpact json.RawMessage `json:"emotional_impact"`
	Witnesses       json.RawMessage `json:"witnesses"`
	Metadata        json.RawMessage `json:"metadata"`
}

func newSessionDoc(s store.Session) (sessionDoc, error) {
	meta, err := store.EncodeEmbedded(s.Metadata)
	if err != nil {
		return sessionDoc{}, err
	}
	return sessionDoc{Session: s, Metadata: meta}, nil
}

func (d sessionDoc) decode(logger *slog.Logger) store.Session {
	s := d.Session
	s.Metadata = nil
	store.DecodeEmbedded(logger, "session "+s.ID, "metadata", d.Metadata, &s.Metadata)
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return s
}

func newCharacterDoc(c store.Character) (characterDoc, error) {
	traits, err := store.EncodeEmbedded(c.Traits)
	if err != nil {
		return characterDoc{}, err
	}
	return characterDoc{Character: c, Traits: traits}, nil
}

func (d characterDoc) decode(logger *slog.Logger) store.Character {
	c := d.Character
	c.Traits = nil
	store.DecodeEmbedded(logger, "character "+c.Name, "traits", d.Traits, &c.Traits)
	if c.Traits == nil {
		c.Traits = map[string]any{}
	}
	return c
}

func newEventDoc(e store.Event) (eventDoc, error) {
	impact, err := store.EncodeEmbedded(e.EmotionalImpact)
	if err != nil {
		return eventDoc{}, err
	}
	witnesses, err := store.EncodeEmbedded(e.Witnesses)
	if err != nil {
		return eventDoc{}, err
	}
	meta, err := store.EncodeEmbedded(e.Metadata)
	if err != nil {
		return eventDoc{}, err
	}
	return eventDoc{Event: e, EmotionalImpact: impact, Witnesses: witnesses, Metadata: meta}, nil
}

func (d eventDoc) decode(logger *slog.Logger) store.Event {
	e := d.Event
	e.EmotionalImpact, e.Witnesses, e.Metadata = nil, nil, nil
	entity := "event " + e.ID
	store.DecodeEmbedded(logger, entity, "emotional_impact", d.EmotionalImpact, &e.EmotionalImpact)
	if !store.DecodeEmbedded(logger, entity, "witnesses", d.Witnesses, &e.Witnesses) {
		e.Witnesses = nil
	}
	store.DecodeEmbedded(logger, entity, "metadata", d.Metadata, &e.Metadata)
	if e.EmotionalImpact == nil {
		e.EmotionalImpact = map[string]any{}
	}
	if e.Witnesses == nil {
		e.Witnesses = []string{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e
}
