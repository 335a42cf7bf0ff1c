package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"chronicle/internal/store"
)

func (s *Store) newCharacter(sessionID string, in store.CharacterInput, now time.Time) store.Character {
	return store.Character{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Name:             in.Name,
		Role:             in.Role,
		State:            in.State,
		Emotion:          in.Emotion,
		EmotionIntensity: store.DefaultEmotionIntensity,
		Confidence:       store.DefaultConfidence,
		LastSeenScene:    in.Scene,
		Traits:           in.Traits,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func indexByName(items []json.RawMessage, sessionID, name string) int {
	want := store.NormalizeName(name)
	for i, raw := range items {
		k := keyOf(raw)
		if k.SessionID == sessionID && store.NormalizeName(k.Name) == want {
			return i
		}
	}
	return -1
}

func (s *Store) CreateCharacter(ctx context.Context, sessionID string, in store.CharacterInput) (string, error) {
	in = in.Normalize()
	if in.Name == "" {
		return "", fmt.Errorf("character name is required")
	}
	if !in.State.Valid() {
		return "", fmt.Errorf("unknown character state %q", in.State)
	}

	ch := s.newCharacter(sessionID, in, s.now().UTC())
	doc, err := newCharacterDoc(ch)
	if err != nil {
		return "", err
	}

	var existingID string
	err = s.update(ctx, func(tx *bbolt.Tx) error {
		ok, err := s.sessionExists(tx, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s: %w", sessionID, store.ErrRecordNotFound)
		}
		items, err := loadList(tx, store.CollectionCharacters)
		if err != nil {
			return err
		}
		if i := indexByName(items, sessionID, in.Name); i >= 0 {
			existingID = keyOf(items[i]).ID
			return fmt.Errorf("%q in session %s: %w", in.Name, sessionID, store.ErrDuplicateCharacter)
		}
		raw, err := encode(doc)
		if err != nil {
			return err
		}
		return saveList(tx, store.CollectionCharacters, append(items, raw))
	})
	if existingID != "" {
		return existingID, err
	}
	if err != nil {
		return "", fmt.Errorf("creating character: %w", err)
	}
	return ch.ID, nil
}

func (s *Store) sessionCharacters(ctx context.Context, sessionID string) ([]store.Character, error) {
	items, err := s.view(ctx, store.CollectionCharacters)
	if err != nil {
		return nil, err
	}
	chars := make([]store.Character, 0)
	for _, d := range decodeAll[characterDoc](s.logger, store.CollectionCharacters, items) {
		if d.SessionID == sessionID {
			chars = append(chars, d.decode(s.logger))
		}
	}
	return chars, nil
}

func (s *Store) GetCharacter(ctx context.Context, sessionID, name string) (*store.Character, error) {
	chars, err := s.sessionCharacters(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("getting character: %w", err)
	}
	want := store.NormalizeName(name)
	for _, c := range chars {
		if store.NormalizeName(c.Name) == want {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("character %q: %w", name, store.ErrRecordNotFound)
}

func (s *Store) GetCharactersBySession(ctx context.Context, sessionID string) ([]store.Character, error) {
	chars, err := s.sessionCharacters(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	store.SortCharacters(chars)
	return chars, nil
}

func (s *Store) UpdateCharacterState(ctx context.Context, sessionID, name string, state store.CharacterState, scene int) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		items, err := loadList(tx, store.CollectionCharacters)
		if err != nil {
			return err
		}
		i := indexByName(items, sessionID, name)
		if i < 0 {
			return fmt.Errorf("character %q: %w", name, store.ErrRecordNotFound)
		}
		var doc characterDoc
		if err := json.Unmarshal(items[i], &doc); err != nil {
			return fmt.Errorf("character %q: %w: %w", name, store.ErrMalformedEmbeddedData, err)
		}
		ch := doc.decode(s.logger)
		if err := store.CheckTransition(ch.Name, ch.State, state); err != nil {
			return err
		}
		ch.LastSeenScene = store.SeenScene(ch.State, state, ch.LastSeenScene, scene)
		ch.State = state
		ch.UpdatedAt = s.now().UTC()

		updated, err := newCharacterDoc(ch)
		if err != nil {
			return err
		}
		if items[i], err = encode(updated); err != nil {
			return err
		}
		return saveList(tx, store.CollectionCharacters, items)
	})
}

// UpdateRelationship is a no-op: the document backend does not keep
// relationships.
func (s *Store) UpdateRelationship(ctx context.Context, sessionID, a, b string, delta store.RelationshipDelta, scene int) (*store.Relationship, error) {
	return nil, nil
}

func (s *Store) GetRelationships(ctx context.Context, sessionID string) ([]store.Relationship, error) {
	return []store.Relationship{}, nil
}
