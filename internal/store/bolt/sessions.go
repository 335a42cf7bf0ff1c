package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"chronicle/internal/store"
)

// docKey is the identifying subset of every document.
type docKey struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

func keyOf(raw json.RawMessage) docKey {
	var k docKey
	_ = json.Unmarshal(raw, &k)
	return k
}

func indexByID(items []json.RawMessage, id string) int {
	for i, raw := range items {
		if keyOf(raw).ID == id {
			return i
		}
	}
	return -1
}

func newSessionID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func (s *Store) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func (s *Store) CreateSession(ctx context.Context, in store.SessionInput) (string, error) {
	name := strings.TrimSpace(in.CharacterName)
	if name == "" {
		return "", fmt.Errorf("character name is required")
	}

	now := s.now().UTC()
	session := store.Session{
		ID:            newSessionID(now),
		PackID:        in.PackID,
		CharacterName: name,
		Title:         in.Title,
		Phase:         in.Phase,
		Active:        true,
		Metadata:      in.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sdoc, err := newSessionDoc(session)
	if err != nil {
		return "", err
	}

	player := store.CharacterInput{Name: name, Role: store.RolePlayer, Traits: in.PlayerTraits}.Normalize()
	cdoc, err := newCharacterDoc(s.newCharacter(session.ID, player, now))
	if err != nil {
		return "", err
	}

	err = s.update(ctx, func(tx *bbolt.Tx) error {
		sessions, err := loadList(tx, store.CollectionSessions)
		if err != nil {
			return err
		}
		chars, err := loadList(tx, store.CollectionCharacters)
		if err != nil {
			return err
		}
		sraw, err := encode(sdoc)
		if err != nil {
			return err
		}
		craw, err := encode(cdoc)
		if err != nil {
			return err
		}
		if err := saveList(tx, store.CollectionSessions, append(sessions, sraw)); err != nil {
			return err
		}
		return saveList(tx, store.CollectionCharacters, append(chars, craw))
	})
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return session.ID, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	items, err := s.view(ctx, store.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	i := indexByID(items, id)
	if i < 0 {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	docs := decodeAll[sessionDoc](s.logger, store.CollectionSessions, items[i:i+1])
	if len(docs) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
	}
	session := docs[0].decode(s.logger)
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context, activeOnly bool) ([]store.Session, error) {
	items, err := s.view(ctx, store.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sessions := make([]store.Session, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		for _, d := range decodeAll[sessionDoc](s.logger, store.CollectionSessions, items[i:i+1]) {
			session := d.decode(s.logger)
			if activeOnly && !session.Active {
				continue
			}
			sessions = append(sessions, session)
		}
	}
	sortSessions(sessions)
	return sessions, nil
}

// mutateSession rewrites one session document in place.
func (s *Store) mutateSession(ctx context.Context, id string, fn func(*store.Session)) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		items, err := loadList(tx, store.CollectionSessions)
		if err != nil {
			return err
		}
		i := indexByID(items, id)
		if i < 0 {
			return fmt.Errorf("session %s: %w", id, store.ErrRecordNotFound)
		}
		var doc sessionDoc
		if err := json.Unmarshal(items[i], &doc); err != nil {
			return fmt.Errorf("session %s: %w: %w", id, store.ErrMalformedEmbeddedData, err)
		}
		session := doc.decode(s.logger)
		fn(&session)
		session.UpdatedAt = s.now().UTC()

		updated, err := newSessionDoc(session)
		if err != nil {
			return err
		}
		if items[i], err = encode(updated); err != nil {
			return err
		}
		return saveList(tx, store.CollectionSessions, items)
	})
}

func (s *Store) UpdateSession(ctx context.Context, id string, u store.SessionUpdate) error {
	err := s.mutateSession(ctx, id, func(session *store.Session) {
		session.CurrentScene = u.CurrentScene
		session.Phase = u.Phase
		session.PersonaScore = u.PersonaScore
		session.DecisionCount = u.DecisionCount
		if u.Metadata != nil {
			session.Metadata = u.Metadata
		}
	})
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

func (s *Store) RetireSession(ctx context.Context, id string) error {
	err := s.mutateSession(ctx, id, func(session *store.Session) {
		session.Active = false
	})
	if err != nil {
		return fmt.Errorf("retiring session: %w", err)
	}
	return nil
}

func (s *Store) SweepRetired(ctx context.Context, olderThan time.Time) (int64, error) {
	var removed int64
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		items, err := loadList(tx, store.CollectionSessions)
		if err != nil {
			return err
		}
		doomed := make(map[string]bool)
		kept := make([]json.RawMessage, 0, len(items))
		for _, raw := range items {
			var doc sessionDoc
			if err := json.Unmarshal(raw, &doc); err == nil && !doc.Active && doc.UpdatedAt.Before(olderThan) {
				doomed[doc.ID] = true
				continue
			}
			kept = append(kept, raw)
		}
		if len(doomed) == 0 {
			return nil
		}
		removed = int64(len(doomed))
		if err := saveList(tx, store.CollectionSessions, kept); err != nil {
			return err
		}
		for _, c := range []store.Collection{store.CollectionCharacters, store.CollectionEvents} {
			items, err := loadList(tx, c)
			if err != nil {
				return err
			}
			kept := items[:0]
			for _, raw := range items {
				if !doomed[keyOf(raw).SessionID] {
					kept = append(kept, raw)
				}
			}
			if err := saveList(tx, c, kept); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping retired sessions: %w", err)
	}
	return removed, nil
}

func (s *Store) sessionExists(tx *bbolt.Tx, id string) (bool, error) {
	items, err := loadList(tx, store.CollectionSessions)
	if err != nil {
		return false, err
	}
	return indexByID(items, id) >= 0, nil
}

func sortSessions(sessions []store.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
