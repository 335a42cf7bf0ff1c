package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/store"
)

type InitResult struct {
	SessionID         string   `json:"session_id,omitempty"`
	MemoryInitialized bool     `json:"memory_initialized"`
	Characters        []string `json:"characters,omitempty"`
}

// InitializeStory starts a new session for the pack and seeds its cast.
// Cast names already present are merged. Only an unavailable backend
// is returned as an error.
func (s *System) InitializeStory(ctx context.Context, pack *config.Pack) (InitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pack == nil {
		return InitResult{}, fmt.Errorf("pack is required")
	}
	st, err := s.store(ctx)
	if err != nil {
		return InitResult{}, fmt.Errorf("initializing story: %w", err)
	}

	id, err := st.CreateSession(ctx, store.SessionInput{
		PackID:        pack.ID,
		CharacterName: pack.Character,
		Title:         pack.Title,
		Phase:         "opening",
		PlayerTraits:  pack.Traits,
		Metadata:      pack.Metadata(),
	})
	if err != nil {
		s.degrade("initialize_story", err, "pack", pack.ID)
		return InitResult{}, nil
	}

	res := InitResult{SessionID: id, MemoryInitialized: true, Characters: []string{pack.Character}}
	for _, m := range pack.Cast {
		_, err := st.CreateCharacter(ctx, id, store.CharacterInput{
			Name:   m.Name,
			Role:   store.Role(m.Role),
			Traits: m.Traits,
		})
		switch {
		case err == nil, errors.Is(err, store.ErrDuplicateCharacter):
			res.Characters = append(res.Characters, m.Name)
		default:
			s.degrade("initialize_story", err, "session", id, "character", m.Name)
		}
	}

	session, err := st.GetSession(ctx, id)
	if err != nil {
		s.degrade("initialize_story", err, "session", id)
		return InitResult{SessionID: id}, nil
	}
	s.session = session
	s.logger.Info("story initialized", "session", id, "pack", pack.ID, "characters", len(res.Characters))
	return res, nil
}

// LoadStoryMemory makes an existing active session current. A missing or
// retired session reports false.
func (s *System) LoadStoryMemory(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store(ctx)
	if err != nil {
		return false, fmt.Errorf("loading story: %w", err)
	}
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			s.degrade("load_story_memory", err, "session", sessionID)
		}
		return false, nil
	}
	if !session.Active {
		return false, nil
	}
	s.session = session
	return true, nil
}

// SaveStoryMemory flushes the active session's progress counters.
func (s *System) SaveStoryMemory(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return false, err
	}
	st, err := s.store(ctx)
	if err != nil {
		return false, fmt.Errorf("saving story: %w", err)
	}
	err = st.UpdateSession(ctx, session.ID, store.SessionUpdate{
		CurrentScene:  session.CurrentScene,
		Phase:         session.Phase,
		PersonaScore:  session.PersonaScore,
		DecisionCount: session.DecisionCount,
		Metadata:      session.Metadata,
	})
	if err != nil {
		s.degrade("save_story_memory", err, "session", session.ID)
		return false, nil
	}
	s.refresh(ctx, st)
	return true, nil
}

// DeleteStoryMemory retires a session. Its rows stay until a sweep.
func (s *System) DeleteStoryMemory(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store(ctx)
	if err != nil {
		return false, fmt.Errorf("deleting story: %w", err)
	}
	if err := st.RetireSession(ctx, sessionID); err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			s.degrade("delete_story_memory", err, "session", sessionID)
		}
		return false, nil
	}
	if s.session != nil && s.session.ID == sessionID {
		s.session = nil
	}
	return true, nil
}

// Sweep removes retired sessions untouched for longer than age. A zero
// age uses the configured retention.
func (s *System) Sweep(ctx context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if age <= 0 {
		age = s.opts.Retention
	}
	st, err := s.store(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweeping: %w", err)
	}
	n, err := st.SweepRetired(ctx, s.now().Add(-age))
	if err != nil {
		return 0, err
	}
	s.logger.Info("swept retired sessions", "removed", n, "older_than", age)
	return n, nil
}

type Stats struct {
	SessionID      string `json:"session_id,omitempty"`
	Backend        string `json:"backend"`
	Scene          int    `json:"scene"`
	Decisions      int    `json:"decisions"`
	Characters     int    `json:"characters"`
	Alive          int    `json:"alive"`
	Dead           int    `json:"dead"`
	Events         int    `json:"events"`
	CriticalEvents int    `json:"critical_events"`
	Relationships  int    `json:"relationships"`
	Degraded       bool   `json:"degraded,omitempty"`
}

func (s *System) GetMemoryStats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return Stats{}, err
	}
	st, err := s.store(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}

	stats := Stats{
		SessionID: session.ID,
		Backend:   st.Capabilities().Backend,
		Scene:     session.CurrentScene,
		Decisions: session.DecisionCount,
	}

	chars, err := st.GetCharactersBySession(ctx, session.ID)
	if err != nil {
		s.degrade("get_memory_stats", err, "session", session.ID)
		stats.Degraded = true
	}
	stats.Characters = len(chars)
	for _, c := range chars {
		if c.State == store.StateDead {
			stats.Dead++
		} else {
			stats.Alive++
		}
	}

	events, err := st.ListEvents(ctx, session.ID)
	if err != nil {
		s.degrade("get_memory_stats", err, "session", session.ID)
		stats.Degraded = true
	}
	stats.Events = len(events)
	for _, e := range events {
		if e.Importance >= store.ImportanceHigh {
			stats.CriticalEvents++
		}
	}

	rels, err := st.GetRelationships(ctx, session.ID)
	if err != nil {
		s.degrade("get_memory_stats", err, "session", session.ID)
		stats.Degraded = true
	}
	stats.Relationships = len(rels)
	return stats, nil
}
