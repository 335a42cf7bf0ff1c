// Package enforce keeps derived character and relationship state
// consistent with the recorded event log.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chronicle/internal/store"
)

type Enforcer struct {
	st     store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enforcer{st: st, logger: logger}
}

// Outcome reports what Apply changed. Errors lists writes that failed;
// earlier writes stay committed.
type Outcome struct {
	Created       []string
	Deaths        []string
	Updated       []string
	Touched       []string
	Rejected      []string
	Relationships []store.Relationship
	Errors        []error
}

// Apply updates characters and relationships for a stored event. It is
// best effort: each write stands alone and nothing is rolled back.
func (en *Enforcer) Apply(ctx context.Context, session *store.Session, e store.Event) Outcome {
	var out Outcome
	fail := func(err error) {
		out.Errors = append(out.Errors, err)
		en.logger.Warn("state update failed", "session", session.ID, "event", e.ID, "error", err)
	}

	change, err := ChangeOf(e)
	if err != nil {
		fail(err)
	}
	p := planFor(session.CharacterName, e, change)

	known := make(map[string]store.CharacterState)
	chars, err := en.st.GetCharactersBySession(ctx, session.ID)
	if err != nil {
		fail(fmt.Errorf("loading roster: %w", err))
	}
	for _, c := range chars {
		known[store.NormalizeName(c.Name)] = c.State
	}

	for _, name := range p.create {
		key := store.NormalizeName(name)
		if _, ok := known[key]; ok {
			continue
		}
		_, err := en.st.CreateCharacter(ctx, session.ID, store.CharacterInput{
			Name:  name,
			Role:  store.RoleNPC,
			Scene: e.Scene,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateCharacter) {
			fail(fmt.Errorf("creating %s: %w", name, err))
			continue
		}
		if err == nil {
			out.Created = append(out.Created, name)
		}
		known[key] = store.StateAlive
	}

	for _, name := range p.deaths {
		if err := en.st.UpdateCharacterState(ctx, session.ID, name, store.StateDead, e.Scene); err != nil {
			fail(fmt.Errorf("marking %s dead: %w", name, err))
			continue
		}
		known[store.NormalizeName(name)] = store.StateDead
		out.Deaths = append(out.Deaths, name)
	}

	for _, sc := range p.states {
		key := store.NormalizeName(sc.name)
		if known[key] == store.StateDead && sc.state != store.StateDead {
			en.reject(&out, session.ID, e.ID, sc)
			continue
		}
		err := en.st.UpdateCharacterState(ctx, session.ID, sc.name, sc.state, e.Scene)
		if errors.Is(err, store.ErrInvariantViolation) {
			en.reject(&out, session.ID, e.ID, sc)
			continue
		}
		if err != nil {
			fail(fmt.Errorf("setting %s %s: %w", sc.name, sc.state, err))
			continue
		}
		known[key] = sc.state
		if sc.state == store.StateDead {
			out.Deaths = append(out.Deaths, sc.name)
		} else {
			out.Updated = append(out.Updated, sc.name)
		}
	}

	for _, name := range p.touch {
		state, ok := known[store.NormalizeName(name)]
		if !ok || state == store.StateDead {
			continue
		}
		if err := en.st.UpdateCharacterState(ctx, session.ID, name, state, e.Scene); err != nil {
			fail(fmt.Errorf("touching %s: %w", name, err))
			continue
		}
		out.Touched = append(out.Touched, name)
	}

	if !en.st.Capabilities().Relationships {
		return out
	}
	for _, dc := range p.deltas {
		rel, err := en.st.UpdateRelationship(ctx, session.ID, session.CharacterName, dc.name, dc.delta, e.Scene)
		if err != nil {
			fail(fmt.Errorf("relationship with %s: %w", dc.name, err))
			continue
		}
		if rel != nil {
			out.Relationships = append(out.Relationships, *rel)
		}
	}
	return out
}

func (en *Enforcer) reject(out *Outcome, sessionID, eventID string, sc stateChange) {
	out.Rejected = append(out.Rejected, sc.name)
	en.logger.Warn("rejected state change",
		"session", sessionID,
		"event", eventID,
		"character", sc.name,
		"state", sc.state,
		"error", store.ErrInvariantViolation,
	)
}
