package memory

import (
	"context"
	"fmt"

	"chronicle/internal/classify"
	"chronicle/internal/enforce"
	"chronicle/internal/store"
)

// Participant is a character named by an event proposal, optionally with
// the state they end the scene in and how their bond with the player moved.
type Participant struct {
	Name         string                  `json:"name"`
	State        store.CharacterState    `json:"state,omitempty"`
	Relationship store.RelationshipDelta `json:"relationship,omitempty"`
}

// Proposal is one player action together with the narrative it produced.
type Proposal struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description"`
	PlayerAction string `json:"player_action,omitempty"`
	Response     string `json:"response,omitempty"`
	// Scene defaults to the session's current scene.
	Scene           int              `json:"scene,omitempty"`
	Importance      store.Importance `json:"importance,omitempty"`
	Characters      []Participant    `json:"characters,omitempty"`
	Victims         []string         `json:"victims,omitempty"`
	EmotionalImpact map[string]any   `json:"emotional_impact,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

type Recorded struct {
	EventID    string           `json:"event_id,omitempty"`
	Type       store.EventType  `json:"type"`
	Importance store.Importance `json:"importance"`
	Witnesses  []string         `json:"witnesses"`
	Deaths     []string         `json:"deaths,omitempty"`
	Rejected   []string         `json:"rejected,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
}

// RecordMemory classifies a proposal, appends it to the event log and
// applies its state effects. Failures after the event is stored leave the
// earlier writes in place and mark the result degraded.
func (s *System) RecordMemory(ctx context.Context, p Proposal) (Recorded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return Recorded{Degraded: true}, err
	}
	st, err := s.store(ctx)
	if err != nil {
		return Recorded{Degraded: true}, fmt.Errorf("recording memory: %w", err)
	}
	return s.record(ctx, st, session, p), nil
}

func (s *System) record(ctx context.Context, st store.Store, session *store.Session, p Proposal) Recorded {
	var rec Recorded

	roster := append([]string{}, s.opts.Roster...)
	chars, err := st.GetCharactersBySession(ctx, session.ID)
	if err != nil {
		s.degrade("record_memory", err, "session", session.ID)
		rec.Degraded = true
	}
	for _, c := range chars {
		roster = append(roster, c.Name)
	}

	explicit := make([]string, 0, len(p.Characters))
	change := enforce.Change{Victims: store.DedupeNames(p.Victims)}
	for _, c := range p.Characters {
		explicit = append(explicit, c.Name)
		if c.State != "" {
			if change.States == nil {
				change.States = make(map[string]store.CharacterState)
			}
			change.States[c.Name] = c.State
		}
		if !c.Relationship.IsZero() {
			if change.Deltas == nil {
				change.Deltas = make(map[string]store.RelationshipDelta)
			}
			change.Deltas[c.Name] = c.Relationship
		}
	}
	witnesses := enforce.ExtractWitnesses(p.Description, explicit, roster)
	witnesses = store.DedupeNames(append(witnesses, change.Victims...))

	class := classify.Classify(classify.Input{
		Description:  p.Description,
		PlayerAction: p.PlayerAction,
		Participants: withoutPlayer(witnesses, session.CharacterName),
		Importance:   p.Importance,
	})
	rec.Type, rec.Importance, rec.Witnesses = class.Type, class.Importance, witnesses

	scene := p.Scene
	if scene <= 0 {
		scene = session.CurrentScene
	}
	in := store.NormalizeEvent(store.EventInput{
		Type:            class.Type,
		Title:           p.Title,
		Description:     p.Description,
		Scene:           scene,
		Importance:      class.Importance,
		PlayerAction:    p.PlayerAction,
		Response:        p.Response,
		EmotionalImpact: p.EmotionalImpact,
		Witnesses:       witnesses,
		Metadata:        change.Attach(copyMap(p.Metadata)),
	})
	if class.Rule != "" {
		in.Metadata["rule"] = class.Rule
	}

	id, err := st.RecordEvent(ctx, session.ID, in)
	if err != nil {
		s.degrade("record_memory", err, "session", session.ID)
		rec.Degraded = true
		return rec
	}
	rec.EventID = id

	out := s.enforcer(st).Apply(ctx, session, store.Event{
		ID:              id,
		SessionID:       session.ID,
		Type:            in.Type,
		Title:           in.Title,
		Description:     in.Description,
		Scene:           in.Scene,
		Importance:      in.Importance,
		PlayerAction:    in.PlayerAction,
		Response:        in.Response,
		EmotionalImpact: in.EmotionalImpact,
		Witnesses:       in.Witnesses,
		Metadata:        in.Metadata,
	})
	rec.Deaths, rec.Rejected = out.Deaths, out.Rejected
	if len(out.Errors) > 0 {
		rec.Degraded = true
	}

	err = st.UpdateSession(ctx, session.ID, store.SessionUpdate{
		CurrentScene:  max(session.CurrentScene, scene),
		Phase:         session.Phase,
		PersonaScore:  session.PersonaScore,
		DecisionCount: session.DecisionCount + 1,
	})
	if err != nil {
		s.degrade("record_memory", err, "session", session.ID)
		rec.Degraded = true
	}
	s.refresh(ctx, st)

	s.logger.Debug("memory recorded",
		"session", session.ID,
		"event", id,
		"type", rec.Type,
		"importance", rec.Importance.String(),
		"deaths", len(rec.Deaths),
	)
	return rec
}

func withoutPlayer(names []string, player string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if store.NormalizeName(n) != store.NormalizeName(player) {
			out = append(out, n)
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
