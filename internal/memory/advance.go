package memory

import (
	"context"
	"fmt"

	"chronicle/internal/digest"
	"chronicle/internal/store"
)

type SceneCharacter struct {
	Name         string                  `json:"name"`
	State        store.CharacterState    `json:"state,omitempty"`
	Relationship store.RelationshipDelta `json:"relationship,omitempty"`
}

// SceneResult is what the generation service returns for one turn.
type SceneResult struct {
	Title           string           `json:"title"`
	Narration       string           `json:"narration"`
	Characters      []SceneCharacter `json:"characters,omitempty"`
	Victims         []string         `json:"victims,omitempty"`
	EmotionalImpact map[string]any   `json:"emotional_impact,omitempty"`
}

// Generator writes the next scene from the continuity digest and the
// player's action.
type Generator interface {
	Generate(ctx context.Context, digest, action string) (SceneResult, error)
}

type GeneratorFunc func(ctx context.Context, digest, action string) (SceneResult, error)

func (f GeneratorFunc) Generate(ctx context.Context, digest, action string) (SceneResult, error) {
	return f(ctx, digest, action)
}

type Turn struct {
	Scene    int          `json:"scene"`
	Context  StoryContext `json:"context"`
	Result   SceneResult  `json:"result"`
	Recorded Recorded     `json:"recorded"`
}

// Advance runs one turn: compile the digest, generate the scene and
// record it at the next scene number. When storage is unavailable the
// scene is still generated from a bare digest; the storage error is
// returned with the turn.
func (s *System) Advance(ctx context.Context, gen Generator, action string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{Scene: session.CurrentScene + 1}

	st, storeErr := s.store(ctx)
	if storeErr != nil {
		s.degrade("advance", storeErr, "session", session.ID)
		d := digest.Compile(digest.Input{Session: session}, s.mergeOptions(digest.Options{}))
		turn.Context = StoryContext{FormattedContext: d.Text, Degraded: true}
	} else {
		turn.Context = s.storyContext(ctx, st, digest.Options{})
	}

	res, err := gen.Generate(ctx, turn.Context.FormattedContext, action)
	if err != nil {
		return turn, fmt.Errorf("generating scene %d: %w", turn.Scene, err)
	}
	turn.Result = res

	if storeErr != nil {
		turn.Recorded = Recorded{Degraded: true}
		return turn, fmt.Errorf("recording scene %d: %w", turn.Scene, storeErr)
	}

	participants := make([]Participant, 0, len(res.Characters))
	for _, c := range res.Characters {
		participants = append(participants, Participant(c))
	}
	turn.Recorded = s.record(ctx, st, session, Proposal{
		Title:           res.Title,
		Description:     res.Narration,
		PlayerAction:    action,
		Response:        res.Narration,
		Scene:           turn.Scene,
		Characters:      participants,
		Victims:         res.Victims,
		EmotionalImpact: res.EmotionalImpact,
	})
	return turn, nil
}
