package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/memory"
	"chronicle/internal/store"
)

type InitializeStoryInput struct {
	PackID    string              `json:"pack_id,omitempty" jsonschema:"id of a character pack in the packs directory"`
	Character string              `json:"character,omitempty" jsonschema:"player character name when no pack is given"`
	Title     string              `json:"title,omitempty" jsonschema:"story title"`
	Setting   string              `json:"setting,omitempty" jsonschema:"story setting"`
	Cast      []config.CastMember `json:"cast,omitempty" jsonschema:"supporting characters to seed"`
}

type ParticipantInput struct {
	Name         string                  `json:"name" jsonschema:"character name"`
	State        string                  `json:"state,omitempty" jsonschema:"alive, injured, missing or dead"`
	Relationship store.RelationshipDelta `json:"relationship,omitempty" jsonschema:"change in the bond with the player"`
}

type RecordMemoryInput struct {
	Title           string             `json:"title,omitempty" jsonschema:"short event title"`
	Description     string             `json:"description" jsonschema:"what happened in the scene"`
	PlayerAction    string             `json:"player_action,omitempty" jsonschema:"the player's choice"`
	Response        string             `json:"response,omitempty" jsonschema:"the generated narration"`
	Scene           int                `json:"scene,omitempty" jsonschema:"scene number; defaults to the current scene"`
	Importance      int                `json:"importance,omitempty" jsonschema:"1 low to 4 critical; classified when omitted"`
	Characters      []ParticipantInput `json:"characters,omitempty" jsonschema:"characters present in the scene"`
	Victims         []string           `json:"victims,omitempty" jsonschema:"characters who died"`
	EmotionalImpact map[string]any     `json:"emotional_impact,omitempty" jsonschema:"free-form emotional effects"`
}

type GetStoryContextInput struct {
	Budget           int `json:"budget,omitempty" jsonschema:"maximum digest length in characters"`
	MaxRelationships int `json:"max_relationships,omitempty" jsonschema:"relationships to include"`
	MaxRecent        int `json:"max_recent,omitempty" jsonschema:"recent events to include"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"story session id"`
}

type SaveStoryMemoryInput struct{}

type GetMemoryStatsInput struct{}

type OKOutput struct {
	OK bool `json:"ok"`
}

type EventOutput struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description"`
	Scene       int      `json:"scene"`
	Importance  string   `json:"importance"`
	Witnesses   []string `json:"witnesses"`
}

type CharacterOutput struct {
	Name          string `json:"name"`
	Role          string `json:"role"`
	State         string `json:"state"`
	Emotion       string `json:"emotion,omitempty"`
	LastSeenScene int    `json:"last_seen_scene"`
}

type RelationshipOutput struct {
	CharacterA       string `json:"character_a"`
	CharacterB       string `json:"character_b"`
	Type             string `json:"type"`
	Label            string `json:"label"`
	InteractionCount int    `json:"interaction_count"`
}

type StoryContextOutput struct {
	FormattedContext string               `json:"formatted_context"`
	KeyEvents        []EventOutput        `json:"key_events"`
	Characters       []CharacterOutput    `json:"characters"`
	Relationships    []RelationshipOutput `json:"relationships"`
	Truncated        []string             `json:"truncated,omitempty"`
	Degraded         bool                 `json:"degraded,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "initialize_story",
		Description: "Start a new story session from a character pack",
	}, s.handleInitializeStory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "record_memory",
		Description: "Record what happened in a scene and apply its effects on characters",
	}, s.handleRecordMemory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_story_context",
		Description: "Compile the continuity digest to prepend to the next generation prompt",
	}, s.handleGetStoryContext)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "save_story_memory",
		Description: "Flush the active session's progress",
	}, s.handleSaveStoryMemory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "load_story_memory",
		Description: "Resume an existing story session",
	}, s.handleLoadStoryMemory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_story_memory",
		Description: "Retire a story session",
	}, s.handleDeleteStoryMemory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_memory_stats",
		Description: "Report counts for the active story session",
	}, s.handleGetMemoryStats)
}

func (s *Server) handleInitializeStory(ctx context.Context, req *sdk.CallToolRequest, input InitializeStoryInput) (*sdk.CallToolResult, memory.InitResult, error) {
	pack, err := s.resolvePack(input)
	if err != nil {
		return nil, memory.InitResult{}, err
	}
	res, err := s.memory.InitializeStory(ctx, pack)
	if err != nil {
		return nil, memory.InitResult{}, err
	}
	return nil, res, nil
}

func (s *Server) resolvePack(input InitializeStoryInput) (*config.Pack, error) {
	if input.PackID != "" {
		if s.packs == nil {
			return nil, fmt.Errorf("no packs directory configured")
		}
		return s.packs(input.PackID)
	}
	if input.Character == "" {
		return nil, fmt.Errorf("pack_id or character is required")
	}
	pack := &config.Pack{
		ID:        "inline",
		Character: input.Character,
		Title:     input.Title,
		Setting:   input.Setting,
		Cast:      input.Cast,
	}
	if err := config.ValidateCast(pack); err != nil {
		return nil, err
	}
	return pack, nil
}

func (s *Server) handleRecordMemory(ctx context.Context, req *sdk.CallToolRequest, input RecordMemoryInput) (*sdk.CallToolResult, memory.Recorded, error) {
	if input.Description == "" {
		return nil, memory.Recorded{}, fmt.Errorf("description is required")
	}
	p := memory.Proposal{
		Title:           input.Title,
		Description:     input.Description,
		PlayerAction:    input.PlayerAction,
		Response:        input.Response,
		Scene:           input.Scene,
		Importance:      store.Importance(input.Importance),
		Victims:         input.Victims,
		EmotionalImpact: input.EmotionalImpact,
	}
	if p.Importance != 0 && !p.Importance.Valid() {
		return nil, memory.Recorded{}, fmt.Errorf("importance must be between 1 and 4")
	}
	for _, c := range input.Characters {
		state := store.CharacterState(c.State)
		if state != "" && !state.Valid() {
			return nil, memory.Recorded{}, fmt.Errorf("unknown state %q for %s", c.State, c.Name)
		}
		p.Characters = append(p.Characters, memory.Participant{
			Name:         c.Name,
			State:        state,
			Relationship: c.Relationship,
		})
	}

	rec, err := s.memory.RecordMemory(ctx, p)
	if err != nil {
		return nil, memory.Recorded{}, err
	}
	return nil, rec, nil
}

func (s *Server) handleGetStoryContext(ctx context.Context, req *sdk.CallToolRequest, input GetStoryContextInput) (*sdk.CallToolResult, StoryContextOutput, error) {
	out, err := s.memory.GetStoryContext(ctx, digest.Options{
		Budget:           input.Budget,
		MaxRelationships: input.MaxRelationships,
		MaxRecent:        input.MaxRecent,
	})
	if err != nil {
		return nil, StoryContextOutput{}, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: out.FormattedContext}},
	}, storyContextOutput(out), nil
}

func (s *Server) handleSaveStoryMemory(ctx context.Context, req *sdk.CallToolRequest, input SaveStoryMemoryInput) (*sdk.CallToolResult, OKOutput, error) {
	ok, err := s.memory.SaveStoryMemory(ctx)
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: ok}, nil
}

func (s *Server) handleLoadStoryMemory(ctx context.Context, req *sdk.CallToolRequest, input SessionInput) (*sdk.CallToolResult, OKOutput, error) {
	if input.SessionID == "" {
		return nil, OKOutput{}, fmt.Errorf("session_id is required")
	}
	ok, err := s.memory.LoadStoryMemory(ctx, input.SessionID)
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: ok}, nil
}

func (s *Server) handleDeleteStoryMemory(ctx context.Context, req *sdk.CallToolRequest, input SessionInput) (*sdk.CallToolResult, OKOutput, error) {
	if input.SessionID == "" {
		return nil, OKOutput{}, fmt.Errorf("session_id is required")
	}
	ok, err := s.memory.DeleteStoryMemory(ctx, input.SessionID)
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: ok}, nil
}

func (s *Server) handleGetMemoryStats(ctx context.Context, req *sdk.CallToolRequest, input GetMemoryStatsInput) (*sdk.CallToolResult, memory.Stats, error) {
	stats, err := s.memory.GetMemoryStats(ctx)
	if err != nil {
		return nil, memory.Stats{}, err
	}
	return nil, stats, nil
}

func storyContextOutput(sc memory.StoryContext) StoryContextOutput {
	out := StoryContextOutput{
		FormattedContext: sc.FormattedContext,
		KeyEvents:        make([]EventOutput, 0, len(sc.KeyEvents)),
		Characters:       make([]CharacterOutput, 0, len(sc.Characters)),
		Relationships:    make([]RelationshipOutput, 0, len(sc.Relationships)),
		Truncated:        sc.Truncated,
		Degraded:         sc.Degraded,
	}
	for _, e := range sc.KeyEvents {
		out.KeyEvents = append(out.KeyEvents, EventOutput{
			ID:          e.ID,
			Type:        string(e.Type),
			Title:       e.Title,
			Description: e.Description,
			Scene:       e.Scene,
			Importance:  e.Importance.String(),
			Witnesses:   append([]string{}, e.Witnesses...),
		})
	}
	for _, c := range sc.Characters {
		out.Characters = append(out.Characters, CharacterOutput{
			Name:          c.Name,
			Role:          string(c.Role),
			State:         string(c.State),
			Emotion:       c.Emotion,
			LastSeenScene: c.LastSeenScene,
		})
	}
	for _, r := range sc.Relationships {
		out.Relationships = append(out.Relationships, RelationshipOutput{
			CharacterA:       r.CharacterA,
			CharacterB:       r.CharacterB,
			Type:             r.Type,
			Label:            digest.Label(r),
			InteractionCount: r.InteractionCount,
		})
	}
	return out
}
