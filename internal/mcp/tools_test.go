package mcp

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/memory"
	"chronicle/internal/store"
)

type mockMemory struct {
	initResult    memory.InitResult
	recordResult  memory.Recorded
	contextResult memory.StoryContext
	statsResult   memory.Stats
	ok            bool
	err           error

	lastPack      *config.Pack
	lastProposal  memory.Proposal
	lastOptions   digest.Options
	lastSessionID string
}

func (m *mockMemory) InitializeStory(ctx context.Context, pack *config.Pack) (memory.InitResult, error) {
	m.lastPack = pack
	return m.initResult, m.err
}

func (m *mockMemory) RecordMemory(ctx context.Context, p memory.Proposal) (memory.Recorded, error) {
	m.lastProposal = p
	return m.recordResult, m.err
}

func (m *mockMemory) GetStoryContext(ctx context.Context, opts digest.Options) (memory.StoryContext, error) {
	m.lastOptions = opts
	return m.contextResult, m.err
}

func (m *mockMemory) SaveStoryMemory(ctx context.Context) (bool, error) {
	return m.ok, m.err
}

func (m *mockMemory) LoadStoryMemory(ctx context.Context, sessionID string) (bool, error) {
	m.lastSessionID = sessionID
	return m.ok, m.err
}

func (m *mockMemory) DeleteStoryMemory(ctx context.Context, sessionID string) (bool, error) {
	m.lastSessionID = sessionID
	return m.ok, m.err
}

func (m *mockMemory) GetMemoryStats(ctx context.Context) (memory.Stats, error) {
	return m.statsResult, m.err
}

func TestInitializeStoryFromPack(t *testing.T) {
	mem := &mockMemory{initResult: memory.InitResult{SessionID: "7", MemoryInitialized: true}}
	var requested string
	server := NewServer(mem, func(id string) (*config.Pack, error) {
		requested = id
		return &config.Pack{ID: id, Character: "Holmes"}, nil
	}, "test")

	_, output, err := server.handleInitializeStory(context.Background(), nil, InitializeStoryInput{PackID: "baker-street"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.SessionID != "7" || !output.MemoryInitialized {
		t.Fatalf("unexpected init output: %+v", output)
	}
	if requested != "baker-street" || mem.lastPack.Character != "Holmes" {
		t.Fatalf("unexpected pack lookup: %q %+v", requested, mem.lastPack)
	}
}

func TestInitializeStoryInline(t *testing.T) {
	tests := []struct {
		name    string
		input   InitializeStoryInput
		wantErr bool
	}{
		{name: "missing character", input: InitializeStoryInput{Title: "A Study"}, wantErr: true},
		{
			name: "duplicate cast",
			input: InitializeStoryInput{
				Character: "Holmes",
				Cast:      []config.CastMember{{Name: "Watson"}, {Name: "watson"}},
			},
			wantErr: true,
		},
		{
			name: "valid",
			input: InitializeStoryInput{
				Character: "Holmes",
				Cast:      []config.CastMember{{Name: "Watson"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := &mockMemory{}
			server := NewServer(mem, nil, "test")
			_, _, err := server.handleInitializeStory(context.Background(), nil, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if mem.lastPack != nil {
					t.Fatal("memory must not be called for an invalid pack")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mem.lastPack.Cast[0].Role != "supporting" {
				t.Fatalf("expected default role, got %+v", mem.lastPack.Cast)
			}
		})
	}
}

func TestInitializeStoryWithoutPacks(t *testing.T) {
	server := NewServer(&mockMemory{}, nil, "test")
	if _, _, err := server.handleInitializeStory(context.Background(), nil, InitializeStoryInput{PackID: "x"}); err == nil {
		t.Fatal("expected error without a pack loader")
	}
}

func TestRecordMemory(t *testing.T) {
	mem := &mockMemory{recordResult: memory.Recorded{EventID: "3", Type: store.EventCharacterDeath}}
	server := NewServer(mem, nil, "test")

	_, output, err := server.handleRecordMemory(context.Background(), nil, RecordMemoryInput{
		Description: "Moran falls at the falls",
		Scene:       5,
		Importance:  4,
		Characters: []ParticipantInput{
			{Name: "Watson", State: "injured", Relationship: store.RelationshipDelta{Trust: 5}},
		},
		Victims: []string{"Moran"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.EventID != "3" {
		t.Fatalf("unexpected record output: %+v", output)
	}
	p := mem.lastProposal
	if p.Scene != 5 || p.Importance != store.ImportanceCritical || p.Victims[0] != "Moran" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	if len(p.Characters) != 1 || p.Characters[0].State != store.StateInjured || p.Characters[0].Relationship.Trust != 5 {
		t.Fatalf("unexpected participants: %+v", p.Characters)
	}
}

func TestRecordMemoryValidation(t *testing.T) {
	tests := []struct {
		name  string
		input RecordMemoryInput
	}{
		{name: "missing description", input: RecordMemoryInput{}},
		{name: "importance out of range", input: RecordMemoryInput{Description: "x", Importance: 9}},
		{name: "unknown state", input: RecordMemoryInput{Description: "x", Characters: []ParticipantInput{{Name: "Watson", State: "asleep"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&mockMemory{}, nil, "test")
			if _, _, err := server.handleRecordMemory(context.Background(), nil, tt.input); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGetStoryContext(t *testing.T) {
	rel := store.NewRelationship("1", "Holmes", "Watson")
	rel.Apply(store.RelationshipDelta{Affection: 30, Trust: 30, Respect: 30}, 2)
	mem := &mockMemory{contextResult: memory.StoryContext{
		FormattedContext: digest.Header,
		KeyEvents: []store.Event{{
			ID:         "9",
			Type:       store.EventCharacterDeath,
			Scene:      4,
			Importance: store.ImportanceCritical,
			Witnesses:  []string{"Lestrade"},
		}},
		Relationships: []store.Relationship{rel},
	}}
	server := NewServer(mem, nil, "test")

	result, output, err := server.handleGetStoryContext(context.Background(), nil, GetStoryContextInput{Budget: 900, MaxRecent: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.FormattedContext != digest.Header {
		t.Fatalf("unexpected context output: %+v", output)
	}
	if len(output.KeyEvents) != 1 || output.KeyEvents[0].Importance != "CRITICAL" || output.KeyEvents[0].Type != "character_death" {
		t.Fatalf("unexpected key events: %+v", output.KeyEvents)
	}
	if len(output.Relationships) != 1 || output.Relationships[0].Label != "Close" {
		t.Fatalf("unexpected relationships: %+v", output.Relationships)
	}
	text, ok := result.Content[0].(*sdk.TextContent)
	if !ok || text.Text != digest.Header {
		t.Fatalf("expected digest as text content, got %+v", result.Content)
	}
	if mem.lastOptions.Budget != 900 || mem.lastOptions.MaxRecent != 2 {
		t.Fatalf("unexpected options: %+v", mem.lastOptions)
	}
}

func TestSessionTools(t *testing.T) {
	mem := &mockMemory{ok: true}
	server := NewServer(mem, nil, "test")
	ctx := context.Background()

	if _, _, err := server.handleLoadStoryMemory(ctx, nil, SessionInput{}); err == nil {
		t.Fatal("expected error for empty session id")
	}
	_, out, err := server.handleLoadStoryMemory(ctx, nil, SessionInput{SessionID: "4"})
	if err != nil || !out.OK || mem.lastSessionID != "4" {
		t.Fatalf("load: %+v %v", out, err)
	}
	_, out, err = server.handleDeleteStoryMemory(ctx, nil, SessionInput{SessionID: "5"})
	if err != nil || !out.OK || mem.lastSessionID != "5" {
		t.Fatalf("delete: %+v %v", out, err)
	}
	if _, out, err = server.handleSaveStoryMemory(ctx, nil, SaveStoryMemoryInput{}); err != nil || !out.OK {
		t.Fatalf("save: %+v %v", out, err)
	}
}

func TestToolsPropagateErrors(t *testing.T) {
	mem := &mockMemory{err: memory.ErrNoSession}
	server := NewServer(mem, nil, "test")

	_, _, err := server.handleGetMemoryStats(context.Background(), nil, GetMemoryStatsInput{})
	if !errors.Is(err, memory.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
