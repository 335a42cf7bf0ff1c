package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/memory"
)

// Memory is the part of memory.System the tools call.
type Memory interface {
	InitializeStory(ctx context.Context, pack *config.Pack) (memory.InitResult, error)
	RecordMemory(ctx context.Context, p memory.Proposal) (memory.Recorded, error)
	GetStoryContext(ctx context.Context, opts digest.Options) (memory.StoryContext, error)
	SaveStoryMemory(ctx context.Context) (bool, error)
	LoadStoryMemory(ctx context.Context, sessionID string) (bool, error)
	DeleteStoryMemory(ctx context.Context, sessionID string) (bool, error)
	GetMemoryStats(ctx context.Context) (memory.Stats, error)
}

// PackLoader resolves a character pack by id.
type PackLoader func(id string) (*config.Pack, error)

type Server struct {
	memory Memory
	packs  PackLoader
	mcp    *sdk.Server
}

func NewServer(mem Memory, packs PackLoader, version string) *Server {
	s := &Server{
		memory: mem,
		packs:  packs,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "chronicle",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
