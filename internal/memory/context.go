package memory

import (
	"context"
	"fmt"

	"chronicle/internal/digest"
	"chronicle/internal/store"
)

type StoryContext struct {
	FormattedContext string               `json:"formatted_context"`
	KeyEvents        []store.Event        `json:"key_events"`
	Relationships    []store.Relationship `json:"relationships"`
	Characters       []store.Character    `json:"characters"`
	Truncated        []string             `json:"truncated,omitempty"`
	Degraded         bool                 `json:"degraded,omitempty"`
}

// GetStoryContext compiles the digest for the next generation call. Zero
// fields in opts fall back to the system's context options. Read failures
// leave their part empty and mark the result degraded.
func (s *System) GetStoryContext(ctx context.Context, opts digest.Options) (StoryContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store(ctx)
	if err != nil {
		return StoryContext{Degraded: true}, fmt.Errorf("compiling context: %w", err)
	}
	return s.storyContext(ctx, st, opts), nil
}

func (s *System) storyContext(ctx context.Context, st store.Store, opts digest.Options) StoryContext {
	opts = s.mergeOptions(opts)
	caps := st.Capabilities()

	var out StoryContext
	in := digest.Input{Session: s.session, Capabilities: caps}
	if s.session == nil {
		out.Degraded = true
		s.degrade("get_story_context", ErrNoSession)
	} else {
		id := s.session.ID
		var err error
		if in.Characters, err = st.GetCharactersBySession(ctx, id); err != nil {
			s.degrade("get_story_context", err, "session", id)
			out.Degraded = true
		}
		if in.Critical, err = st.GetCriticalEvents(ctx, id); err != nil {
			s.degrade("get_story_context", err, "session", id)
			out.Degraded = true
		}
		if in.Recent, err = st.GetRecentEvents(ctx, id, opts.MaxRecent); err != nil {
			s.degrade("get_story_context", err, "session", id)
			out.Degraded = true
		}
		if caps.Relationships {
			if in.Relationships, err = st.GetRelationships(ctx, id); err != nil {
				s.degrade("get_story_context", err, "session", id)
				out.Degraded = true
			}
		}
	}

	d := digest.Compile(in, opts)
	out.FormattedContext = d.Text
	out.Truncated = d.Truncated
	out.KeyEvents = nonNil(in.Critical)
	out.Relationships = nonNil(in.Relationships)
	out.Characters = nonNil(in.Characters)
	return out
}

func (s *System) mergeOptions(opts digest.Options) digest.Options {
	if opts.Budget <= 0 {
		opts.Budget = s.opts.Context.Budget
	}
	if opts.MaxRelationships <= 0 {
		opts.MaxRelationships = s.opts.Context.MaxRelationships
	}
	if opts.MaxRecent <= 0 {
		opts.MaxRecent = s.opts.Context.MaxRecent
	}
	if opts.MaxRecent <= 0 {
		opts.MaxRecent = digest.DefaultMaxRecent
	}
	return opts
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
