// Package digest compiles the continuity block that precedes every
// generation request. The block is plain text with a fixed section order
// and a rune budget; lower priority sections are trimmed first.
package digest

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"chronicle/internal/store"
)

const (
	Header        = "=== STORY CONTINUITY (MANDATORY) ==="
	complianceMsg = "The facts below are canon for this story. Never contradict them."
	reminderMsg   = "REMINDER: dead characters cannot speak or act. Keep the next scene consistent with every fact above."

	DefaultBudget           = 6000
	DefaultMaxRelationships = 5
	DefaultMaxRecent        = 3
)

// Section names reported in Digest.Truncated.
const (
	SectionRecent        = "recent_events"
	SectionRelationships = "relationships"
	SectionCritical      = "critical_events"
)

type Options struct {
	Budget           int
	MaxRelationships int
	MaxRecent        int
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.MaxRelationships <= 0 {
		o.MaxRelationships = DefaultMaxRelationships
	}
	if o.MaxRecent <= 0 {
		o.MaxRecent = DefaultMaxRecent
	}
	return o
}

type Input struct {
	Session       *store.Session
	Characters    []store.Character
	Critical      []store.Event
	Recent        []store.Event
	Relationships []store.Relationship
	Capabilities  store.Capabilities
}

type Digest struct {
	Text string
	// Truncated lists the sections that lost entries, in trim order.
	Truncated []string
}

// Len is the digest size in runes.
func (d Digest) Len() int {
	return utf8.RuneCountInString(d.Text)
}

type section struct {
	name    string
	title   string
	entries []string
	footer  []string
	empty   string
	dropped bool
}

func (s *section) lines() []string {
	if s.dropped {
		return nil
	}
	out := []string{s.title}
	out = append(out, s.entries...)
	if len(s.entries) == 0 && s.empty != "" {
		out = append(out, s.empty)
	}
	return append(out, s.footer...)
}

// Compile renders the digest. Header, character states and the closing
// reminder survive any budget.
func Compile(in Input, opts Options) Digest {
	opts = opts.withDefaults()

	player := ""
	if in.Session != nil {
		player = in.Session.CharacterName
	}
	dead := deadSet(in.Characters)

	header := &section{title: Header, footer: []string{complianceMsg}}
	critical := &section{
		name:    SectionCritical,
		title:   "CRITICAL EVENTS:",
		entries: criticalEntries(in.Critical),
		empty:   "- none recorded yet",
	}
	states := &section{title: "CHARACTER STATES:"}
	states.entries, states.footer = stateEntries(in.Characters, player)
	if len(states.entries) == 0 {
		states.empty = "- no other characters yet"
	}

	rels := &section{name: SectionRelationships, title: "KEY RELATIONSHIPS:"}
	if in.Capabilities.Relationships {
		rels.entries = relationshipEntries(in.Relationships, dead, opts.MaxRelationships)
	}
	rels.dropped = len(rels.entries) == 0

	recent := &section{name: SectionRecent, title: "RECENT EVENTS:", entries: recentEntries(in.Recent, opts.MaxRecent)}
	recent.dropped = len(recent.entries) == 0

	var reminder *section
	if len(in.Critical)+len(in.Recent) > 0 {
		reminder = &section{title: reminderMsg}
	}

	sections := []*section{header, critical, states, rels, recent}
	if reminder != nil {
		sections = append(sections, reminder)
	}

	var d Digest
	text := render(sections)
	for _, s := range []*section{recent, rels, critical} {
		trimmed := false
		for !s.dropped && len(s.entries) > 0 && utf8.RuneCountInString(text) > opts.Budget {
			// entries are newest or strongest first
			s.entries = s.entries[:len(s.entries)-1]
			if len(s.entries) == 0 {
				if s == critical {
					s.empty = ""
				} else {
					s.dropped = true
				}
			}
			trimmed = true
			text = render(sections)
		}
		if trimmed {
			d.Truncated = append(d.Truncated, s.name)
		}
	}
	d.Text = text
	return d
}

func render(sections []*section) string {
	blocks := make([]string, 0, len(sections))
	for _, s := range sections {
		if lines := s.lines(); len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func deadSet(chars []store.Character) map[string]bool {
	dead := make(map[string]bool)
	for _, c := range chars {
		if c.State == store.StateDead {
			dead[store.NormalizeName(c.Name)] = true
		}
	}
	return dead
}

func criticalEntries(events []store.Event) []string {
	evs := make([]store.Event, 0, len(events))
	for _, e := range events {
		if e.Importance >= store.ImportanceHigh {
			evs = append(evs, e)
		}
	}
	store.SortEventsNewestFirst(evs)

	out := make([]string, 0, len(evs))
	for _, e := range evs {
		var b strings.Builder
		fmt.Fprintf(&b, "- [%s] Scene %d: ", e.Importance, e.Scene)
		if e.Type == store.EventCharacterDeath {
			b.WriteString("[CHARACTER DEAD] ")
		}
		b.WriteString(summary(e))
		if len(e.Witnesses) > 0 {
			fmt.Fprintf(&b, " (witnesses: %s)", strings.Join(e.Witnesses, ", "))
		}
		out = append(out, b.String())
	}
	return out
}

var stateIcons = map[store.CharacterState]string{
	store.StateAlive:   "🟢",
	store.StateInjured: "🩹",
	store.StateMissing: "❓",
	store.StateDead:    "💀",
}

func stateEntries(chars []store.Character, player string) (entries, footer []string) {
	cast := make([]store.Character, 0, len(chars))
	for _, c := range chars {
		if c.Role == store.RolePlayer || store.NormalizeName(c.Name) == store.NormalizeName(player) {
			continue
		}
		cast = append(cast, c)
	}
	store.SortCharacters(cast)

	var available []string
	for _, c := range cast {
		icon := stateIcons[c.State]
		if icon == "" {
			icon = "•"
		}
		if c.State == store.StateDead {
			entries = append(entries, fmt.Sprintf("- %s %s: DEAD - CANNOT INTERACT OR SPEAK", icon, c.Name))
			continue
		}
		if c.State == store.StateAlive || c.State == store.StateInjured {
			available = append(available, c.Name)
		}
		line := fmt.Sprintf("- %s %s: %s", icon, c.Name, c.State)
		if c.Emotion != "" && c.Emotion != store.DefaultEmotion {
			line += fmt.Sprintf(", feeling %s", c.Emotion)
		}
		entries = append(entries, line)
	}
	if len(cast) == 0 {
		return nil, nil
	}
	if len(available) == 0 {
		return entries, []string{"Available to interact: none"}
	}
	return entries, []string{"Available to interact: " + strings.Join(available, ", ")}
}

// Label buckets a relationship score.
func Label(r store.Relationship) string {
	switch score := r.Score(); {
	case score > 60:
		return "Close"
	case score < 40:
		return "Tense"
	default:
		return "Neutral"
	}
}

func relationshipEntries(rels []store.Relationship, dead map[string]bool, limit int) []string {
	live := make([]store.Relationship, 0, len(rels))
	for _, r := range rels {
		if dead[store.NormalizeName(r.CharacterA)] || dead[store.NormalizeName(r.CharacterB)] {
			continue
		}
		live = append(live, r)
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].InteractionCount != live[j].InteractionCount {
			return live[i].InteractionCount > live[j].InteractionCount
		}
		if live[i].LastInteractionScene != live[j].LastInteractionScene {
			return live[i].LastInteractionScene > live[j].LastInteractionScene
		}
		return store.PairKey(live[i].CharacterA, live[i].CharacterB) < store.PairKey(live[j].CharacterA, live[j].CharacterB)
	})
	if len(live) > limit {
		live = live[:limit]
	}

	out := make([]string, 0, len(live))
	for _, r := range live {
		noun := "interactions"
		if r.InteractionCount == 1 {
			noun = "interaction"
		}
		detail := fmt.Sprintf("%d %s", r.InteractionCount, noun)
		if r.Type != "" {
			detail = r.Type + ", " + detail
		}
		out = append(out, fmt.Sprintf("- %s & %s: %s (%s)", r.CharacterA, r.CharacterB, Label(r), detail))
	}
	return out
}

func recentEntries(events []store.Event, limit int) []string {
	evs := append([]store.Event(nil), events...)
	store.SortEventsNewestFirst(evs)
	if len(evs) > limit {
		evs = evs[:limit]
	}
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		line := fmt.Sprintf("- Scene %d: %s", e.Scene, summary(e))
		if e.PlayerAction != "" {
			line += fmt.Sprintf(" (player: %s)", e.PlayerAction)
		}
		out = append(out, line)
	}
	return out
}

func summary(e store.Event) string {
	if s := strings.TrimSpace(e.Description); s != "" {
		return s
	}
	if s := strings.TrimSpace(e.Title); s != "" {
		return s
	}
	return string(e.Type)
}
