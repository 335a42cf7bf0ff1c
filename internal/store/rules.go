package store

import (
	"fmt"
	"sort"
	"strings"
)

// CheckTransition rejects any transition out of the dead state.
func CheckTransition(name string, from, to CharacterState) error {
	if !to.Valid() {
		return fmt.Errorf("unknown character state %q", to)
	}
	if from == StateDead && to != StateDead {
		return fmt.Errorf("%w: %s is dead and cannot become %s", ErrInvariantViolation, name, to)
	}
	return nil
}

// SeenScene returns last_seen_scene after a transition from one state to
// another. A death pins the scene it happened in, even when an earlier scene
// is recorded late. The dead are never seen again.
func SeenScene(from, to CharacterState, stored, scene int) int {
	switch {
	case from == StateDead:
		return stored
	case to == StateDead:
		return scene
	}
	return max(stored, scene)
}

// NormalizeEvent fills defaults and drops duplicate witnesses.
func NormalizeEvent(in EventInput) EventInput {
	if in.Type == "" {
		in.Type = EventMajorDecision
	}
	if !in.Importance.Valid() {
		in.Importance = max(ImportanceLow, min(ImportanceCritical, in.Importance))
	}
	if in.Scene < 0 {
		in.Scene = 0
	}
	if in.EmotionalImpact == nil {
		in.EmotionalImpact = map[string]any{}
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	in.Witnesses = DedupeNames(in.Witnesses)
	return in
}

// DedupeNames trims names and removes case-insensitive duplicates,
// keeping first-seen order.
func DedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := NormalizeName(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// SortCharacters orders by role (player, supporting, npc) then name.
func SortCharacters(chars []Character) {
	sort.SliceStable(chars, func(i, j int) bool {
		ri, rj := chars[i].Role.Rank(), chars[j].Role.Rank()
		if ri != rj {
			return ri < rj
		}
		return NormalizeName(chars[i].Name) < NormalizeName(chars[j].Name)
	})
}

// SortEventsNewestFirst orders by scene descending then creation
// descending. Input is expected in insertion order.
func SortEventsNewestFirst(events []Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Scene != events[j].Scene {
			return events[i].Scene > events[j].Scene
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

// SortEventsOldestFirst orders for replay: scene ascending, then creation.
// Input is expected in insertion order.
func SortEventsOldestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Scene != events[j].Scene {
			return events[i].Scene < events[j].Scene
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// AppendOnly reports whether stored records of c are never rewritten once
// written. Event history is immutable.
func AppendOnly(c Collection) bool {
	return c == CollectionEvents
}

// UpsertAssignment returns the ON CONFLICT assignment for col in c. A dead
// character keeps its state whatever the incoming record says.
func UpsertAssignment(c Collection, col string) string {
	if c == CollectionCharacters && col == "state" {
		return fmt.Sprintf("state = CASE WHEN %s.state = '%s' THEN '%s' ELSE excluded.state END",
			c, StateDead, StateDead)
	}
	return fmt.Sprintf("%s = excluded.%s", col, col)
}

// MergeRecord overlays incoming onto stored with the same guards as
// UpsertAssignment.
func MergeRecord(c Collection, stored, incoming Record) Record {
	out := make(Record, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	if c == CollectionCharacters && fmt.Sprint(stored["state"]) == string(StateDead) {
		out["state"] = string(StateDead)
	}
	return out
}
