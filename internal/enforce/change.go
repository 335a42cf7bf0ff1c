package enforce

import (
	"encoding/json"
	"fmt"
	"sort"

	"chronicle/internal/store"
)

// Change is the state effect an event carries in its metadata. Keeping it
// on the event makes character and relationship rows replayable.
type Change struct {
	Victims []string                           `json:"victims,omitempty"`
	States  map[string]store.CharacterState    `json:"participant_states,omitempty"`
	Deltas  map[string]store.RelationshipDelta `json:"relationship_deltas,omitempty"`
}

var changeKeys = []string{"victims", "participant_states", "relationship_deltas"}

// Attach writes the change into event metadata, replacing earlier keys.
func (c Change) Attach(meta map[string]any) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	for _, k := range changeKeys {
		delete(meta, k)
	}
	if len(c.Victims) > 0 {
		meta["victims"] = c.Victims
	}
	if len(c.States) > 0 {
		meta["participant_states"] = c.States
	}
	if len(c.Deltas) > 0 {
		meta["relationship_deltas"] = c.Deltas
	}
	return meta
}

// ChangeOf reads the change back from a stored event.
func ChangeOf(e store.Event) (Change, error) {
	var c Change
	if len(e.Metadata) == 0 {
		return c, nil
	}
	sub := make(map[string]any, len(changeKeys))
	for _, k := range changeKeys {
		if v, ok := e.Metadata[k]; ok {
			sub[k] = v
		}
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return c, fmt.Errorf("encoding change of event %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Change{}, fmt.Errorf("event %s change: %w: %w", e.ID, store.ErrMalformedEmbeddedData, err)
	}
	return c, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
