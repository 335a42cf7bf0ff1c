package enforce

import (
	"chronicle/internal/store"
)

type stateChange struct {
	name  string
	state store.CharacterState
}

type deltaChange struct {
	name  string
	delta store.RelationshipDelta
}

// plan is the ordered list of writes one event implies. Both the live
// enforcer and the replay projection follow it.
type plan struct {
	create []string
	deaths []string
	states []stateChange
	touch  []string
	deltas []deltaChange
}

func planFor(player string, e store.Event, c Change) plan {
	var p plan
	playerKey := store.NormalizeName(player)

	if e.Type == store.EventCharacterDeath {
		if len(c.Victims) > 0 {
			p.deaths = store.DedupeNames(c.Victims)
		} else {
			p.deaths = AttributeDeaths(e.Description, e.Witnesses)
		}
	}

	for _, name := range sortedKeys(c.States) {
		if store.NormalizeName(name) == "" {
			continue
		}
		p.states = append(p.states, stateChange{name: name, state: c.States[name]})
	}

	for _, name := range sortedKeys(c.Deltas) {
		key := store.NormalizeName(name)
		if key == "" || key == playerKey {
			continue
		}
		p.deltas = append(p.deltas, deltaChange{name: name, delta: c.Deltas[name]})
	}

	names := append([]string{}, e.Witnesses...)
	names = append(names, p.deaths...)
	for _, s := range p.states {
		names = append(names, s.name)
	}
	for _, d := range p.deltas {
		names = append(names, d.name)
	}
	for _, n := range store.DedupeNames(names) {
		if store.NormalizeName(n) != playerKey {
			p.create = append(p.create, n)
		}
	}

	p.touch = store.DedupeNames(e.Witnesses)
	return p
}
