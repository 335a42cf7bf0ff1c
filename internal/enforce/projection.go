package enforce

import (
	"sort"

	"chronicle/internal/store"
)

// Rejection is a state change a replay refused to apply.
type Rejection struct {
	EventID string
	Name    string
	State   store.CharacterState
}

// Projection rebuilds character and relationship state in memory by
// replaying events with the same rules the live enforcer uses.
type Projection struct {
	player   string
	chars    map[string]*store.Character
	rels     map[string]*store.Relationship
	Rejected []Rejection
}

func NewProjection(player string, cast ...string) *Projection {
	p := &Projection{
		player: player,
		chars:  make(map[string]*store.Character),
		rels:   make(map[string]*store.Relationship),
	}
	p.ensure(player, store.RolePlayer, 0)
	for _, name := range cast {
		p.ensure(name, store.RoleNPC, 0)
	}
	return p
}

// Replay applies events in order. Events whose change metadata cannot be
// decoded still count for witnesses and deaths; their errors are returned.
func Replay(player string, cast []string, events []store.Event) (*Projection, []error) {
	p := NewProjection(player, cast...)
	var errs []error
	for _, e := range events {
		if err := p.Apply(e); err != nil {
			errs = append(errs, err)
		}
	}
	return p, errs
}

func (p *Projection) ensure(name string, role store.Role, scene int) *store.Character {
	key := store.NormalizeName(name)
	if c, ok := p.chars[key]; ok {
		return c
	}
	c := &store.Character{Name: name, Role: role, State: store.StateAlive, LastSeenScene: scene}
	p.chars[key] = c
	return c
}

func (p *Projection) setState(name string, state store.CharacterState, scene int) bool {
	c := p.ensure(name, store.RoleNPC, scene)
	if store.CheckTransition(name, c.State, state) != nil {
		return false
	}
	c.LastSeenScene = store.SeenScene(c.State, state, c.LastSeenScene, scene)
	c.State = state
	return true
}

func (p *Projection) Apply(e store.Event) error {
	change, err := ChangeOf(e)
	pl := planFor(p.player, e, change)

	for _, name := range pl.create {
		p.ensure(name, store.RoleNPC, e.Scene)
	}
	for _, name := range pl.deaths {
		p.setState(name, store.StateDead, e.Scene)
	}
	for _, sc := range pl.states {
		if !p.setState(sc.name, sc.state, e.Scene) {
			p.Rejected = append(p.Rejected, Rejection{EventID: e.ID, Name: sc.name, State: sc.state})
		}
	}
	for _, name := range pl.touch {
		c := p.ensure(name, store.RoleNPC, e.Scene)
		if c.State != store.StateDead {
			c.LastSeenScene = max(c.LastSeenScene, e.Scene)
		}
	}
	for _, dc := range pl.deltas {
		key := store.PairKey(p.player, dc.name)
		r, ok := p.rels[key]
		if !ok {
			fresh := store.NewRelationship(e.SessionID, p.player, dc.name)
			r = &fresh
			p.rels[key] = r
		}
		r.Apply(dc.delta, e.Scene)
	}
	return err
}

// Character returns the projected state of one character.
func (p *Projection) Character(name string) (store.Character, bool) {
	c, ok := p.chars[store.NormalizeName(name)]
	if !ok {
		return store.Character{}, false
	}
	return *c, true
}

func (p *Projection) Characters() []store.Character {
	out := make([]store.Character, 0, len(p.chars))
	for _, c := range p.chars {
		out = append(out, *c)
	}
	store.SortCharacters(out)
	return out
}

func (p *Projection) Relationships() []store.Relationship {
	out := make([]store.Relationship, 0, len(p.rels))
	for _, r := range p.rels {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return store.PairKey(out[i].CharacterA, out[i].CharacterB) < store.PairKey(out[j].CharacterA, out[j].CharacterB)
	})
	return out
}
