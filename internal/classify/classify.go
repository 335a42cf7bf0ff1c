// Package classify tags an event proposal with a type and importance using
// ordered keyword rules. The first rule that matches wins.
package classify

import (
	"regexp"
	"strings"

	"chronicle/internal/store"
)

type Input struct {
	Description  string
	PlayerAction string
	Participants []string
	// Importance is the caller's own rating. It only applies when no
	// keyword rule fires.
	Importance store.Importance
}

type Result struct {
	Type       store.EventType
	Importance store.Importance
	Rule       string
}

type rule struct {
	name       string
	pattern    *regexp.Regexp
	eventType  store.EventType
	importance store.Importance
}

func words(stems ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + strings.Join(stems, "|") + `)\b`)
}

var rules = []rule{
	{
		name:       "death",
		pattern:    words(`dies`, `died`, `dead`, `death`, `deaths`, `dying`, `kill(?:s|ed|ing|er)?`, `murder(?:s|ed|ing|er)?`, `slain`, `slay(?:s|ed)?`, `perish(?:es|ed)?`),
		eventType:  store.EventCharacterDeath,
		importance: store.ImportanceCritical,
	},
	{
		name:       "betrayal",
		pattern:    words(`betray(?:s|ed|al|ing)?`, `traitor(?:s|ous)?`, `treacher(?:y|ous)`, `double-cross(?:es|ed)?`, `backstab(?:s|bed|bing)?`),
		eventType:  store.EventBetrayal,
		importance: store.ImportanceHigh,
	},
	{
		name:       "romance",
		pattern:    words(`love(?:s|d)?`, `kiss(?:es|ed|ing)?`, `romance`, `romantic`, `embrace(?:s|d)?`, `courtship`, `beloved`),
		eventType:  store.EventRomance,
		importance: store.ImportanceHigh,
	},
	{
		name:       "discovery",
		pattern:    words(`discover(?:s|ed|y|ies)?`, `secret(?:s)?`, `hidden`, `reveal(?:s|ed|ing)?`, `truth`, `uncover(?:s|ed)?`),
		eventType:  store.EventDiscovery,
		importance: store.ImportanceHigh,
	},
	{
		name:       "conflict",
		pattern:    words(`fight(?:s|ing)?`, `fought`, `attack(?:s|ed|ing)?`, `battle(?:s|d)?`, `duel(?:s|led)?`, `argue(?:s|d)?`, `argument`, `confront(?:s|ed|ation)?`, `threat(?:en|ens|ened)?`),
		eventType:  store.EventConflict,
		importance: store.ImportanceMedium,
	},
}

// MentionsDeath reports whether text carries a death cue.
func MentionsDeath(text string) bool {
	return rules[0].pattern.MatchString(strings.ToLower(text))
}

// Classify assigns a type and importance to an event proposal.
func Classify(in Input) Result {
	text := strings.ToLower(in.Description + " " + in.PlayerAction)

	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return elevate(Result{Type: r.eventType, Importance: r.importance, Rule: r.name}, in.Participants)
		}
	}

	if in.Importance.Valid() {
		if len(participants(in.Participants)) > 0 {
			return Result{Type: store.EventCharacterInteraction, Importance: in.Importance, Rule: "explicit"}
		}
		return Result{Type: store.EventMajorDecision, Importance: in.Importance, Rule: "explicit"}
	}

	if len(participants(in.Participants)) > 0 {
		return elevate(Result{Type: store.EventCharacterInteraction, Importance: store.ImportanceMedium, Rule: "interaction"}, in.Participants)
	}
	return Result{Type: store.EventMajorDecision, Importance: store.ImportanceMedium, Rule: "default"}
}

// elevate raises importance to at least HIGH when two or more characters
// take part. It never lowers it.
func elevate(r Result, names []string) Result {
	if len(participants(names)) >= 2 {
		r.Importance = max(r.Importance, store.ImportanceHigh)
	}
	return r
}

func participants(names []string) []string {
	return store.DedupeNames(names)
}
