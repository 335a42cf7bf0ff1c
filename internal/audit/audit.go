// Package audit replays a session's event log and reports where the
// stored character and relationship rows disagree with it.
package audit

import (
	"context"
	"fmt"

	"chronicle/internal/enforce"
	"chronicle/internal/store"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeResurrected       = "resurrected_character"
	codeUnexplainedDeath  = "unexplained_death"
	codeStateDrift        = "state_drift"
	codeMissingCharacter  = "missing_character"
	codeDuplicateName     = "duplicate_name"
	codeRelationshipDrift = "relationship_drift"
	codeRejectedChange    = "rejected_change"
	codeMalformedChange   = "malformed_change"
)

type Issue struct {
	Severity  Severity
	Code      string
	Message   string
	Character string
	EventID   string
}

type Report struct {
	SessionID string
	Events    int
	Issues    []Issue
}

// Errors counts issues of error severity.
func (r *Report) Errors() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}

func Run(ctx context.Context, src Source, sessionID string) (*Report, error) {
	if src == nil {
		return nil, fmt.Errorf("store is required")
	}

	session, err := src.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	chars, err := src.GetCharactersBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	events, err := src.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	issues := make([]Issue, 0)
	issues = append(issues, duplicateNames(chars)...)

	var cast []string
	for _, c := range chars {
		if store.NormalizeName(c.Name) != store.NormalizeName(session.CharacterName) {
			cast = append(cast, c.Name)
		}
	}
	proj, replayErrs := enforce.Replay(session.CharacterName, cast, events)
	for _, err := range replayErrs {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Code:     codeMalformedChange,
			Message:  err.Error(),
		})
	}
	for _, r := range proj.Rejected {
		issues = append(issues, Issue{
			Severity:  SeverityWarn,
			Code:      codeRejectedChange,
			Message:   fmt.Sprintf("event asked for %s to become %s", r.Name, r.State),
			Character: r.Name,
			EventID:   r.EventID,
		})
	}

	issues = append(issues, compareCharacters(chars, proj)...)

	if src.Capabilities().Relationships {
		rels, err := src.GetRelationships(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list relationships: %w", err)
		}
		issues = append(issues, compareRelationships(rels, proj.Relationships())...)
	}

	return &Report{SessionID: sessionID, Events: len(events), Issues: issues}, nil
}

func duplicateNames(chars []store.Character) []Issue {
	var issues []Issue
	seen := make(map[string]string)
	for _, c := range chars {
		key := store.NormalizeName(c.Name)
		if first, ok := seen[key]; ok {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      codeDuplicateName,
				Message:   fmt.Sprintf("duplicate character name (also stored as %s)", first),
				Character: c.Name,
			})
			continue
		}
		seen[key] = c.Name
	}
	return issues
}

func compareCharacters(chars []store.Character, proj *enforce.Projection) []Issue {
	var issues []Issue
	stored := make(map[string]bool, len(chars))
	for _, c := range chars {
		stored[store.NormalizeName(c.Name)] = true
		want, ok := proj.Character(c.Name)
		if !ok {
			continue
		}
		switch {
		case c.State == want.State:
		case want.State == store.StateDead:
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      codeResurrected,
				Message:   fmt.Sprintf("stored as %s but the event log killed them", c.State),
				Character: c.Name,
			})
		case c.State == store.StateDead:
			issues = append(issues, Issue{
				Severity:  SeverityWarn,
				Code:      codeUnexplainedDeath,
				Message:   fmt.Sprintf("stored as dead but the event log leaves them %s", want.State),
				Character: c.Name,
			})
		default:
			issues = append(issues, Issue{
				Severity:  SeverityWarn,
				Code:      codeStateDrift,
				Message:   fmt.Sprintf("stored as %s, replay gives %s", c.State, want.State),
				Character: c.Name,
			})
		}
	}

	for _, c := range proj.Characters() {
		if !stored[store.NormalizeName(c.Name)] {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      codeMissingCharacter,
				Message:   "named by events but has no character row",
				Character: c.Name,
			})
		}
	}
	return issues
}

func compareRelationships(stored, projected []store.Relationship) []Issue {
	var issues []Issue
	want := make(map[string]store.Relationship, len(projected))
	for _, r := range projected {
		want[store.PairKey(r.CharacterA, r.CharacterB)] = r
	}
	for _, r := range stored {
		key := store.PairKey(r.CharacterA, r.CharacterB)
		p, ok := want[key]
		delete(want, key)
		if !ok {
			issues = append(issues, relationshipIssue(r, "stored without any interaction in the event log"))
			continue
		}
		if axes(r) != axes(p) || r.InteractionCount != p.InteractionCount {
			issues = append(issues, relationshipIssue(r, fmt.Sprintf(
				"stored %v after %d interactions, replay gives %v after %d",
				axes(r), r.InteractionCount, axes(p), p.InteractionCount)))
		}
	}
	for _, p := range want {
		issues = append(issues, relationshipIssue(p, "event log has interactions but no stored relationship"))
	}
	return issues
}

func axes(r store.Relationship) [6]int {
	return [6]int{r.Affection, r.Trust, r.Respect, r.Fear, r.Romance, r.Rivalry}
}

func relationshipIssue(r store.Relationship, message string) Issue {
	return Issue{
		Severity:  SeverityWarn,
		Code:      codeRelationshipDrift,
		Message:   message,
		Character: r.CharacterA + " & " + r.CharacterB,
	}
}
