package classify

import (
	"testing"

	"chronicle/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		in             Input
		wantType       store.EventType
		wantImportance store.Importance
	}{
		{
			name:           "death",
			in:             Input{Description: "The assassin kills Lestrade in the alley"},
			wantType:       store.EventCharacterDeath,
			wantImportance: store.ImportanceCritical,
		},
		{
			name:           "death beats discovery",
			in:             Input{Description: "You discover the secret: the butler was murdered"},
			wantType:       store.EventCharacterDeath,
			wantImportance: store.ImportanceCritical,
		},
		{
			name:           "betrayal",
			in:             Input{Description: "Moran betrays the Professor to the police"},
			wantType:       store.EventBetrayal,
			wantImportance: store.ImportanceHigh,
		},
		{
			name:           "romance",
			in:             Input{PlayerAction: "I kiss Irene goodbye"},
			wantType:       store.EventRomance,
			wantImportance: store.ImportanceHigh,
		},
		{
			name:           "discovery",
			in:             Input{Description: "You discover a hidden letter revealing the truth"},
			wantType:       store.EventDiscovery,
			wantImportance: store.ImportanceHigh,
		},
		{
			name:           "conflict",
			in:             Input{Description: "A street fight breaks out"},
			wantType:       store.EventConflict,
			wantImportance: store.ImportanceMedium,
		},
		{
			name:           "conflict elevated by participants",
			in:             Input{Description: "Watson and Lestrade argue", Participants: []string{"Watson", "Lestrade"}},
			wantType:       store.EventConflict,
			wantImportance: store.ImportanceHigh,
		},
		{
			name:           "critical never downgraded",
			in:             Input{Description: "Moriarty dies", Participants: []string{"Holmes", "Moriarty"}},
			wantType:       store.EventCharacterDeath,
			wantImportance: store.ImportanceCritical,
		},
		{
			name:           "single participant interaction",
			in:             Input{Description: "You share tea with Mrs Hudson", Participants: []string{"Hudson"}},
			wantType:       store.EventCharacterInteraction,
			wantImportance: store.ImportanceMedium,
		},
		{
			name:           "interaction elevated",
			in:             Input{Description: "Tea at Baker Street", Participants: []string{"Hudson", "Watson"}},
			wantType:       store.EventCharacterInteraction,
			wantImportance: store.ImportanceHigh,
		},
		{
			name:           "duplicate participants count once",
			in:             Input{Description: "Tea", Participants: []string{"Hudson", "hudson"}},
			wantType:       store.EventCharacterInteraction,
			wantImportance: store.ImportanceMedium,
		},
		{
			name:           "default",
			in:             Input{Description: "You take the night train to Dartmoor"},
			wantType:       store.EventMajorDecision,
			wantImportance: store.ImportanceMedium,
		},
		{
			name:           "word boundaries",
			in:             Input{Description: "A skillful locksmith opens the lovely cabinet"},
			wantType:       store.EventMajorDecision,
			wantImportance: store.ImportanceMedium,
		},
		{
			name:           "explicit importance without keyword",
			in:             Input{Description: "You take the night train", Importance: store.ImportanceLow},
			wantType:       store.EventMajorDecision,
			wantImportance: store.ImportanceLow,
		},
		{
			name:           "keyword overrides explicit importance",
			in:             Input{Description: "Lestrade is killed", Importance: store.ImportanceLow},
			wantType:       store.EventCharacterDeath,
			wantImportance: store.ImportanceCritical,
		},
		{
			name:           "explicit importance is not elevated",
			in:             Input{Description: "Tea", Participants: []string{"Hudson", "Watson"}, Importance: store.ImportanceLow},
			wantType:       store.EventCharacterInteraction,
			wantImportance: store.ImportanceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s (rule %s)", got.Type, tt.wantType, got.Rule)
			}
			if got.Importance != tt.wantImportance {
				t.Errorf("importance = %s, want %s", got.Importance, tt.wantImportance)
			}
		})
	}
}
