package store

import "testing"

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		a, b         string
		wantA, wantB string
	}{
		{"Watson", "Holmes", "Holmes", "Watson"},
		{"holmes", "Watson", "holmes", "Watson"},
		{"adler", "Adams", "Adams", "adler"},
	}
	for _, tt := range tests {
		a, b := NormalizePair(tt.a, tt.b)
		if a != tt.wantA || b != tt.wantB {
			t.Errorf("NormalizePair(%q, %q) = %q, %q; want %q, %q", tt.a, tt.b, a, b, tt.wantA, tt.wantB)
		}
	}
	if PairKey("Watson", "Holmes") != PairKey("holmes", "WATSON") {
		t.Fatal("pair key must not depend on order or case")
	}
}

func TestRelationshipApply(t *testing.T) {
	r := NewRelationship("s1", "Watson", "Holmes")
	if r.CharacterA != "Holmes" || r.Type != BaselineType || r.Trust != BaselineTrust || r.Fear != 0 {
		t.Fatalf("unexpected baseline: %+v", r)
	}

	r.Apply(RelationshipDelta{Trust: 5}, 1)
	r.Apply(RelationshipDelta{Trust: 3}, 2)
	if r.Trust != BaselineTrust+8 {
		t.Fatalf("expected trust %d, got %d", BaselineTrust+8, r.Trust)
	}
	if r.InteractionCount != 2 || r.LastInteractionScene != 2 {
		t.Fatalf("expected 2 interactions at scene 2, got %d at %d", r.InteractionCount, r.LastInteractionScene)
	}

	r.Apply(RelationshipDelta{Affection: 90, Fear: -20, Rivalry: 250, Type: "ally"}, 1)
	if r.Affection != 100 || r.Fear != 0 || r.Rivalry != 100 {
		t.Fatalf("expected clamped axes, got %+v", r)
	}
	if r.Type != "ally" {
		t.Fatalf("expected type replaced, got %s", r.Type)
	}
	if r.LastInteractionScene != 2 {
		t.Fatalf("older scene must not move last interaction back, got %d", r.LastInteractionScene)
	}
}

func TestRelationshipScore(t *testing.T) {
	r := Relationship{CharacterA: "Holmes", CharacterB: "Watson", Affection: 90, Trust: 80, Respect: 70, Fear: 30}
	if got := r.Score(); got != 70 {
		t.Fatalf("expected score 70, got %v", got)
	}
	if !r.Involves("watson") || r.Involves("Lestrade") {
		t.Fatal("unexpected involvement")
	}
}
