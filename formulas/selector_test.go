package formulas

import (
	"errors"
	"testing"
)

// TestBranchKeyFor verifies how patient answers map onto branch keys
func TestBranchKeyFor(t *testing.T) {
	tests := []struct {
		name      string
		ownEggs   bool
		attempted *bool
		known     bool
		want      BranchKey
	}{
		{"own eggs first cycle", true, boolPtr(false), true, BranchKey{true, PriorAttemptNo, true}},
		{"own eggs repeat cycle", true, boolPtr(true), false, BranchKey{true, PriorAttemptYes, false}},
		{"own eggs unanswered", true, nil, true, BranchKey{true, PriorAttemptNotApplicable, true}},
		{"donor eggs unanswered", false, nil, true, BranchKey{false, PriorAttemptNotApplicable, true}},
		{"donor eggs attempted", false, boolPtr(true), false, BranchKey{false, PriorAttemptNotApplicable, false}},
		{"donor eggs not attempted", false, boolPtr(false), true, BranchKey{false, PriorAttemptNotApplicable, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Patient{UsingOwnEggs: tt.ownEggs, AttemptedIVFPreviously: tt.attempted, ReasonKnown: tt.known}
			if got := BranchKeyFor(p); got != tt.want {
				t.Errorf("BranchKeyFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSelectEveryBranch verifies each fixture row is reachable by exactly its own key
func TestSelectEveryBranch(t *testing.T) {
	formulas := loadFixture(t)

	for _, f := range formulas {
		t.Run(f.Label, func(t *testing.T) {
			p := Patient{UsingOwnEggs: f.Key.UsingOwnEggs, ReasonKnown: f.Key.ReasonKnown}
			switch f.Key.PriorAttempt {
			case PriorAttemptYes:
				p.AttemptedIVFPreviously = boolPtr(true)
			case PriorAttemptNo:
				p.AttemptedIVFPreviously = boolPtr(false)
			}

			got, err := Select(formulas, p)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if got.Label != f.Label {
				t.Errorf("Expected %s, got %s", f.Label, got.Label)
			}
		})
	}
}

// TestSelectDeterministic verifies the same patient always selects the same row
func TestSelectDeterministic(t *testing.T) {
	formulas := loadFixture(t)
	p := referencePatient()

	first, err := Select(formulas, p)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := Select(formulas, p)
		if err != nil || got.Label != first.Label {
			t.Fatalf("Selection %d changed: %s, %v", i, got.Label, err)
		}
	}
}

// TestSelectNoMatch verifies an unanswered own-egg attempt never falls back to another row
func TestSelectNoMatch(t *testing.T) {
	p := referencePatient()
	p.AttemptedIVFPreviously = nil

	_, err := Select(loadFixture(t), p)

	var noMatch *NoMatchingFormulaError
	if !errors.As(err, &noMatch) {
		t.Fatalf("Expected *NoMatchingFormulaError, got %v", err)
	}
	if noMatch.Key.PriorAttempt != PriorAttemptNotApplicable {
		t.Errorf("Expected N/A attempt in key, got %v", noMatch.Key.PriorAttempt)
	}
}

// TestSelectEmptyTable verifies selection from no rows fails cleanly
func TestSelectEmptyTable(t *testing.T) {
	_, err := Select(nil, referencePatient())

	var noMatch *NoMatchingFormulaError
	if !errors.As(err, &noMatch) {
		t.Fatalf("Expected *NoMatchingFormulaError, got %v", err)
	}
}
