package formulas

// BranchKeyFor derives the lookup key for a patient.
// Donor-egg cycles have no previous-attempt branch, so the stored flag is ignored for them.
func BranchKeyFor(p Patient) BranchKey {
	attempt := PriorAttemptNotApplicable
	if p.UsingOwnEggs && p.AttemptedIVFPreviously != nil {
		if *p.AttemptedIVFPreviously {
			attempt = PriorAttemptYes
		} else {
			attempt = PriorAttemptNo
		}
	}

	return BranchKey{
		UsingOwnEggs: p.UsingOwnEggs,
		PriorAttempt: attempt,
		ReasonKnown:  p.ReasonKnown,
	}
}

// Select returns the first row whose branch key matches the patient's.
// Returns *NoMatchingFormulaError if no row covers the key.
func Select(formulas []Formula, p Patient) (Formula, error) {
	key := BranchKeyFor(p)

	for _, f := range formulas {
		if f.Key == key {
			return f, nil
		}
	}

	return Formula{}, &NoMatchingFormulaError{Key: key}
}
