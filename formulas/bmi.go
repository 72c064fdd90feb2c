package formulas

// ComputeBMI returns the body-mass index for a weight in pounds and a height in feet and inches.
// A zero height yields +Inf (or NaN for zero weight); callers check Result.Finite.
func ComputeBMI(weightLbs, heightFeet, heightInches float64) float64 {
	totalInches := heightFeet*12 + heightInches
	return weightLbs / (totalInches * totalInches) * 703
}
