package formulas

import "fmt"

// DataSourceError is returned when the coefficient table cannot be read or parsed.
// No calculation can be served until the source is fixed.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("formula source %s: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// NoMatchingFormulaError is returned when no row covers the patient's branch key
type NoMatchingFormulaError struct {
	Key BranchKey
}

func (e *NoMatchingFormulaError) Error() string {
	return fmt.Sprintf("no matching formula found for parameters: %s", e.Key)
}
