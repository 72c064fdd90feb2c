package formulas

import (
	"context"
	"math"

	"github.com/liamcoop/ivf-estimator/internal/logger"
)

// Score is the weighted sum for one patient and its logistic transform
type Score struct {
	Value       float64
	Probability float64
}

// Engine selects the applicable formula for a patient and scores it
// Safe for concurrent use; the only shared state is the Table cache
type Engine struct {
	table *Table
}

// NewEngine creates an engine over the given coefficient table
func NewEngine(table *Table) *Engine {
	return &Engine{table: table}
}

// Table returns the coefficient table the engine reads
func (en *Engine) Table() *Table {
	return en.table
}

// Calculate estimates the probability of success for a validated patient.
// Errors are *DataSourceError or *NoMatchingFormulaError. Degenerate
// measurements are not errors: the result is returned with non-finite values.
func (en *Engine) Calculate(ctx context.Context, p Patient) (*Result, error) {
	formulas, err := en.table.Formulas(ctx)
	if err != nil {
		return nil, err
	}

	formula, err := Select(formulas, p)
	if err != nil {
		return nil, err
	}

	bmi := ComputeBMI(p.WeightLbs, p.HeightFeet, p.HeightInches)
	score := Evaluate(formula, p, bmi)

	logger.Debug("calculated success rate",
		"formula", formula.Label,
		"score", score.Value,
		"probability", score.Probability)

	return &Result{
		Probability:  score.Probability,
		Score:        score.Value,
		BMI:          bmi,
		FormulaLabel: formula.Label,
	}, nil
}

// Evaluate computes the score of formula f for patient p with the given BMI
func Evaluate(f Formula, p Patient, bmi float64) Score {
	score := f.Intercept + f.Age.Value(p.Age) + f.BMI.Value(bmi)

	for _, d := range Diagnoses {
		score += f.DiagnosisTerm(d).Value(p.Has(d))
	}

	score += f.PriorPregnancies.Value(p.PriorPregnancies)
	score += f.PriorLiveBirths.Value(p.PriorLiveBirths)

	return Score{
		Value:       score,
		Probability: Logistic(score),
	}
}

// Logistic maps a score onto (0, 1) as exp(s)/(1+exp(s)).
// The exponent is always taken of a non-positive number so it cannot overflow.
func Logistic(score float64) float64 {
	if score >= 0 {
		return 1 / (1 + math.Exp(-score))
	}
	e := math.Exp(score)
	return e / (1 + e)
}
