package formulas

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// PriorAttempt is the previous-IVF branch of a formula row
type PriorAttempt int

const (
	PriorAttemptNo PriorAttempt = iota
	PriorAttemptYes
	// PriorAttemptNotApplicable is used by donor-egg rows, which have no previous-attempt branch
	PriorAttemptNotApplicable
)

// String returns the value as written in the coefficient table
func (a PriorAttempt) String() string {
	switch a {
	case PriorAttemptNo:
		return "FALSE"
	case PriorAttemptYes:
		return "TRUE"
	case PriorAttemptNotApplicable:
		return "N/A"
	default:
		return fmt.Sprintf("PriorAttempt(%d)", int(a))
	}
}

// BranchKey identifies which published formula applies to a patient
type BranchKey struct {
	UsingOwnEggs bool
	PriorAttempt PriorAttempt
	ReasonKnown  bool
}

func (k BranchKey) String() string {
	return fmt.Sprintf("using_own_eggs=%t, attempted_ivf_previously=%s, is_reason_for_infertility_known=%t",
		k.UsingOwnEggs, k.PriorAttempt, k.ReasonKnown)
}

// PowerTerm is a linear coefficient plus a power coefficient applied to x^Exponent
type PowerTerm struct {
	Linear      float64
	Coefficient float64
	Exponent    float64
}

// Value returns Linear*x + Coefficient*x^Exponent
func (t PowerTerm) Value(x float64) float64 {
	return t.Linear*x + t.Coefficient*math.Pow(x, t.Exponent)
}

// BinaryTerm holds the contribution of a diagnosis when present and when absent
type BinaryTerm struct {
	IfTrue  float64
	IfFalse float64
}

// Value returns exactly one of the two stored coefficients
func (t BinaryTerm) Value(present bool) float64 {
	if present {
		return t.IfTrue
	}
	return t.IfFalse
}

// CountTerm holds one coefficient per PriorCount bucket
type CountTerm struct {
	Zero      float64
	One       float64
	TwoOrMore float64
}

// Value returns the coefficient for the given bucket
func (t CountTerm) Value(c PriorCount) float64 {
	switch c {
	case PriorCountZero:
		return t.Zero
	case PriorCountOne:
		return t.One
	default:
		return t.TwoOrMore
	}
}

// Formula is one row of the coefficient table
type Formula struct {
	Key   BranchKey
	Label string // cdc_formula, echoed back to callers

	Intercept float64
	Age       PowerTerm
	BMI       PowerTerm

	TubalFactor              BinaryTerm
	MaleFactorInfertility    BinaryTerm
	Endometriosis            BinaryTerm
	OvulatoryDisorder        BinaryTerm
	DiminishedOvarianReserve BinaryTerm
	UterineFactor            BinaryTerm
	OtherReason              BinaryTerm
	UnexplainedInfertility   BinaryTerm

	PriorPregnancies CountTerm
	PriorLiveBirths  CountTerm
}

// DiagnosisTerm returns the coefficient pair for a diagnosis category
func (f *Formula) DiagnosisTerm(d Diagnosis) BinaryTerm {
	return *f.diagnosisTermRef(d)
}

func (f *Formula) diagnosisTermRef(d Diagnosis) *BinaryTerm {
	switch d {
	case TubalFactor:
		return &f.TubalFactor
	case MaleFactorInfertility:
		return &f.MaleFactorInfertility
	case Endometriosis:
		return &f.Endometriosis
	case OvulatoryDisorder:
		return &f.OvulatoryDisorder
	case DiminishedOvarianReserve:
		return &f.DiminishedOvarianReserve
	case UterineFactor:
		return &f.UterineFactor
	case OtherReason:
		return &f.OtherReason
	case UnexplainedInfertility:
		return &f.UnexplainedInfertility
	default:
		panic(fmt.Sprintf("formulas: unknown diagnosis %d", int(d)))
	}
}

// Diagnosis enumerates the infertility diagnosis categories
type Diagnosis int

const (
	TubalFactor Diagnosis = iota
	MaleFactorInfertility
	Endometriosis
	OvulatoryDisorder
	DiminishedOvarianReserve
	UterineFactor
	OtherReason
	UnexplainedInfertility
)

// Diagnoses lists every category in table column order
var Diagnoses = []Diagnosis{
	TubalFactor,
	MaleFactorInfertility,
	Endometriosis,
	OvulatoryDisorder,
	DiminishedOvarianReserve,
	UterineFactor,
	OtherReason,
	UnexplainedInfertility,
}

// String returns the snake_case name used in column names and API payloads
func (d Diagnosis) String() string {
	switch d {
	case TubalFactor:
		return "tubal_factor"
	case MaleFactorInfertility:
		return "male_factor_infertility"
	case Endometriosis:
		return "endometriosis"
	case OvulatoryDisorder:
		return "ovulatory_disorder"
	case DiminishedOvarianReserve:
		return "diminished_ovarian_reserve"
	case UterineFactor:
		return "uterine_factor"
	case OtherReason:
		return "other_reason"
	case UnexplainedInfertility:
		return "unexplained_infertility"
	default:
		return fmt.Sprintf("Diagnosis(%d)", int(d))
	}
}

// PriorCount buckets a count of prior pregnancies or live births
type PriorCount int

const (
	PriorCountZero PriorCount = iota
	PriorCountOne
	PriorCountTwoOrMore
)

// ParsePriorCount accepts "0", "1" and "2+"
func ParsePriorCount(s string) (PriorCount, error) {
	switch s {
	case "0":
		return PriorCountZero, nil
	case "1":
		return PriorCountOne, nil
	case "2+":
		return PriorCountTwoOrMore, nil
	default:
		return 0, fmt.Errorf("invalid prior count %q (must be 0, 1 or 2+)", s)
	}
}

func (c PriorCount) String() string {
	switch c {
	case PriorCountZero:
		return "0"
	case PriorCountOne:
		return "1"
	default:
		return "2+"
	}
}

// MarshalJSON encodes 0 and 1 as numbers and the top bucket as "2+"
func (c PriorCount) MarshalJSON() ([]byte, error) {
	if c == PriorCountTwoOrMore {
		return []byte(`"2+"`), nil
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalJSON accepts 0, 1, "0", "1" and "2+"
func (c *PriorCount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("prior count must be 0, 1 or \"2+\": %s", string(data))
		}
		s = strconv.Itoa(n)
	}
	parsed, err := ParsePriorCount(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Patient holds the attributes a calculation is made from.
// Values are assumed to be validated already.
type Patient struct {
	UsingOwnEggs           bool
	AttemptedIVFPreviously *bool
	ReasonKnown            bool

	Age          float64
	WeightLbs    float64
	HeightFeet   float64
	HeightInches float64

	TubalFactor              bool
	MaleFactorInfertility    bool
	Endometriosis            bool
	OvulatoryDisorder        bool
	DiminishedOvarianReserve bool
	UterineFactor            bool
	OtherReason              bool
	UnexplainedInfertility   bool

	PriorPregnancies PriorCount
	PriorLiveBirths  PriorCount
}

// Has reports whether the patient has the given diagnosis
func (p *Patient) Has(d Diagnosis) bool {
	switch d {
	case TubalFactor:
		return p.TubalFactor
	case MaleFactorInfertility:
		return p.MaleFactorInfertility
	case Endometriosis:
		return p.Endometriosis
	case OvulatoryDisorder:
		return p.OvulatoryDisorder
	case DiminishedOvarianReserve:
		return p.DiminishedOvarianReserve
	case UterineFactor:
		return p.UterineFactor
	case OtherReason:
		return p.OtherReason
	case UnexplainedInfertility:
		return p.UnexplainedInfertility
	default:
		panic(fmt.Sprintf("formulas: unknown diagnosis %d", int(d)))
	}
}

// Set sets or clears a diagnosis
func (p *Patient) Set(d Diagnosis, present bool) {
	switch d {
	case TubalFactor:
		p.TubalFactor = present
	case MaleFactorInfertility:
		p.MaleFactorInfertility = present
	case Endometriosis:
		p.Endometriosis = present
	case OvulatoryDisorder:
		p.OvulatoryDisorder = present
	case DiminishedOvarianReserve:
		p.DiminishedOvarianReserve = present
	case UterineFactor:
		p.UterineFactor = present
	case OtherReason:
		p.OtherReason = present
	case UnexplainedInfertility:
		p.UnexplainedInfertility = present
	default:
		panic(fmt.Sprintf("formulas: unknown diagnosis %d", int(d)))
	}
}

// Result is the outcome of a calculation
type Result struct {
	Probability  float64 `json:"success_rate"`
	Score        float64 `json:"score"`
	BMI          float64 `json:"bmi"`
	FormulaLabel string  `json:"formula_used"`
}

// Finite reports whether every numeric field is a real number.
// Degenerate inputs (zero height) produce NaN or Inf instead of an error.
func (r *Result) Finite() bool {
	for _, v := range []float64{r.Probability, r.Score, r.BMI} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
