package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/ivf-estimator/formulas"
)

// Accepted input ranges
const (
	MinAge          = 20
	MaxAge          = 50
	MinWeightLbs    = 80
	MaxWeightLbs    = 300
	MinHeightFeet   = 4
	MaxHeightFeet   = 6
	MinHeightInches = 0
	MaxHeightInches = 11

	// costLimit bounds the work a single rule may do
	costLimit = 1000000
)

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Rule is a constraint on a submission. Expression is CEL over the map variable
// "inputs" and must evaluate to true for a valid submission.
type Rule struct {
	Field      string
	Expression string
	Message    string
}

// FieldError describes one violated rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated rule of a submission
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		fields[i] = fe.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// DefaultRules returns the calculator's input constraints
func DefaultRules() []Rule {
	return []Rule{
		{"using_own_eggs", `has(inputs.using_own_eggs)`,
			"Please let us know if you are using your own eggs"},
		{"attempted_ivf_previously", `!has(inputs.using_own_eggs) || !inputs.using_own_eggs || has(inputs.attempted_ivf_previously)`,
			"Please let us know if you have tried IVF before"},
		{"is_reason_for_infertility_known", `has(inputs.is_reason_for_infertility_known)`,
			"Please let us know if you have an infertility diagnosis"},

		{"age", `has(inputs.age)`, "Please enter your age"},
		{"age", rangeExpr("age", MinAge, MaxAge),
			fmt.Sprintf("Please enter an age between %d and %d years", MinAge, MaxAge)},
		{"height_feet", `has(inputs.height_feet)`, "Please enter your height in feet"},
		{"height_feet", rangeExpr("height_feet", MinHeightFeet, MaxHeightFeet),
			`Please enter a height between 4'6" and 6'0"`},
		{"height_inches", `has(inputs.height_inches)`, "Please enter the remaining inches of your height"},
		{"height_inches", rangeExpr("height_inches", MinHeightInches, MaxHeightInches),
			fmt.Sprintf("Please enter inches between %d and %d", MinHeightInches, MaxHeightInches)},
		{"weight_lbs", `has(inputs.weight_lbs)`, "Please enter your weight"},
		{"weight_lbs", rangeExpr("weight_lbs", MinWeightLbs, MaxWeightLbs),
			fmt.Sprintf("Please enter a weight between %d and %d lbs", MinWeightLbs, MaxWeightLbs)},

		{"infertility_reasons", `!has(inputs.is_reason_for_infertility_known) || !inputs.is_reason_for_infertility_known || size(inputs.diagnoses) > 0`,
			"Please select at least one reason for infertility"},

		{"prior_pregnancies", `has(inputs.prior_pregnancies)`,
			"Please let us know how many times you have been pregnant"},
		{"prior_live_births", `has(inputs.prior_live_births)`,
			"Please let us know how many children you have given birth to"},
		{"prior_live_births", `!has(inputs.prior_pregnancies) || !has(inputs.prior_live_births) || inputs.prior_live_births <= inputs.prior_pregnancies`,
			"The number of children born cannot be more than total pregnancies"},
	}
}

func rangeExpr(field string, min, max int) string {
	return fmt.Sprintf(`!has(inputs.%[1]s) || (inputs.%[1]s >= %[2]d.0 && inputs.%[1]s <= %[3]d.0)`, field, min, max)
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Validator evaluates a fixed set of compiled rules
// Safe for concurrent use
type Validator struct {
	rules []compiledRule
}

// NewValidator checks and compiles every rule up front
func NewValidator(rules []Rule) (*Validator, error) {
	env, err := cel.NewEnv(
		cel.Variable("inputs", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	v := &Validator{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if err := ValidateRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d (%s): compile error: %w", i, r.Field, issues.Err())
		}

		prog, err := env.Program(ast, cel.CostLimit(costLimit))
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): program creation error: %w", i, r.Field, err)
		}

		v.rules = append(v.rules, compiledRule{Rule: r, program: prog})
	}

	return v, nil
}

// ValidateRule checks a rule definition before compilation
func ValidateRule(r Rule) error {
	if len(r.Field) == 0 || len(r.Field) > 100 {
		return fmt.Errorf("field name must be 1-100 characters, got %d", len(r.Field))
	}
	if !fieldPattern.MatchString(r.Field) {
		return fmt.Errorf("invalid field name %q: must match pattern %s", r.Field, fieldPattern)
	}
	if strings.TrimSpace(r.Expression) == "" {
		return fmt.Errorf("rule for %q has an empty expression", r.Field)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("rule for %q has an empty message", r.Field)
	}
	return nil
}

// Validate evaluates every rule and returns the violated ones in rule order.
// An error means a rule could not be evaluated, not that the submission is invalid.
func (v *Validator) Validate(s Submission) ([]FieldError, error) {
	activation := map[string]any{"inputs": s.Facts()}

	var fieldErrors []FieldError
	for _, r := range v.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("rule for %s failed: %w", r.Field, err)
		}

		ok, isBool := out.Value().(bool)
		if !isBool {
			return nil, fmt.Errorf("rule for %s returned %v, want bool", r.Field, out.Type())
		}
		if !ok {
			fieldErrors = append(fieldErrors, FieldError{Field: r.Field, Message: r.Message})
		}
	}

	return fieldErrors, nil
}

// Check validates s and converts it to a Patient.
// Violations are returned as *ValidationError.
func (v *Validator) Check(s Submission) (formulas.Patient, error) {
	fieldErrors, err := v.Validate(s)
	if err != nil {
		return formulas.Patient{}, err
	}
	if len(fieldErrors) > 0 {
		return formulas.Patient{}, &ValidationError{Errors: fieldErrors}
	}
	return s.Patient()
}
