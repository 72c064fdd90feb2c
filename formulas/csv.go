package formulas

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column names of the published coefficient table
const (
	ColumnUsingOwnEggs      = "param_using_own_eggs"
	ColumnAttemptedIVF      = "param_attempted_ivf_previously"
	ColumnReasonKnown       = "param_is_reason_for_infertility_known"
	ColumnLabel             = "cdc_formula"
	ColumnIntercept         = "formula_intercept"
	paramPrefix             = "param_"
	notApplicableCellValue  = "N/A"
	diagnosisTrueColumnFmt  = "formula_%s_true_value"
	diagnosisFalseColumnFmt = "formula_%s_false_value"
)

// paramAliases maps alternative header spellings onto the canonical param columns
var paramAliases = map[string]string{
	"param_usesOwnEggs":                  ColumnUsingOwnEggs,
	"param_attemptedTreatmentPreviously": ColumnAttemptedIVF,
	"param_causeKnown":                   ColumnReasonKnown,
}

type numericColumn struct {
	name string
	ref  func(f *Formula) *float64
}

// numericColumns lists every real-valued column in table order
var numericColumns = buildNumericColumns()

func buildNumericColumns() []numericColumn {
	cols := []numericColumn{
		{ColumnIntercept, func(f *Formula) *float64 { return &f.Intercept }},
		{"formula_age_linear_coefficient", func(f *Formula) *float64 { return &f.Age.Linear }},
		{"formula_age_power_coefficient", func(f *Formula) *float64 { return &f.Age.Coefficient }},
		{"formula_age_power_factor", func(f *Formula) *float64 { return &f.Age.Exponent }},
		{"formula_bmi_linear_coefficient", func(f *Formula) *float64 { return &f.BMI.Linear }},
		{"formula_bmi_power_coefficient", func(f *Formula) *float64 { return &f.BMI.Coefficient }},
		{"formula_bmi_power_factor", func(f *Formula) *float64 { return &f.BMI.Exponent }},
	}

	for _, d := range Diagnoses {
		d := d
		cols = append(cols,
			numericColumn{fmt.Sprintf(diagnosisTrueColumnFmt, d), func(f *Formula) *float64 { return &f.diagnosisTermRef(d).IfTrue }},
			numericColumn{fmt.Sprintf(diagnosisFalseColumnFmt, d), func(f *Formula) *float64 { return &f.diagnosisTermRef(d).IfFalse }},
		)
	}

	cols = append(cols,
		numericColumn{"formula_prior_pregnancies_0_value", func(f *Formula) *float64 { return &f.PriorPregnancies.Zero }},
		numericColumn{"formula_prior_pregnancies_1_value", func(f *Formula) *float64 { return &f.PriorPregnancies.One }},
		numericColumn{"formula_prior_pregnancies_2+_value", func(f *Formula) *float64 { return &f.PriorPregnancies.TwoOrMore }},
		numericColumn{"formula_prior_live_births_0_value", func(f *Formula) *float64 { return &f.PriorLiveBirths.Zero }},
		numericColumn{"formula_prior_live_births_1_value", func(f *Formula) *float64 { return &f.PriorLiveBirths.One }},
		numericColumn{"formula_prior_live_births_2+_value", func(f *Formula) *float64 { return &f.PriorLiveBirths.TwoOrMore }},
	)
	return cols
}

// Columns returns the canonical column names in table order
func Columns() []string {
	names := []string{ColumnUsingOwnEggs, ColumnAttemptedIVF, ColumnReasonKnown, ColumnLabel}
	for _, c := range numericColumns {
		names = append(names, c.name)
	}
	return names
}

// ParseCSV parses a coefficient table. The first record holds column names.
// param_ columns are booleans (param_attempted_ivf_previously also accepts N/A),
// cdc_formula is kept verbatim and every other column must be a number.
func ParseCSV(r io.Reader) ([]Formula, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("coefficient table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header, err = normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]func(*Formula) *float64, len(numericColumns))
	for _, c := range numericColumns {
		refs[c.name] = c.ref
	}

	var formulas []Formula
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		f, err := parseRecord(header, record, refs)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		formulas = append(formulas, f)
	}

	if len(formulas) == 0 {
		return nil, fmt.Errorf("coefficient table has no formula rows")
	}

	return formulas, nil
}

// normalizeHeader trims names, resolves aliases and checks every required column is present once
func normalizeHeader(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))

	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if canonical, ok := paramAliases[name]; ok {
			name = canonical
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		out[i] = name
	}

	var missing []string
	for _, name := range Columns() {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	return out, nil
}

func parseRecord(header, record []string, refs map[string]func(*Formula) *float64) (Formula, error) {
	var f Formula

	for i, name := range header {
		value := strings.TrimSpace(record[i])

		switch {
		case name == ColumnAttemptedIVF:
			attempt, err := parsePriorAttempt(value)
			if err != nil {
				return Formula{}, fmt.Errorf("column %s: %w", name, err)
			}
			f.Key.PriorAttempt = attempt

		case strings.HasPrefix(name, paramPrefix):
			b, err := parseTableBool(value)
			if err != nil {
				return Formula{}, fmt.Errorf("column %s: %w", name, err)
			}
			switch name {
			case ColumnUsingOwnEggs:
				f.Key.UsingOwnEggs = b
			case ColumnReasonKnown:
				f.Key.ReasonKnown = b
			}

		case name == ColumnLabel:
			f.Label = value

		default:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Formula{}, fmt.Errorf("column %s: invalid number %q", name, value)
			}
			if ref, ok := refs[name]; ok {
				*ref(&f) = v
			}
		}
	}

	return f, nil
}

func parseTableBool(value string) (bool, error) {
	switch {
	case strings.EqualFold(value, "TRUE"):
		return true, nil
	case strings.EqualFold(value, "FALSE"):
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q (must be TRUE or FALSE)", value)
	}
}

func parsePriorAttempt(value string) (PriorAttempt, error) {
	if strings.EqualFold(value, notApplicableCellValue) {
		return PriorAttemptNotApplicable, nil
	}
	b, err := parseTableBool(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q (must be TRUE, FALSE or N/A)", value)
	}
	if b {
		return PriorAttemptYes, nil
	}
	return PriorAttemptNo, nil
}
