package validation

import (
	"fmt"
	"strings"

	"github.com/liamcoop/ivf-estimator/formulas"
)

// Submission is a calculator request as entered by the patient. Optional
// questions are pointers so that "not answered" can be told apart from false/0.
type Submission struct {
	UsingOwnEggs           *bool    `json:"using_own_eggs"`
	AttemptedIVFPreviously *bool    `json:"attempted_ivf_previously"`
	ReasonKnown            *bool    `json:"is_reason_for_infertility_known"`
	Age                    *float64 `json:"age"`
	WeightLbs              *float64 `json:"weight_lbs"`
	HeightFeet             *float64 `json:"height_feet"`
	HeightInches           *float64 `json:"height_inches"`

	TubalFactor              bool `json:"tubal_factor"`
	MaleFactorInfertility    bool `json:"male_factor_infertility"`
	Endometriosis            bool `json:"endometriosis"`
	OvulatoryDisorder        bool `json:"ovulatory_disorder"`
	DiminishedOvarianReserve bool `json:"diminished_ovarian_reserve"`
	UterineFactor            bool `json:"uterine_factor"`
	OtherReason              bool `json:"other_reason"`
	UnexplainedInfertility   bool `json:"unexplained_infertility"`

	PriorPregnancies *formulas.PriorCount `json:"prior_pregnancies"`
	PriorLiveBirths  *formulas.PriorCount `json:"prior_live_births"`
}

func (s *Submission) has(d formulas.Diagnosis) bool {
	switch d {
	case formulas.TubalFactor:
		return s.TubalFactor
	case formulas.MaleFactorInfertility:
		return s.MaleFactorInfertility
	case formulas.Endometriosis:
		return s.Endometriosis
	case formulas.OvulatoryDisorder:
		return s.OvulatoryDisorder
	case formulas.DiminishedOvarianReserve:
		return s.DiminishedOvarianReserve
	case formulas.UterineFactor:
		return s.UterineFactor
	case formulas.OtherReason:
		return s.OtherReason
	case formulas.UnexplainedInfertility:
		return s.UnexplainedInfertility
	}
	return false
}

// Facts flattens the answered questions into the "inputs" map seen by rules.
// Unanswered questions are absent; diagnoses is the list of selected categories.
func (s Submission) Facts() map[string]any {
	facts := make(map[string]any)

	for name, v := range map[string]*bool{
		"using_own_eggs":                  s.UsingOwnEggs,
		"attempted_ivf_previously":        s.AttemptedIVFPreviously,
		"is_reason_for_infertility_known": s.ReasonKnown,
	} {
		if v != nil {
			facts[name] = *v
		}
	}

	for name, v := range map[string]*float64{
		"age":           s.Age,
		"weight_lbs":    s.WeightLbs,
		"height_feet":   s.HeightFeet,
		"height_inches": s.HeightInches,
	} {
		if v != nil {
			facts[name] = *v
		}
	}

	for name, v := range map[string]*formulas.PriorCount{
		"prior_pregnancies": s.PriorPregnancies,
		"prior_live_births": s.PriorLiveBirths,
	} {
		if v != nil {
			facts[name] = int64(*v)
		}
	}

	diagnoses := []string{}
	for _, d := range formulas.Diagnoses {
		if s.has(d) {
			diagnoses = append(diagnoses, d.String())
		}
	}
	facts["diagnoses"] = diagnoses

	return facts
}

// Patient converts an answered submission. Only presence is checked here;
// ranges are the Validator's job.
func (s Submission) Patient() (formulas.Patient, error) {
	var missing []string
	if s.UsingOwnEggs == nil {
		missing = append(missing, "using_own_eggs")
	}
	if s.ReasonKnown == nil {
		missing = append(missing, "is_reason_for_infertility_known")
	}
	if s.Age == nil {
		missing = append(missing, "age")
	}
	if s.WeightLbs == nil {
		missing = append(missing, "weight_lbs")
	}
	if s.HeightFeet == nil {
		missing = append(missing, "height_feet")
	}
	if s.HeightInches == nil {
		missing = append(missing, "height_inches")
	}
	if s.PriorPregnancies == nil {
		missing = append(missing, "prior_pregnancies")
	}
	if s.PriorLiveBirths == nil {
		missing = append(missing, "prior_live_births")
	}
	if len(missing) > 0 {
		return formulas.Patient{}, fmt.Errorf("submission is missing %s", strings.Join(missing, ", "))
	}

	p := formulas.Patient{
		UsingOwnEggs:     *s.UsingOwnEggs,
		ReasonKnown:      *s.ReasonKnown,
		Age:              *s.Age,
		WeightLbs:        *s.WeightLbs,
		HeightFeet:       *s.HeightFeet,
		HeightInches:     *s.HeightInches,
		PriorPregnancies: *s.PriorPregnancies,
		PriorLiveBirths:  *s.PriorLiveBirths,
	}
	if s.AttemptedIVFPreviously != nil {
		attempted := *s.AttemptedIVFPreviously
		p.AttemptedIVFPreviously = &attempted
	}
	for _, d := range formulas.Diagnoses {
		p.Set(d, s.has(d))
	}

	return p, nil
}
