package main

import (
	"github.com/liamcoop/ivf-estimator/formulas"
	"github.com/liamcoop/ivf-estimator/validation"
)

// API request and response models

// CalculateRequest is the body of POST /api/v1/calculate
type CalculateRequest struct {
	Inputs *validation.Submission `json:"inputs"`
}

// CalculateResponse carries a successful calculation
type CalculateResponse struct {
	CalculationID string           `json:"calculation_id" example:"6f1c2a3e-8c1b-4f0e-9a57-2f0c5e1b7d44"`
	Result        *formulas.Result `json:"result"`
}

// ErrorResponse represents an error response. Title and Suggestions are set for
// conditions the patient can fix; ValidationErrors for rejected submissions.
type ErrorResponse struct {
	Error            string                  `json:"error" example:"Validation failed"`
	Title            string                  `json:"title,omitempty" example:"Missing Information"`
	Details          string                  `json:"details,omitempty"`
	Suggestions      []string                `json:"suggestions,omitempty"`
	ValidationErrors []validation.FieldError `json:"validationErrors,omitempty"`
}

// FormulaSummary describes one row of the coefficient table
type FormulaSummary struct {
	Label                  string `json:"formula" example:"own_first_known"`
	UsingOwnEggs           bool   `json:"using_own_eggs"`
	AttemptedIVFPreviously string `json:"attempted_ivf_previously" example:"N/A"`
	ReasonKnown            bool   `json:"is_reason_for_infertility_known"`
}

// FormulasListResponse is the body of GET /api/v1/formulas
type FormulasListResponse struct {
	Formulas []FormulaSummary `json:"formulas"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string `json:"status" example:"healthy"`
	FormulasLoaded int    `json:"formulasLoaded,omitempty" example:"6"`
	Error          string `json:"error,omitempty"`
}

// missingInformation is shown when no formula covers the submitted answers
var missingInformation = ErrorResponse{
	Error: "Please answer all required questions before calculating your success rate.",
	Title: "Missing Information",
	Suggestions: []string{
		"Make sure you've selected whether you're using your own eggs",
		"Indicate if you've attempted IVF previously",
		"Let us know if you know the reason for infertility",
	},
}
