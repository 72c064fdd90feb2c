package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/liamcoop/ivf-estimator/formulas"
	"github.com/liamcoop/ivf-estimator/internal/logger"
	"github.com/liamcoop/ivf-estimator/validation"
)

const fixturePath = "../../formulas/testdata/formulas.csv"

func init() {
	_ = logger.Setup(context.Background(), logger.Options{Level: "ERROR", Output: io.Discard})
}

// newTestServer builds a server over the test coefficient table
func newTestServer(t *testing.T, source formulas.Source) *Server {
	t.Helper()

	validator, err := validation.NewValidator(validation.DefaultRules())
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	return NewServer(formulas.NewEngine(formulas.NewTable(source)), validator, ServerOptions{})
}

// makeRequest sends a request through the router and returns the recorded response
func makeRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// scenarioInputs is the first reference patient: 32 years, 150 lbs, 5'8"
func scenarioInputs() map[string]any {
	return map[string]any{
		"using_own_eggs":                  true,
		"attempted_ivf_previously":        false,
		"is_reason_for_infertility_known": true,
		"age":                             32,
		"weight_lbs":                      150,
		"height_feet":                     5,
		"height_inches":                   8,
		"endometriosis":                   true,
		"ovulatory_disorder":              true,
		"prior_pregnancies":               1,
		"prior_live_births":               1,
	}
}

// TestHealth verifies the health endpoint reports the loaded row count
func TestHealth(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))

	rec := makeRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[HealthResponse](t, rec)
	if resp.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", resp.Status)
	}
	if resp.FormulasLoaded != 6 {
		t.Errorf("Expected 6 formulas loaded, got %d", resp.FormulasLoaded)
	}
}

// TestHealthUnavailable verifies an unreadable table makes the service unhealthy
func TestHealthUnavailable(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource("testdata/does-not-exist.csv"))

	rec := makeRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}

	resp := decode[HealthResponse](t, rec)
	if resp.Status != "unhealthy" || resp.Error == "" {
		t.Errorf("Expected unhealthy status with an error, got %+v", resp)
	}
}

// TestListFormulas verifies every table row is listed with its branch key
func TestListFormulas(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))

	rec := makeRequest(t, s, http.MethodGet, "/api/v1/formulas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	resp := decode[FormulasListResponse](t, rec)
	if len(resp.Formulas) != 6 {
		t.Fatalf("Expected 6 formulas, got %d", len(resp.Formulas))
	}

	first := resp.Formulas[0]
	if first.Label != "own_first_known" || !first.UsingOwnEggs || first.AttemptedIVFPreviously != "FALSE" || !first.ReasonKnown {
		t.Errorf("Unexpected first formula: %+v", first)
	}

	last := resp.Formulas[5]
	if last.UsingOwnEggs || last.AttemptedIVFPreviously != "N/A" {
		t.Errorf("Expected donor row with N/A attempt, got %+v", last)
	}
}

// TestCalculate verifies a complete submission returns the scenario probability
func TestCalculate(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))
	before := logger.Calculations.Load()

	rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", map[string]any{
		"inputs": scenarioInputs(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[CalculateResponse](t, rec)
	if _, err := uuid.Parse(resp.CalculationID); err != nil {
		t.Errorf("Expected a UUID calculation_id, got %q", resp.CalculationID)
	}
	if resp.Result == nil {
		t.Fatal("Expected a result")
	}
	if got := resp.Result.Probability * 100; math.Abs(got-62.21) > 0.005 {
		t.Errorf("Expected success rate 62.21%%, got %.4f%%", got)
	}
	if resp.Result.FormulaLabel != "own_first_known" {
		t.Errorf("Expected formula own_first_known, got %s", resp.Result.FormulaLabel)
	}
	if math.Abs(resp.Result.BMI-22.8049) > 0.0001 {
		t.Errorf("Expected BMI 22.8049, got %f", resp.Result.BMI)
	}

	if after := logger.Calculations.Load(); after != before+1 {
		t.Errorf("Expected calculation counter to advance by 1, got %d -> %d", before, after)
	}
}

// TestCalculateRequestErrors verifies malformed requests are rejected with 400
func TestCalculateRequestErrors(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))

	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"invalid JSON", `{"inputs": `, "Invalid JSON in request body"},
		{"missing inputs", map[string]any{}, "Missing inputs in request body"},
		{"bad prior count", `{"inputs": {"prior_pregnancies": "3"}}`, "Invalid JSON in request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Error != tt.wantMsg {
				t.Errorf("Expected error %q, got %q", tt.wantMsg, resp.Error)
			}
		})
	}
}

// TestCalculateValidationFailure verifies every violated rule is reported
func TestCalculateValidationFailure(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))

	inputs := scenarioInputs()
	inputs["age"] = 55
	inputs["prior_live_births"] = "2+"

	rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", map[string]any{"inputs": inputs})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.Error != "Validation failed" {
		t.Errorf("Expected 'Validation failed', got %q", resp.Error)
	}

	fields := map[string]bool{}
	for _, fe := range resp.ValidationErrors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"age", "prior_live_births"} {
		if !fields[want] {
			t.Errorf("Expected a validation error for %s, got %+v", want, resp.ValidationErrors)
		}
	}
}

// TestCalculateNoMatchingFormula verifies a branch with no row is reported as missing information
func TestCalculateNoMatchingFormula(t *testing.T) {
	rows, err := formulas.NewCSVFileSource(fixturePath).Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	// Keep only own-egg rows so donor submissions cannot match
	var ownEggs []formulas.Formula
	for _, f := range rows {
		if f.Key.UsingOwnEggs {
			ownEggs = append(ownEggs, f)
		}
	}
	s := newTestServer(t, formulas.NewStaticSource(ownEggs))
	before := logger.UnmatchedFormulas.Load()

	inputs := scenarioInputs()
	inputs["using_own_eggs"] = false

	rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", map[string]any{"inputs": inputs})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.Title != "Missing Information" {
		t.Errorf("Expected title 'Missing Information', got %q", resp.Title)
	}
	if len(resp.Suggestions) != 3 {
		t.Errorf("Expected 3 suggestions, got %d", len(resp.Suggestions))
	}
	if !strings.Contains(resp.Details, "using_own_eggs=false") {
		t.Errorf("Expected details to name the branch, got %q", resp.Details)
	}

	if after := logger.UnmatchedFormulas.Load(); after != before+1 {
		t.Errorf("Expected unmatched counter to advance by 1, got %d -> %d", before, after)
	}
}

// TestCalculateNonFiniteResult verifies a degenerate score is rejected instead of returned
func TestCalculateNonFiniteResult(t *testing.T) {
	rows, err := formulas.NewCSVFileSource(fixturePath).Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	// age^1e6 overflows, driving the score to -Inf
	for i := range rows {
		rows[i].Age.Exponent = 1e6
	}
	s := newTestServer(t, formulas.NewStaticSource(rows))
	before := logger.Calculations.Load()

	rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", map[string]any{
		"inputs": scenarioInputs(),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.Error != "Unable to calculate success rate. Please check your inputs." {
		t.Errorf("Unexpected error message %q", resp.Error)
	}
	if after := logger.Calculations.Load(); after != before {
		t.Errorf("Expected calculation counter to stay at %d, got %d", before, after)
	}
}

// TestCalculateSourceFailure verifies table load failures are hidden behind a generic 500
func TestCalculateSourceFailure(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource("testdata/does-not-exist.csv"))

	rec := makeRequest(t, s, http.MethodPost, "/api/v1/calculate", map[string]any{
		"inputs": scenarioInputs(),
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	resp := decode[ErrorResponse](t, rec)
	if strings.Contains(resp.Error, "does-not-exist") || resp.Details != "" {
		t.Errorf("Expected a generic error, got %+v", resp)
	}
}

// TestMetrics verifies response statuses are counted
func TestMetrics(t *testing.T) {
	s := newTestServer(t, formulas.NewCSVFileSource(fixturePath))

	before := decode[map[string]int64](t, makeRequest(t, s, http.MethodGet, "/api/v1/metrics", nil))

	makeRequest(t, s, http.MethodPost, "/api/v1/calculate", `not json`)
	makeRequest(t, s, http.MethodGet, "/api/v1/unknown", nil)

	after := decode[map[string]int64](t, makeRequest(t, s, http.MethodGet, "/api/v1/metrics", nil))

	if got := after["http_400_total"] - before["http_400_total"]; got != 1 {
		t.Errorf("Expected 1 new 400 response, got %d", got)
	}
	if got := after["http_404_total"] - before["http_404_total"]; got != 1 {
		t.Errorf("Expected 1 new 404 response, got %d", got)
	}
	if got := after["http_4xx_total"] - before["http_4xx_total"]; got != 2 {
		t.Errorf("Expected 2 new 4xx responses, got %d", got)
	}
}
