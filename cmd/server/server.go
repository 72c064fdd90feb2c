package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/ivf-estimator/formulas"
	"github.com/liamcoop/ivf-estimator/internal/logger"
	"github.com/liamcoop/ivf-estimator/validation"
)

type Server struct {
	engine        *formulas.Engine
	validator     *validation.Validator
	router        *chi.Mux
	timeout       time.Duration
	slowThreshold time.Duration
}

// ServerOptions tunes request handling; zero values disable the feature
type ServerOptions struct {
	RequestTimeout       time.Duration
	SlowRequestThreshold time.Duration
}

func NewServer(engine *formulas.Engine, validator *validation.Validator, opts ServerOptions) *Server {
	s := &Server{
		engine:        engine,
		validator:     validator,
		timeout:       opts.RequestTimeout,
		slowThreshold: opts.SlowRequestThreshold,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.trackResponses)
	if s.timeout > 0 {
		r.Use(middleware.Timeout(s.timeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/formulas", s.handleListFormulas)
		r.Post("/calculate", s.handleCalculate)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// trackResponses feeds response statuses and latencies into the logger counters
func (s *Server) trackResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}

		if elapsed := time.Since(start); s.slowThreshold > 0 && elapsed > s.slowThreshold {
			logger.WarnSlowRequest()
			logger.Warn("slow request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", elapsed.String(),
				"request_id", middleware.GetReqID(r.Context()))
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.Table().Formulas(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		FormulasLoaded: len(rows),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

// List formulas handler
func (s *Server) handleListFormulas(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.Table().Formulas(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load formulas", err)
		return
	}

	summaries := make([]FormulaSummary, 0, len(rows))
	for _, f := range rows {
		summaries = append(summaries, FormulaSummary{
			Label:                  f.Label,
			UsingOwnEggs:           f.Key.UsingOwnEggs,
			AttemptedIVFPreviously: f.Key.PriorAttempt.String(),
			ReasonKnown:            f.Key.ReasonKnown,
		})
	}

	respondJSON(w, http.StatusOK, FormulasListResponse{Formulas: summaries})
}

// Calculation handler
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON in request body", err)
		return
	}

	if req.Inputs == nil {
		respondError(w, http.StatusBadRequest, "Missing inputs in request body", nil)
		return
	}

	patient, err := s.validator.Check(*req.Inputs)
	if err != nil {
		var validationErr *validation.ValidationError
		if errors.As(err, &validationErr) {
			logger.Debug("submission rejected", "fields", validationErr.Error())
			respondJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:            "Validation failed",
				ValidationErrors: validationErr.Errors,
			})
			return
		}
		logger.Error("validation could not run", "error", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.", nil)
		return
	}

	result, err := s.engine.Calculate(r.Context(), patient)
	if err != nil {
		var noMatch *formulas.NoMatchingFormulaError
		var sourceErr *formulas.DataSourceError
		switch {
		case errors.As(err, &noMatch):
			logger.WarnNoMatchingFormula(noMatch.Key.String())
			resp := missingInformation
			resp.Details = err.Error()
			respondJSON(w, http.StatusUnprocessableEntity, resp)
		case errors.As(err, &sourceErr):
			logger.Error("coefficient table unavailable", "source", sourceErr.Source, "error", sourceErr.Err)
			respondError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.", nil)
		default:
			logger.Error("calculation failed", "error", err)
			respondError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.", nil)
		}
		return
	}

	if !result.Finite() {
		logger.Warn("calculation produced a non-finite result",
			"formula", result.FormulaLabel,
			"score", result.Score,
			"bmi", result.BMI)
		respondError(w, http.StatusUnprocessableEntity, "Unable to calculate success rate. Please check your inputs.", nil)
		return
	}

	calculationID := uuid.NewString()
	logger.CountCalculation()
	logger.Info("calculation completed",
		"calculation_id", calculationID,
		"request_id", middleware.GetReqID(r.Context()),
		"formula", result.FormulaLabel)

	respondJSON(w, http.StatusOK, CalculateResponse{
		CalculationID: calculationID,
		Result:        result,
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
