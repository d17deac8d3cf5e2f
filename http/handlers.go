package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"laborcond/inference"
	"laborcond/ml"
	"laborcond/registry"
)

// Handlers serves the JSON API and the form pages.
type Handlers struct {
	registry  *registry.Registry
	benefits  *inference.BenefitInvoker
	wages     *inference.WageComparator
	validator *validator.Validate
	logger    *zap.Logger
	assets    Assets
	pages     *pages
}

// NewHandlers builds the page and API handlers from deps.
func NewHandlers(deps Dependencies) (*Handlers, error) {
	p, err := newPages()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry:  deps.Registry,
		benefits:  deps.Benefits,
		wages:     deps.Wages,
		validator: newValidator(),
		logger:    logger,
		assets:    deps.Assets,
		pages:     p,
	}, nil
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/v1/benefits", h.handleBenefits)
	mux.HandleFunc("GET /api/v1/disabilities", h.handleDisabilities)
	mux.HandleFunc("GET /api/v1/options", h.handleOptions)
	mux.HandleFunc("POST /api/v1/benefits/{benefit}/predict", h.handlePredictBenefit)
	mux.HandleFunc("POST /api/v1/wages/{disability}/compare", h.handleCompareWages)

	mux.HandleFunc("GET /{$}", h.handleGuide)
	mux.HandleFunc("GET /prestaciones", h.handleBenefitForm)
	mux.HandleFunc("POST /prestaciones", h.handleBenefitSubmit)
	mux.HandleFunc("GET /salarios", h.handleWageForm)
	mux.HandleFunc("POST /salarios", h.handleWageSubmit)
	mux.HandleFunc("GET /soporte", h.handleSupportDocument)
	mux.Handle("GET /static/", h.staticHandler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleBenefits(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"benefits": h.registry.Benefits()})
}

func (h *Handlers) handleDisabilities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"disabilities": h.registry.Disabilities()})
}

type categoryOptions struct {
	Name     string   `json:"name"`
	Labels   []string `json:"labels"`
	Baseline string   `json:"baseline"`
}

func (h *Handlers) handleOptions(w http.ResponseWriter, r *http.Request) {
	categories := ml.Categories()
	options := make([]categoryOptions, 0, len(categories))
	for _, c := range categories {
		options = append(options, categoryOptions{Name: c.Name, Labels: c.Labels(), Baseline: c.Baseline()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"categories":   options,
		"benefits":     h.registry.BenefitNames(),
		"disabilities": h.registry.DisabilityLabels(),
		"defaults":     DefaultProfileRequest(),
	})
}

func (h *Handlers) handlePredictBenefit(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	prediction, err := h.classify(r.Context(), r.PathValue("benefit"), req)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

func (h *Handlers) handleCompareWages(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	comparison, err := h.compare(r.Context(), r.PathValue("disability"), req)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, comparison)
}

func (h *Handlers) classify(ctx context.Context, benefit string, req ProfileRequest) (inference.BenefitPrediction, error) {
	if err := validateRequest(h.validator, req); err != nil {
		return inference.BenefitPrediction{}, err
	}
	profile, err := req.Profile()
	if err != nil {
		return inference.BenefitPrediction{}, err
	}
	v, err := ml.ClassifierVector(profile)
	if err != nil {
		return inference.BenefitPrediction{}, err
	}
	return h.benefits.Classify(ctx, benefit, v)
}

func (h *Handlers) compare(ctx context.Context, disability string, req ProfileRequest) (inference.WageComparison, error) {
	if err := validateRequest(h.validator, req); err != nil {
		return inference.WageComparison{}, err
	}
	profile, err := req.Profile()
	if err != nil {
		return inference.WageComparison{}, err
	}
	baseline, err := ml.WageBaseline(profile)
	if err != nil {
		return inference.WageComparison{}, err
	}
	return h.wages.Compare(ctx, disability, baseline)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr), errors.Is(err, ml.ErrUnknownChoice):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrUnknownBenefit), errors.Is(err, registry.ErrUnknownDisability):
		return http.StatusNotFound
	case errors.Is(err, ml.ErrArtifactNotFound), errors.Is(err, ml.ErrArtifactCorrupt),
		errors.Is(err, ml.ErrWrongCapability), errors.Is(err, ml.ErrInvalidArtifactID):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown to users for err.
func userMessage(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "Revisa los datos del formulario."
	case http.StatusNotFound:
		return "La opción seleccionada no existe."
	case http.StatusServiceUnavailable:
		return "No se pudo cargar el modelo. Intenta de nuevo más tarde."
	case http.StatusGatewayTimeout:
		return "La solicitud tardó demasiado."
	default:
		return "Ocurrió un error interno al calcular la predicción."
	}
}

func (h *Handlers) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := map[string]string(nil)
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		fields = validationErr.Fields
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = userMessage(err)
	}
	respondError(w, status, message, fields)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	respondJSON(w, status, errorResponse{Error: message, Fields: fields})
}

// respondJSON writes data as the JSON response body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
