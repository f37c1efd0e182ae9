package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"results-portal/internal/models"
	"results-portal/internal/services"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

// ResultHandler handles the results portal API endpoints
type ResultHandler struct {
	service        *services.ResultService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
	maxUploadBytes int64
}

// NewResultHandler creates a new result handler
func NewResultHandler(
	service *services.ResultService,
	maxUploadBytes int64,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ResultHandler {
	return &ResultHandler{
		service:        service,
		logger:         logger,
		metrics:        metricsCollector,
		maxUploadBytes: maxUploadBytes,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Code     int    `json:"code"`
}

// LoginRequest is the body of POST /api/admin/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UploadResponse is returned after a workbook has been published
type UploadResponse struct {
	Message string                 `json:"message"`
	Upload  *services.UploadResult `json:"upload"`
}

// SearchResponse carries a student's result and its display table
type SearchResponse struct {
	Result *models.SearchResult  `json:"result"`
	Labels []models.LabeledValue `json:"labels"`
}

// SummaryResponse carries grade counts for a zone or all zones
type SummaryResponse struct {
	Zone    string              `json:"zone,omitempty"`
	Overall bool                `json:"overall"`
	Summary models.GradeSummary `json:"summary"`
}

var categoryStatus = map[string]int{
	services.CategoryConfig:   http.StatusInternalServerError,
	services.CategoryAuth:     http.StatusUnauthorized,
	services.CategoryFormat:   http.StatusUnprocessableEntity,
	services.CategoryIO:       http.StatusServiceUnavailable,
	services.CategoryNoData:   http.StatusNotFound,
	services.CategoryNotFound: http.StatusNotFound,
	services.CategoryInternal: http.StatusInternalServerError,
}

// Login handles POST /api/admin/login
func (h *ResultHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/admin/login", time.Now())

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.sendError(w, r, "", "invalid request body, expected JSON with username and password", http.StatusBadRequest)
		return
	}

	if err := h.service.Login(ctx, req.Username, req.Password); err != nil {
		h.sendServiceError(w, r, "/api/admin/login", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/admin/login", "POST", "200")
	h.sendJSON(w, map[string]bool{"authenticated": true}, http.StatusOK)
}

// Upload handles POST /api/admin/upload.
// Credentials are checked with HTTP Basic auth on every call.
func (h *ResultHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/admin/upload", time.Now())

	username, password, _ := r.BasicAuth()
	if err := h.service.Login(ctx, username, password); err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="results-admin"`)
		h.sendServiceError(w, r, "/api/admin/upload", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.RecordAPIError("too_large", "/api/admin/upload")
			h.sendError(w, r, "", "uploaded file is too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.metrics.RecordAPIError("bad_request", "/api/admin/upload")
		h.sendError(w, r, "", "multipart form field \"file\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.service.Upload(ctx, header.Filename, file)
	if err != nil {
		h.sendServiceError(w, r, "/api/admin/upload", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/admin/upload", "POST", "200")
	h.sendJSON(w, UploadResponse{
		Message: "Results uploaded successfully.",
		Upload:  result,
	}, http.StatusOK)
}

// GetStatus handles GET /api/status
func (h *ResultHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/status", time.Now())

	status, err := h.service.Status(ctx)
	if err != nil {
		h.sendServiceError(w, r, "/api/status", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/status", "GET", "200")
	h.sendJSON(w, status, http.StatusOK)
}

// GetZones handles GET /api/zones
func (h *ResultHandler) GetZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/zones", time.Now())

	zones, err := h.service.Zones(ctx)
	if err != nil {
		h.sendServiceError(w, r, "/api/zones", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/zones", "GET", "200")
	h.sendJSON(w, map[string][]string{"zones": zones}, http.StatusOK)
}

// SearchResults handles GET /api/results?zone=&index_number=
func (h *ResultHandler) SearchResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/results", time.Now())

	zone := r.URL.Query().Get("zone")
	indexNumber := strings.TrimSpace(r.URL.Query().Get("index_number"))
	if zone == "" || indexNumber == "" {
		h.sendError(w, r, "", "zone and index_number are required", http.StatusBadRequest)
		return
	}

	result, found, err := h.service.Search(ctx, zone, indexNumber)
	if err != nil {
		h.sendServiceError(w, r, "/api/results", err)
		return
	}
	if !found {
		category, message := services.NotFoundMessage()
		h.sendError(w, r, category, message, categoryStatus[category])
		return
	}

	h.metrics.RecordAPIRequest("/api/results", "GET", "200")
	h.sendJSON(w, SearchResponse{
		Result: result,
		Labels: result.Table(),
	}, http.StatusOK)
}

// GetSummary handles GET /api/summary?zone=; without a zone the summary
// covers every zone
func (h *ResultHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/summary", time.Now())

	zone := r.URL.Query().Get("zone")

	var (
		summary models.GradeSummary
		err     error
	)
	if zone == "" {
		summary, err = h.service.OverallGradeSummary(ctx)
	} else {
		summary, err = h.service.GradeSummary(ctx, zone)
	}
	if err != nil {
		h.sendServiceError(w, r, "/api/summary", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/summary", "GET", "200")
	h.sendJSON(w, SummaryResponse{
		Zone:    zone,
		Overall: zone == "",
		Summary: summary,
	}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ResultHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":    "healthy",
		"has_data":  h.service.HasData(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *ResultHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// sendServiceError logs the internal detail and sends only the user message
func (h *ResultHandler) sendServiceError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	category, message := services.UserMessage(err)
	statusCode := categoryStatus[category]

	fields := logging.Fields{
		"endpoint": endpoint,
		"category": category,
	}
	switch category {
	case services.CategoryAuth, services.CategoryNoData, services.CategoryFormat:
		fields["error"] = err.Error()
		h.logger.Warn(r.Context(), "[API_ERROR] Request rejected", fields)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", fields, err)
	}

	h.metrics.RecordAPIError(category, endpoint)
	h.sendError(w, r, category, message, statusCode)
}

// sendJSON sends a JSON response
func (h *ResultHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ResultHandler) sendError(w http.ResponseWriter, r *http.Request, category, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:    http.StatusText(statusCode),
		Category: category,
		Message:  message,
		Code:     statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all results API routes
func (h *ResultHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/admin/login", h.Login).Methods("POST")
	router.HandleFunc("/api/admin/upload", h.Upload).Methods("POST")
	router.HandleFunc("/api/status", h.GetStatus).Methods("GET")
	router.HandleFunc("/api/zones", h.GetZones).Methods("GET")
	router.HandleFunc("/api/results", h.SearchResults).Methods("GET")
	router.HandleFunc("/api/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
