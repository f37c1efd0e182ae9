package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"results-portal/pkg/logging"
)

// NewRouter wires the API, documentation and metrics routes
func NewRouter(h *ResultHandler, gatherer prometheus.Gatherer, logger *logging.StructuredLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(logger))

	h.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.Handle("/", http.RedirectHandler("/api/docs", http.StatusFound)).Methods("GET")

	return router
}
