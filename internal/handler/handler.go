package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mtlprog/docflow/internal/handler/dto"
	"github.com/mtlprog/docflow/internal/middleware"
	"github.com/mtlprog/docflow/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc             *service.WorkflowService
	actorMiddleware *middleware.ActorMiddleware
}

// New creates a new Handler instance with all dependencies.
func New(svc *service.WorkflowService) *Handler {
	return &Handler{
		svc:             svc,
		actorMiddleware: middleware.NewActorMiddleware(),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Health check and metrics
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// API v1 routes with actor identity
	identify := h.actorMiddleware.Identify
	mux.Handle("GET /api/v1/requests", identify(http.HandlerFunc(h.handleListRequests)))
	mux.Handle("POST /api/v1/requests", identify(http.HandlerFunc(h.handleCreateRequest)))
	mux.Handle("GET /api/v1/requests/{id}", identify(http.HandlerFunc(h.handleGetRequest)))
	mux.Handle("POST /api/v1/requests/{id}/actions", identify(http.HandlerFunc(h.handleSubmitAction)))
	mux.Handle("GET /api/v1/queues", identify(http.HandlerFunc(h.handleGetQueues)))
	mux.Handle("GET /api/v1/stats", identify(http.HandlerFunc(h.handleGetStats)))
}

// handleHealthz returns 200 OK if the request store is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		slog.Error("store health check failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	dto.WriteJSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	dto.WriteError(w, status, code, message)
}

func respondDomainError(w http.ResponseWriter, err error) {
	status, code, message := dto.MapDomainError(err)
	respondError(w, status, code, message)
}

// extractRequestID extracts and validates request ID from path parameter.
// Returns (requestID, true) if valid, ("", false) if invalid (error already sent to client).
func extractRequestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	requestID := r.PathValue("id")
	if requestID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "request id is required")
		return "", false
	}

	if _, err := uuid.Parse(requestID); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "request id must be a valid UUID")
		return "", false
	}

	return requestID, true
}
