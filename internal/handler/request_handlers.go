package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/handler/dto"
	"github.com/mtlprog/docflow/internal/middleware"
	"github.com/mtlprog/docflow/internal/queue"
	"github.com/mtlprog/docflow/internal/repository"
)

// handleCreateRequest creates a new request.
// @Summary Create a request
// @Description Opens a new document request in review. Only preparers may create requests.
// @Tags requests
// @Accept json
// @Produce json
// @Param request body dto.CreateRequestRequest true "Request creation body"
// @Success 201 {object} dto.RequestDetail
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /requests [post]
func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := middleware.GetActorFromContext(ctx)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "Actor identity required")
		return
	}

	var body dto.CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	req, err := h.svc.CreateRequest(ctx, actor, domain.DocumentType(body.DocumentType))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToRequestDetail(req))
}

// handleListRequests lists requests visible to the actor.
// @Summary List requests
// @Description Lists requests visible to the actor's role, optionally filtered by status
// @Tags requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {array} dto.RequestSummary
// @Failure 422 {object} dto.ErrorResponse
// @Router /requests [get]
func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := middleware.GetActorFromContext(ctx)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "Actor identity required")
		return
	}

	filter := repository.ListFilter{
		Predicate: func(req *domain.Request) bool { return queue.Visible(req, actor) },
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.Status(strings.TrimSpace(s))
			if !status.IsValid() {
				respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown status: "+string(status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	requests, err := h.svc.ListRequests(ctx, filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]dto.RequestSummary, len(requests))
	for i, req := range requests {
		out[i] = dto.ToRequestSummary(req)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetRequest returns one request with its full history.
// @Summary Get request details
// @Description Get the request including its audit trail
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} dto.RequestDetail
// @Failure 404 {object} dto.ErrorResponse
// @Router /requests/{id} [get]
func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := middleware.GetActorFromContext(ctx)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "Actor identity required")
		return
	}

	requestID, ok := extractRequestID(w, r)
	if !ok {
		return
	}

	req, err := h.svc.GetRequest(ctx, requestID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Hidden requests look missing.
	if !queue.Visible(req, actor) {
		respondError(w, http.StatusNotFound, "REQUEST_NOT_FOUND", "Request not found")
		return
	}

	respondJSON(w, http.StatusOK, dto.ToRequestDetail(req))
}

// handleSubmitAction applies a workflow action to a request.
// @Summary Submit a workflow action
// @Description Applies validate_type, accept_document, accept, approve, reject, save_draft, submit_draft, release, resume or claim
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body dto.ActionRequest true "Action"
// @Success 200 {object} dto.ActionResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /requests/{id}/actions [post]
func (h *Handler) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := middleware.GetActorFromContext(ctx)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "Actor identity required")
		return
	}

	requestID, ok := extractRequestID(w, r)
	if !ok {
		return
	}

	var body dto.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	action, err := body.ToAction()
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result, err := h.svc.SubmitAction(ctx, requestID, actor, action)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := dto.ActionResponse{
		NewStatus: string(result.NewStatus),
		Entry:     dto.ToHistoryEntry(result.Entry),
		Request:   dto.ToRequestDetail(result.Request),
	}
	if result.Relay != nil {
		relay := dto.ToHistoryEntry(*result.Relay)
		resp.Relay = &relay
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetQueues returns the actor's pending, task and history queues.
// @Summary Get work queues
// @Description Derives the actor's queues from request status and history
// @Tags queues
// @Produce json
// @Success 200 {object} dto.QueuesResponse
// @Router /queues [get]
func (h *Handler) handleGetQueues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := middleware.GetActorFromContext(ctx)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", "Actor identity required")
		return
	}

	queues, err := h.svc.GetQueues(ctx, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToQueuesResponse(actor.Role, queues))
}

// handleGetStats returns request counts by status.
// @Summary Get statistics
// @Tags stats
// @Produce json
// @Success 200 {object} dto.StatsResponse
// @Router /stats [get]
func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch stats")
		return
	}

	respondJSON(w, http.StatusOK, dto.ToStatsResponse(counts))
}
