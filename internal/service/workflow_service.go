package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/metrics"
	"github.com/mtlprog/docflow/internal/queue"
	"github.com/mtlprog/docflow/internal/repository"
	"github.com/mtlprog/docflow/internal/workflow"
)

// WorkflowService coordinates request operations and state transitions.
type WorkflowService struct {
	store   repository.RequestStore
	engine  *workflow.Engine
	metrics *metrics.Workflow
	locks   *keyedMutex
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.RequestStore, engine *workflow.Engine) *WorkflowService {
	return &WorkflowService{
		store:   store,
		engine:  engine,
		metrics: metrics.Default(),
		locks:   newKeyedMutex(),
	}
}

// Result is the outcome of an accepted action.
type Result struct {
	Request   *domain.Request
	NewStatus domain.Status
	Entry     domain.HistoryEntry
	// Relay is set when the last validator approval handed the request back to the preparer.
	Relay *domain.HistoryEntry
}

// CreateRequest opens a new request in review for the preparer.
func (s *WorkflowService) CreateRequest(
	ctx context.Context,
	actor domain.Actor,
	documentType domain.DocumentType,
) (*domain.Request, error) {
	create := workflow.Create{DocumentType: documentType}
	if err := s.engine.Validate(actor, create); err != nil {
		s.refused(workflow.KindCreate, actor, err)
		return nil, err
	}

	seq, err := s.store.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate request number: %w", err)
	}

	req, err := s.engine.NewRequest(actor, create, repository.FormatNumber(seq))
	if err != nil {
		s.refused(workflow.KindCreate, actor, err)
		return nil, err
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.metrics.RequestCreated(string(req.DocumentType))
	slog.Info("request created",
		"request_id", req.ID,
		"number", req.Number,
		"document_type", req.DocumentType,
		"preparer_id", actor.ID,
	)

	return req, nil
}

// SubmitAction evaluates the action and commits its patch and history entries
// together. Refused actions change nothing.
func (s *WorkflowService) SubmitAction(
	ctx context.Context,
	requestID string,
	actor domain.Actor,
	action workflow.Action,
) (*Result, error) {
	if err := s.engine.Validate(actor, action); err != nil {
		s.refused(kindOf(action), actor, err)
		return nil, err
	}

	unlock := s.locks.Lock(requestID)
	defer unlock()

	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		s.refused(action.Kind(), actor, err)
		return nil, err
	}

	decision, err := s.engine.Decide(req, actor, action)
	if err != nil {
		s.refused(action.Kind(), actor, err)
		slog.Warn("action refused",
			"request_id", requestID,
			"action", action.Kind(),
			"actor_id", actor.ID,
			"actor_role", actor.Role,
			"status", req.Status,
			"error", err,
		)
		return nil, err
	}

	updated, err := s.store.Commit(ctx, requestID, repository.RevisionOf(req), decision.Patch, decision.Entries)
	if err != nil {
		s.refused(action.Kind(), actor, err)
		return nil, fmt.Errorf("commit %s on request %s: %w", action.Kind(), requestID, err)
	}

	s.metrics.Transition(string(action.Kind()), string(actor.Role), string(decision.From), string(decision.NewStatus))
	if decision.Relay() != nil {
		s.metrics.Relayed()
	}

	entry := decision.Entry()
	slog.Info("action applied",
		"request_id", requestID,
		"action", action.Kind(),
		"actor_id", actor.ID,
		"actor_role", actor.Role,
		"old_status", decision.From,
		"new_status", decision.NewStatus,
		"entry_id", entry.ID,
	)

	return &Result{
		Request:   updated,
		NewStatus: decision.NewStatus,
		Entry:     entry,
		Relay:     decision.Relay(),
	}, nil
}

// GetRequest returns a request with its full history.
func (s *WorkflowService) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	return s.store.Get(ctx, id)
}

// ListRequests returns requests matching the filter in insertion order.
func (s *WorkflowService) ListRequests(ctx context.Context, filter repository.ListFilter) ([]*domain.Request, error) {
	return s.store.List(ctx, filter)
}

// GetQueues derives the pending, task, and history queues for the actor.
func (s *WorkflowService) GetQueues(ctx context.Context, actor domain.Actor) (*queue.Queues, error) {
	if !actor.Role.IsOperator() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, actor.Role)
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: actor id is required", domain.ErrValidation)
	}

	filter := repository.ListFilter{
		Predicate: func(req *domain.Request) bool { return queue.Visible(req, actor) },
	}
	if actor.Role == domain.RolePreparer {
		filter.PreparerID = actor.ID
	}

	requests, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return queue.Build(requests, actor), nil
}

// Stats counts requests per status, including statuses with none.
func (s *WorkflowService) Stats(ctx context.Context) (map[domain.Status]int, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	out := make(map[domain.Status]int, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		out[status] = counts[status]
	}
	return out, nil
}

// Ping checks if the store is reachable.
func (s *WorkflowService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *WorkflowService) refused(kind workflow.Kind, actor domain.Actor, err error) {
	s.metrics.Refused(string(kind), string(actor.Role), refusalReason(err))
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, domain.ErrRequestNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStatusConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

func kindOf(action workflow.Action) workflow.Kind {
	if action == nil {
		return "unknown"
	}
	return action.Kind()
}
