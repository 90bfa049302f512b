// Package queue derives each operator's work queues from the request
// collection. It is pure: the same requests and actor always give the same queues.
package queue

import (
	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/workflow"
)

// Queues is what an operator sees.
type Queues struct {
	// Pending holds requests waiting for the actor to pick up or decide.
	Pending []*domain.Request
	// Tasks holds requests the actor is currently working on.
	Tasks []*domain.Request
	// History holds requests the actor already acted on, or closed ones.
	History []*domain.Request
}

// Build sorts requests into the actor's queues, keeping input order.
func Build(requests []*domain.Request, actor domain.Actor) *Queues {
	q := &Queues{
		Pending: []*domain.Request{},
		Tasks:   []*domain.Request{},
		History: []*domain.Request{},
	}

	for _, req := range requests {
		if !Visible(req, actor) {
			continue
		}
		switch {
		case IsPendingFor(req, actor):
			q.Pending = append(q.Pending, req)
		case IsTaskOf(req, actor):
			q.Tasks = append(q.Tasks, req)
		case req.Status.IsTerminal() || workflow.HasActed(req, actor.ID):
			q.History = append(q.History, req)
		}
	}

	return q
}

// Visible reports whether the actor's role may see the request at all.
func Visible(req *domain.Request, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RolePreparer:
		return req.IsPreparedBy(actor.ID)
	case domain.RoleValidator:
		return req.HasValidator(actor.ID)
	case domain.RoleReviewer, domain.RoleApprover:
		return true
	default:
		return false
	}
}

// IsPendingFor reports whether the request waits on this actor and the actor
// has not acted on it since it entered its current status.
func IsPendingFor(req *domain.Request, actor domain.Actor) bool {
	if !eligible(req, actor) {
		return false
	}
	return !workflow.ActedSinceStatus(req, actor.ID)
}

func eligible(req *domain.Request, actor domain.Actor) bool {
	flow := workflow.ClassifyPendingFlow(req)
	if flow == workflow.FlowReleased {
		return actor.Role == domain.RolePreparer || releasedTo(req, actor)
	}

	switch actor.Role {
	case domain.RolePreparer:
		switch flow {
		case workflow.FlowTypeDecision, workflow.FlowReviewerApproved,
			workflow.FlowValidatedDocument, workflow.FlowReturnedForRevision:
			return true
		}
	case domain.RoleReviewer:
		return req.Status == domain.StatusInReview || req.Status == domain.StatusDocumentSent
	case domain.RoleValidator:
		return flow == workflow.FlowAwaitingValidation
	case domain.RoleApprover:
		return req.Status == domain.StatusSentForApproval || req.Status == domain.StatusValidationCompleted
	}
	return false
}

// releasedTo reports whether the actor released the task and may resume it.
func releasedTo(req *domain.Request, actor domain.Actor) bool {
	releaser := workflow.ProducingEntry(req)
	if releaser.ActorRole != actor.Role {
		return false
	}
	if actor.Role == domain.RoleApprover {
		return releaser.ActorID == actor.ID
	}
	return true
}

// IsTaskOf reports whether the actor currently holds the request.
func IsTaskOf(req *domain.Request, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RolePreparer:
		return req.Status == domain.StatusInDevelopment
	case domain.RoleReviewer:
		return workflow.ValidationStage(req) == domain.RoleReviewer
	case domain.RoleValidator:
		return workflow.ValidationStage(req) == domain.RoleValidator &&
			!workflow.HasApprovedInRound(req, actor.ID)
	case domain.RoleApprover:
		return req.Status == domain.StatusInApproval && workflow.Holder(req) == actor.ID
	}
	return false
}
