package workflow

import (
	"fmt"
	"slices"

	"github.com/mtlprog/docflow/internal/domain"
)

// IllegalTransitionError identifies the (status, action) pair an actor tried.
// Callers should not retry it; it points at a workflow or UI bug.
type IllegalTransitionError struct {
	RequestID string
	Status    domain.Status
	Flow      FlowKind
	Action    Kind
	Role      domain.Role
	Reason    string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s by %s on request %s in status %s", domain.ErrIllegalTransition, e.Action, e.Role, e.RequestID, e.Status)
	if e.Flow != "" && e.Flow != FlowNone {
		msg += fmt.Sprintf(" (%s)", e.Flow)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IllegalTransitionError) Unwrap() error {
	return domain.ErrIllegalTransition
}

func illegal(req *domain.Request, actor domain.Actor, kind Kind, reason string, args ...any) error {
	return &IllegalTransitionError{
		RequestID: req.ID,
		Status:    req.Status,
		Flow:      ClassifyPendingFlow(req),
		Action:    kind,
		Role:      actor.Role,
		Reason:    fmt.Sprintf(reason, args...),
	}
}

func requireStatus(req *domain.Request, actor domain.Actor, kind Kind, allowed ...domain.Status) error {
	if slices.Contains(allowed, req.Status) {
		return nil
	}
	return illegal(req, actor, kind, "expected status %v", allowed)
}

func requireOwnRequest(req *domain.Request, actor domain.Actor, kind Kind) error {
	if !req.IsPreparedBy(actor.ID) {
		return illegal(req, actor, kind, "actor %s is not the preparer of this request", actor.ID)
	}
	return nil
}

func requireStage(req *domain.Request, actor domain.Actor, kind Kind, stage domain.Role) error {
	if err := requireStatus(req, actor, kind, domain.StatusInValidation); err != nil {
		return err
	}
	if got := ValidationStage(req); got != stage {
		return illegal(req, actor, kind, "request is held by the %s stage", got)
	}
	return nil
}

func requireAssigned(req *domain.Request, actor domain.Actor, kind Kind) error {
	if !req.HasValidator(actor.ID) {
		return illegal(req, actor, kind, "validator %s is not assigned", actor.ID)
	}
	return nil
}

func requireFlow(req *domain.Request, actor domain.Actor, kind Kind, allowed ...FlowKind) error {
	if err := requireStatus(req, actor, kind, domain.StatusPending); err != nil {
		return err
	}
	if flow := ClassifyPendingFlow(req); !slices.Contains(allowed, flow) {
		return illegal(req, actor, kind, "pending flow %s offers no %s", flow, kind)
	}
	return nil
}

func requireHolder(req *domain.Request, actor domain.Actor, kind Kind) error {
	if holder := Holder(req); holder != actor.ID {
		return illegal(req, actor, kind, "task is held by %s", holder)
	}
	return nil
}

// CanRelease validates if the actor holds an open task it can hand back.
func CanRelease(req *domain.Request, actor domain.Actor) error {
	switch actor.Role {
	case domain.RolePreparer:
		if err := requireOwnRequest(req, actor, KindRelease); err != nil {
			return err
		}
		return requireStatus(req, actor, KindRelease, domain.StatusInDevelopment)
	case domain.RoleReviewer:
		return requireStage(req, actor, KindRelease, domain.RoleReviewer)
	case domain.RoleValidator:
		if err := requireStage(req, actor, KindRelease, domain.RoleValidator); err != nil {
			return err
		}
		return requireAssigned(req, actor, KindRelease)
	case domain.RoleApprover:
		if err := requireStatus(req, actor, KindRelease, domain.StatusInApproval); err != nil {
			return err
		}
		return requireHolder(req, actor, KindRelease)
	}
	return illegal(req, actor, KindRelease, "role cannot hold tasks")
}

// CanResume validates if the actor can pick a released task back up.
func CanResume(req *domain.Request, actor domain.Actor) error {
	if err := requireFlow(req, actor, KindResume, FlowReleased); err != nil {
		return err
	}
	releaser := ProducingEntry(req)
	if releaser.ActorRole != actor.Role {
		return illegal(req, actor, KindResume, "task was released by the %s role", releaser.ActorRole)
	}
	switch actor.Role {
	case domain.RolePreparer:
		return requireOwnRequest(req, actor, KindResume)
	case domain.RoleValidator:
		return requireAssigned(req, actor, KindResume)
	case domain.RoleApprover:
		if releaser.ActorID != actor.ID {
			return illegal(req, actor, KindResume, "task was released by %s", releaser.ActorID)
		}
	}
	return nil
}

// CanClaim validates if the actor can reserve a waiting request.
func CanClaim(req *domain.Request, actor domain.Actor) error {
	switch actor.Role {
	case domain.RoleValidator:
		if err := requireFlow(req, actor, KindClaim, FlowAwaitingValidation); err != nil {
			return err
		}
		return requireAssigned(req, actor, KindClaim)
	case domain.RoleApprover:
		return requireStatus(req, actor, KindClaim, domain.StatusSentForApproval, domain.StatusValidationCompleted)
	}
	return illegal(req, actor, KindClaim, "only validators and approvers claim requests")
}

// CanPreparerDecide validates a preparer accept or reject on a pending request.
func CanPreparerDecide(req *domain.Request, actor domain.Actor, kind Kind) error {
	if err := requireOwnRequest(req, actor, kind); err != nil {
		return err
	}
	return requireFlow(req, actor, kind,
		FlowTypeDecision, FlowReleased, FlowReviewerApproved, FlowValidatedDocument, FlowReturnedForRevision)
}

// CanValidatorApprove validates a validator sign-off. A second approval in the
// same round is illegal, so it never counts twice.
func CanValidatorApprove(req *domain.Request, actor domain.Actor) error {
	if err := requireStage(req, actor, KindApprove, domain.RoleValidator); err != nil {
		return err
	}
	if err := requireAssigned(req, actor, KindApprove); err != nil {
		return err
	}
	if HasApprovedInRound(req, actor.ID) {
		return illegal(req, actor, KindApprove, "validator %s already approved", actor.ID)
	}
	return nil
}

// CanEditDraft validates a save without transition for the actor's role.
func CanEditDraft(req *domain.Request, actor domain.Actor) error {
	switch actor.Role {
	case domain.RolePreparer:
		if err := requireOwnRequest(req, actor, KindSaveDraft); err != nil {
			return err
		}
		return requireStatus(req, actor, KindSaveDraft, domain.StatusInDevelopment)
	case domain.RoleReviewer:
		return requireStage(req, actor, KindSaveDraft, domain.RoleReviewer)
	case domain.RoleValidator:
		if err := requireStage(req, actor, KindSaveDraft, domain.RoleValidator); err != nil {
			return err
		}
		return requireAssigned(req, actor, KindSaveDraft)
	}
	return illegal(req, actor, KindSaveDraft, "role has no draft to save")
}
