package workflow

import "github.com/mtlprog/docflow/internal/domain"

// FlowKind says what a pending request is waiting for.
type FlowKind string

const (
	FlowNone                FlowKind = "none"
	FlowTypeDecision        FlowKind = "type_decision"
	FlowReleased            FlowKind = "released"
	FlowAwaitingValidation  FlowKind = "awaiting_validation"
	FlowValidatedDocument   FlowKind = "validated_document"
	FlowReturnedForRevision FlowKind = "returned_for_revision"
	FlowReviewerApproved    FlowKind = "reviewer_approved"
	FlowGeneric             FlowKind = "generic"
)

// ClassifyPendingFlow is the only place that interprets a pending request.
// The status alone is ambiguous, so the answer comes from the history tail:
//
//  1. a proposed type change the preparer has not answered yet
//  2. a task released by its holder (the release entry produced the status)
//  3. a reviewer routing to validators
//  4. a completed validation round, relayed by System
//  5. a rejection returned for revision
//  6. a reviewer approval with no validators assigned
//
// Anything else is generic and offers no decision actions.
func ClassifyPendingFlow(req *domain.Request) FlowKind {
	if req.Status != domain.StatusPending {
		return FlowNone
	}

	if req.OriginalType != "" && !preparerAnsweredTypeChange(req) {
		return FlowTypeDecision
	}

	producer := ProducingEntry(req)
	if producer == nil {
		return FlowGeneric
	}

	switch {
	case req.ReleasedFromTask && producer.Action == domain.ActionTaskReleased:
		return FlowReleased
	case producer.Action == domain.ActionSentForValidation:
		return FlowAwaitingValidation
	case producer.Action == domain.ActionValidationCompleted && producer.IsSystemEntry():
		return FlowValidatedDocument
	case producer.Action == domain.ActionRejected:
		return FlowReturnedForRevision
	case len(RoundApprovals(req)) > 0:
		return FlowValidatedDocument
	case producer.Action == domain.ActionApproved &&
		producer.ActorRole == domain.RoleReviewer &&
		len(req.Validators) == 0:
		return FlowReviewerApproved
	}

	return FlowGeneric
}

func preparerAnsweredTypeChange(req *domain.Request) bool {
	for _, e := range req.History {
		if e.ActorRole != domain.RolePreparer {
			continue
		}
		switch e.Action {
		case domain.ActionDocumentCreated, domain.ActionChangeAccepted, domain.ActionRejected:
			return true
		}
	}
	return false
}

// ProducingEntryIndex returns the index of the entry that moved the request
// into its current status, or -1 if there is none.
func ProducingEntryIndex(req *domain.Request) int {
	for i := len(req.History) - 1; i >= 0; i-- {
		e := &req.History[i]
		if e.ToStatus == req.Status && e.MovedStatus() {
			return i
		}
	}
	return -1
}

// ProducingEntry returns the entry that moved the request into its current status.
func ProducingEntry(req *domain.Request) *domain.HistoryEntry {
	idx := ProducingEntryIndex(req)
	if idx < 0 {
		return nil
	}
	return &req.History[idx]
}

// ReleasedBy returns the role that released a pending task, or "" if the
// request is not in the released flow.
func ReleasedBy(req *domain.Request) domain.Role {
	if ClassifyPendingFlow(req) != FlowReleased {
		return ""
	}
	return ProducingEntry(req).ActorRole
}

// ValidationStage returns who holds an in_validation request: the reviewer
// before routing, or the validators after one of them claimed it.
func ValidationStage(req *domain.Request) domain.Role {
	if req.Status != domain.StatusInValidation {
		return ""
	}
	if p := ProducingEntry(req); p != nil && p.ActorRole == domain.RoleValidator {
		return domain.RoleValidator
	}
	return domain.RoleReviewer
}

// Holder returns the actor id that produced the current status.
func Holder(req *domain.Request) string {
	if p := ProducingEntry(req); p != nil {
		return p.ActorID
	}
	return ""
}

// roundStart returns the index of the latest sent_for_validation entry, or -1.
func roundStart(req *domain.Request) int {
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Action == domain.ActionSentForValidation {
			return i
		}
	}
	return -1
}

// RoundApprovals returns the assigned validators that approved in the current
// validation round. A validator counts once no matter how many entries it logged.
func RoundApprovals(req *domain.Request) map[string]struct{} {
	approved := make(map[string]struct{})
	start := roundStart(req)
	if start < 0 {
		return approved
	}
	for _, e := range req.History[start+1:] {
		if e.Action == domain.ActionValidationApproved && req.HasValidator(e.ActorID) {
			approved[e.ActorID] = struct{}{}
		}
	}
	return approved
}

// HasApprovedInRound checks if the validator already approved in the current round.
func HasApprovedInRound(req *domain.Request, actorID string) bool {
	_, ok := RoundApprovals(req)[actorID]
	return ok
}

// ActedSinceStatus checks if the actor logged any entry after the request
// entered its current status.
func ActedSinceStatus(req *domain.Request, actorID string) bool {
	for _, e := range req.History[ProducingEntryIndex(req)+1:] {
		if e.ActorID == actorID {
			return true
		}
	}
	return false
}

// HasActed checks if the actor logged any entry on the request.
func HasActed(req *domain.Request, actorID string) bool {
	for _, e := range req.History {
		if e.ActorID == actorID {
			return true
		}
	}
	return false
}

// IsFirstSubmission reports whether the preparer has never sent a draft before.
func IsFirstSubmission(req *domain.Request) bool {
	for _, e := range req.History {
		if e.Action == domain.ActionDocumentSent {
			return false
		}
	}
	return true
}
