package workflow

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mtlprog/docflow/internal/domain"
)

// ApprovalRoute decides where a reviewer approval without validators goes.
type ApprovalRoute string

const (
	// RoutePreparer returns the request to the preparer as pending.
	RoutePreparer ApprovalRoute = "preparer"
	// RouteApprover sends the request straight to the approver queue.
	RouteApprover ApprovalRoute = "approver"
)

// IsValid checks if the route is one of the allowed values.
func (r ApprovalRoute) IsValid() bool {
	return r == RoutePreparer || r == RouteApprover
}

// Decision is the outcome of an accepted action: a patch and the entries to
// append, to be committed together.
type Decision struct {
	From      domain.Status
	NewStatus domain.Status
	Patch     domain.RequestPatch
	Entries   []domain.HistoryEntry
}

// Entry returns the entry logged for the acting operator.
func (d *Decision) Entry() domain.HistoryEntry {
	return d.Entries[0]
}

// Relay returns the System entry appended after the last validator approval, if any.
func (d *Decision) Relay() *domain.HistoryEntry {
	if len(d.Entries) < 2 {
		return nil
	}
	return &d.Entries[1]
}

// Engine decides which actions are legal and what they do. It never mutates
// the request it is given and performs no I/O.
type Engine struct {
	route    ApprovalRoute
	now      func() time.Time
	newID    func() string
	validate *validator.Validate
}

// NewEngine creates a new Engine. Nil clock and id functions fall back to UTC
// wall time and random UUIDs.
func NewEngine(route ApprovalRoute, now func() time.Time, newID func() string) *Engine {
	if !route.IsValid() {
		route = RoutePreparer
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Engine{
		route:    route,
		now:      now,
		newID:    newID,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Route returns the configured reviewer approval route.
func (e *Engine) Route() ApprovalRoute {
	return e.route
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Validate checks the actor identity and the action payload.
func (e *Engine) Validate(actor domain.Actor, action Action) error {
	if action == nil {
		return fmt.Errorf("%w: action is required", domain.ErrValidation)
	}
	if err := e.validate.Struct(actor); err != nil {
		return fmt.Errorf("%w: actor: %v", domain.ErrValidation, err)
	}
	if err := e.validate.Struct(action); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrValidation, action.Kind(), err)
	}
	return nil
}

// NewRequest builds a request in review with its creation entry.
func (e *Engine) NewRequest(actor domain.Actor, create Create, number string) (*domain.Request, error) {
	if err := e.Validate(actor, create); err != nil {
		return nil, err
	}
	if actor.Role != domain.RolePreparer {
		return nil, &IllegalTransitionError{
			Action: KindCreate,
			Role:   actor.Role,
			Reason: "only preparers create requests",
		}
	}

	now := e.now()
	req := &domain.Request{
		ID:           e.newID(),
		Number:       number,
		DocumentType: create.DocumentType,
		PreparerID:   actor.ID,
		PreparerName: actor.Name,
		Status:       domain.StatusInReview,
		Validators:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := e.entry(actor, domain.ActionCreated, "", domain.StatusInReview, "Request created and sent to reviewer")
	entry.Timestamp = now
	req.History = []domain.HistoryEntry{entry}

	return req, nil
}

// Decide evaluates an action against the request and returns what to commit.
func (e *Engine) Decide(req *domain.Request, actor domain.Actor, action Action) (*Decision, error) {
	if err := e.Validate(actor, action); err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, illegal(req, actor, action.Kind(), "request is closed")
	}

	switch a := action.(type) {
	case Create:
		return nil, illegal(req, actor, KindCreate, "request already exists")
	case ValidateType:
		return e.decideValidateType(req, actor, a)
	case AcceptDocument:
		return e.decideAcceptDocument(req, actor, a)
	case Accept:
		return e.decideAccept(req, actor, a)
	case Approve:
		return e.decideApprove(req, actor, a)
	case Reject:
		return e.decideReject(req, actor, a)
	case SaveDraft:
		return e.decideSaveDraft(req, actor, a)
	case SubmitDraft:
		return e.decideSubmitDraft(req, actor, a)
	case Release:
		return e.decideRelease(req, actor, a)
	case Resume:
		return e.decideResume(req, actor, a)
	case Claim:
		return e.decideClaim(req, actor, a)
	default:
		return nil, fmt.Errorf("%w: unknown action %T", domain.ErrValidation, action)
	}
}

func (e *Engine) decideValidateType(req *domain.Request, actor domain.Actor, a ValidateType) (*Decision, error) {
	if actor.Role != domain.RoleReviewer {
		return nil, illegal(req, actor, KindValidateType, "only reviewers validate document types")
	}
	if err := requireStatus(req, actor, KindValidateType, domain.StatusInReview); err != nil {
		return nil, err
	}

	if a.DocumentType == req.DocumentType {
		return e.transition(req, actor, domain.StatusInDevelopment, domain.ActionApproved, a.Comment, domain.RequestPatch{}), nil
	}

	previous := req.DocumentType
	d := e.transition(req, actor, domain.StatusPending, domain.ActionTypeChanged, a.Comment, domain.RequestPatch{
		DocumentType: &a.DocumentType,
		OriginalType: &previous,
	})
	d.Entries[0].PreviousType = previous
	d.Entries[0].NewType = a.DocumentType
	return d, nil
}

func (e *Engine) decideAcceptDocument(req *domain.Request, actor domain.Actor, a AcceptDocument) (*Decision, error) {
	if actor.Role != domain.RoleReviewer {
		return nil, illegal(req, actor, KindAcceptDocument, "only reviewers accept sent documents")
	}
	if err := requireStatus(req, actor, KindAcceptDocument, domain.StatusDocumentSent); err != nil {
		return nil, err
	}
	return e.transition(req, actor, domain.StatusInValidation, domain.ActionSentForReview, a.Comment, domain.RequestPatch{}), nil
}

func (e *Engine) decideAccept(req *domain.Request, actor domain.Actor, a Accept) (*Decision, error) {
	if actor.Role != domain.RolePreparer {
		return nil, illegal(req, actor, KindAccept, "only preparers accept pending decisions")
	}
	if err := CanPreparerDecide(req, actor, KindAccept); err != nil {
		return nil, err
	}

	switch ClassifyPendingFlow(req) {
	case FlowTypeDecision:
		return e.transition(req, actor, domain.StatusInDevelopment, domain.ActionChangeAccepted, a.Comment, domain.RequestPatch{}), nil
	case FlowValidatedDocument:
		return e.transition(req, actor, domain.StatusSentForApproval, domain.ActionDocumentSent, a.Comment, domain.RequestPatch{}), nil
	case FlowReleased:
		// A task released mid-draft goes back to drafting; one released after
		// the draft was sent continues to the approver.
		released := false
		patch := domain.RequestPatch{ReleasedFromTask: &released}
		if ProducingEntry(req).FromStatus == domain.StatusInDevelopment {
			return e.transition(req, actor, domain.StatusInDevelopment, domain.ActionDocumentCreated, a.Comment, patch), nil
		}
		return e.transition(req, actor, domain.StatusSentForApproval, domain.ActionDocumentSent, a.Comment, patch), nil
	default:
		return e.transition(req, actor, domain.StatusInDevelopment, domain.ActionDocumentCreated, a.Comment, domain.RequestPatch{}), nil
	}
}

func (e *Engine) decideApprove(req *domain.Request, actor domain.Actor, a Approve) (*Decision, error) {
	switch actor.Role {
	case domain.RoleReviewer:
		return e.decideReviewerApprove(req, actor, a)
	case domain.RoleValidator:
		return e.decideValidatorApprove(req, actor, a)
	case domain.RoleApprover:
		if err := requireStatus(req, actor, KindApprove, domain.StatusInApproval); err != nil {
			return nil, err
		}
		if err := requireHolder(req, actor, KindApprove); err != nil {
			return nil, err
		}
		return e.transition(req, actor, domain.StatusApproved, domain.ActionApproved, a.Comment, domain.RequestPatch{}), nil
	}
	return nil, illegal(req, actor, KindApprove, "preparers accept instead of approving")
}

func (e *Engine) decideReviewerApprove(req *domain.Request, actor domain.Actor, a Approve) (*Decision, error) {
	if err := requireStage(req, actor, KindApprove, domain.RoleReviewer); err != nil {
		return nil, err
	}

	validators := a.Validators
	if len(validators) == 0 {
		validators = req.Validators
	}
	if len(validators) > 0 {
		assigned := slices.Clone(validators)
		return e.transition(req, actor, domain.StatusPending, domain.ActionSentForValidation, a.Comment, domain.RequestPatch{
			Validators: &assigned,
		}), nil
	}

	target := domain.StatusPending
	if e.route == RouteApprover {
		target = domain.StatusValidationCompleted
	}
	return e.transition(req, actor, target, domain.ActionApproved, a.Comment, domain.RequestPatch{}), nil
}

func (e *Engine) decideValidatorApprove(req *domain.Request, actor domain.Actor, a Approve) (*Decision, error) {
	if err := CanValidatorApprove(req, actor); err != nil {
		return nil, err
	}

	approval := e.entry(actor, domain.ActionValidationApproved, req.Status, req.Status, a.Comment)
	d := &Decision{
		From:      req.Status,
		NewStatus: req.Status,
		Entries:   []domain.HistoryEntry{approval},
	}

	if len(RoundApprovals(req))+1 < len(req.Validators) {
		return d, nil
	}

	pending := domain.StatusPending
	relay := e.entry(domain.SystemActor, domain.ActionValidationCompleted, req.Status, pending,
		"All assigned validators approved; returned to preparer")
	relay.Timestamp = approval.Timestamp
	d.NewStatus = pending
	d.Patch.Status = &pending
	d.Entries = append(d.Entries, relay)
	return d, nil
}

func (e *Engine) decideReject(req *domain.Request, actor domain.Actor, a Reject) (*Decision, error) {
	switch actor.Role {
	case domain.RoleReviewer:
		switch req.Status {
		case domain.StatusInReview, domain.StatusDocumentSent:
			return e.transition(req, actor, domain.StatusRejected, domain.ActionRejected, a.Comment, domain.RequestPatch{}), nil
		case domain.StatusInValidation:
			if err := requireStage(req, actor, KindReject, domain.RoleReviewer); err != nil {
				return nil, err
			}
			patch := domain.RequestPatch{}
			if a.Comment != "" {
				patch.ReviewerComments = &a.Comment
			}
			return e.transition(req, actor, domain.StatusPending, domain.ActionRejected, a.Comment, patch), nil
		}
		return nil, illegal(req, actor, KindReject, "reviewers reject in review, sent or held documents")

	case domain.RolePreparer:
		if err := CanPreparerDecide(req, actor, KindReject); err != nil {
			return nil, err
		}
		return e.transition(req, actor, domain.StatusRejected, domain.ActionRejected, a.Comment, domain.RequestPatch{}), nil

	case domain.RoleValidator:
		if err := requireStage(req, actor, KindReject, domain.RoleValidator); err != nil {
			return nil, err
		}
		if err := requireAssigned(req, actor, KindReject); err != nil {
			return nil, err
		}
		return e.transition(req, actor, domain.StatusPending, domain.ActionRejected, a.Comment, domain.RequestPatch{}), nil

	case domain.RoleApprover:
		if err := requireStatus(req, actor, KindReject, domain.StatusInApproval); err != nil {
			return nil, err
		}
		if err := requireHolder(req, actor, KindReject); err != nil {
			return nil, err
		}
		return e.transition(req, actor, domain.StatusRejected, domain.ActionRejected, a.Comment, domain.RequestPatch{}), nil
	}
	return nil, illegal(req, actor, KindReject, "unknown role")
}

func (e *Engine) decideSaveDraft(req *domain.Request, actor domain.Actor, a SaveDraft) (*Decision, error) {
	if err := CanEditDraft(req, actor); err != nil {
		return nil, err
	}

	var patch domain.RequestPatch
	switch actor.Role {
	case domain.RolePreparer:
		patch.Content = a.Content
	case domain.RoleReviewer:
		patch.ReviewerComments = a.ReviewerComments
		if a.Validators != nil {
			assigned := slices.Clone(*a.Validators)
			patch.Validators = &assigned
		}
	}
	return e.transition(req, actor, req.Status, domain.ActionDrafted, a.Comment, patch), nil
}

func (e *Engine) decideSubmitDraft(req *domain.Request, actor domain.Actor, a SubmitDraft) (*Decision, error) {
	if actor.Role != domain.RolePreparer {
		return nil, illegal(req, actor, KindSubmitDraft, "only preparers submit drafts")
	}
	if err := requireOwnRequest(req, actor, KindSubmitDraft); err != nil {
		return nil, err
	}
	if err := requireStatus(req, actor, KindSubmitDraft, domain.StatusInDevelopment); err != nil {
		return nil, err
	}

	target := domain.StatusSentForApproval
	if IsFirstSubmission(req) {
		target = domain.StatusDocumentSent
	}
	return e.transition(req, actor, target, domain.ActionDocumentSent, a.Comment, domain.RequestPatch{
		Content: a.Content,
	}), nil
}

func (e *Engine) decideRelease(req *domain.Request, actor domain.Actor, a Release) (*Decision, error) {
	if err := CanRelease(req, actor); err != nil {
		return nil, err
	}

	released := true
	patch := domain.RequestPatch{ReleasedFromTask: &released}
	if actor.Role == domain.RolePreparer {
		patch.Content = a.Content
	}
	return e.transition(req, actor, domain.StatusPending, domain.ActionTaskReleased, a.Comment, patch), nil
}

func (e *Engine) decideResume(req *domain.Request, actor domain.Actor, a Resume) (*Decision, error) {
	if err := CanResume(req, actor); err != nil {
		return nil, err
	}

	released := false
	return e.transition(req, actor, ProducingEntry(req).FromStatus, domain.ActionTaskResumed, a.Comment, domain.RequestPatch{
		ReleasedFromTask: &released,
	}), nil
}

func (e *Engine) decideClaim(req *domain.Request, actor domain.Actor, a Claim) (*Decision, error) {
	if err := CanClaim(req, actor); err != nil {
		return nil, err
	}
	target := domain.StatusInApproval
	if actor.Role == domain.RoleValidator {
		target = domain.StatusInValidation
	}
	return e.transition(req, actor, target, domain.ActionReserved, a.Comment, domain.RequestPatch{}), nil
}

// transition builds a single-entry decision moving the request to target.
func (e *Engine) transition(
	req *domain.Request,
	actor domain.Actor,
	target domain.Status,
	action domain.HistoryAction,
	details string,
	patch domain.RequestPatch,
) *Decision {
	if target != req.Status {
		patch.Status = &target
	}
	return &Decision{
		From:      req.Status,
		NewStatus: target,
		Patch:     patch,
		Entries:   []domain.HistoryEntry{e.entry(actor, action, req.Status, target, details)},
	}
}

func (e *Engine) entry(actor domain.Actor, action domain.HistoryAction, from, to domain.Status, details string) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:         e.newID(),
		Action:     action,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   to,
		Details:    details,
		Timestamp:  e.now(),
	}
}
