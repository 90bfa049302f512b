package workflow

import "github.com/mtlprog/docflow/internal/domain"

// Kind names an action an operator may submit.
type Kind string

const (
	KindCreate         Kind = "create"
	KindValidateType   Kind = "validate_type"
	KindAcceptDocument Kind = "accept_document"
	KindAccept         Kind = "accept"
	KindApprove        Kind = "approve"
	KindReject         Kind = "reject"
	KindSaveDraft      Kind = "save_draft"
	KindSubmitDraft    Kind = "submit_draft"
	KindRelease        Kind = "release"
	KindResume         Kind = "resume"
	KindClaim          Kind = "claim"
)

// Action is the closed set of operator actions. Each kind carries only its own payload.
type Action interface {
	Kind() Kind
	action()
}

// Create opens a new request.
type Create struct {
	DocumentType domain.DocumentType `validate:"required,oneof=procedure instruction manual policy format standard"`
}

// ValidateType is the reviewer's verdict on the requested document type.
// A type different from the current one proposes a change to the preparer.
type ValidateType struct {
	DocumentType domain.DocumentType `validate:"required,oneof=procedure instruction manual policy format standard"`
	Comment      string              `validate:"max=2000"`
}

// AcceptDocument moves a sent draft into the reviewer's task queue.
type AcceptDocument struct {
	Comment string `validate:"max=2000"`
}

// Accept is the preparer's acceptance of a pending decision.
type Accept struct {
	Comment string `validate:"max=2000"`
}

// Approve is a positive verdict. Validators is read only for reviewer approvals.
type Approve struct {
	Validators []string `validate:"omitempty,unique,dive,required"`
	Comment    string   `validate:"max=2000"`
}

// Reject is a negative verdict.
type Reject struct {
	Comment string `validate:"max=2000"`
}

// SaveDraft stores work in progress without moving the request.
// Content applies to preparers, ReviewerComments and Validators to reviewers.
type SaveDraft struct {
	Content          *domain.Content
	ReviewerComments *string
	Validators       *[]string `validate:"omitempty,unique,dive,required"`
	Comment          string    `validate:"max=2000"`
}

// SubmitDraft sends the preparer's draft onward.
type SubmitDraft struct {
	Content *domain.Content
	Comment string `validate:"max=2000"`
}

// Release hands an open task back to the pending inbox. Content is persisted as-is.
type Release struct {
	Content *domain.Content
	Comment string `validate:"max=2000"`
}

// Resume picks a released task back up.
type Resume struct {
	Comment string `validate:"max=2000"`
}

// Claim reserves a waiting request for the actor.
type Claim struct {
	Comment string `validate:"max=2000"`
}

func (Create) Kind() Kind         { return KindCreate }
func (ValidateType) Kind() Kind   { return KindValidateType }
func (AcceptDocument) Kind() Kind { return KindAcceptDocument }
func (Accept) Kind() Kind         { return KindAccept }
func (Approve) Kind() Kind        { return KindApprove }
func (Reject) Kind() Kind         { return KindReject }
func (SaveDraft) Kind() Kind      { return KindSaveDraft }
func (SubmitDraft) Kind() Kind    { return KindSubmitDraft }
func (Release) Kind() Kind        { return KindRelease }
func (Resume) Kind() Kind         { return KindResume }
func (Claim) Kind() Kind          { return KindClaim }

func (Create) action()         {}
func (ValidateType) action()   {}
func (AcceptDocument) action() {}
func (Accept) action()         {}
func (Approve) action()        {}
func (Reject) action()         {}
func (SaveDraft) action()      {}
func (SubmitDraft) action()    {}
func (Release) action()        {}
func (Resume) action()         {}
func (Claim) action()          {}
