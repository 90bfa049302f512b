package domain

import (
	"slices"
	"time"
)

// Status represents the position of a request in the approval workflow.
type Status string

const (
	StatusInReview            Status = "in_review"
	StatusInDevelopment       Status = "in_development"
	StatusDocumentSent        Status = "document_sent"
	StatusInValidation        Status = "in_validation"
	StatusPending             Status = "pending"
	StatusSentForApproval     Status = "sent_for_approval"
	StatusValidationCompleted Status = "validation_completed"
	StatusInApproval          Status = "in_approval"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusInReview,
	StatusInDevelopment,
	StatusDocumentSent,
	StatusInValidation,
	StatusPending,
	StatusSentForApproval,
	StatusValidationCompleted,
	StatusInApproval,
	StatusApproved,
	StatusRejected,
}

// IsTerminal returns true if the status is terminal (no transitions allowed).
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsValid checks if the status is one of the allowed values.
func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses, s)
}

// DocumentType is the kind of controlled document a request produces.
type DocumentType string

const (
	DocumentTypeProcedure   DocumentType = "procedure"
	DocumentTypeInstruction DocumentType = "instruction"
	DocumentTypeManual      DocumentType = "manual"
	DocumentTypePolicy      DocumentType = "policy"
	DocumentTypeFormat      DocumentType = "format"
	DocumentTypeStandard    DocumentType = "standard"
)

// IsValid checks if the document type is one of the allowed values.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeProcedure, DocumentTypeInstruction, DocumentTypeManual,
		DocumentTypePolicy, DocumentTypeFormat, DocumentTypeStandard:
		return true
	default:
		return false
	}
}

// Content holds the drafted body of the document.
type Content struct {
	Objective   string `json:"objective"`
	Scope       string `json:"scope"`
	Development string `json:"development"`
}

// Request is one document moving through the approval workflow.
type Request struct {
	ID               string         `json:"id"`
	Number           string         `json:"number"`
	DocumentType     DocumentType   `json:"document_type"`
	OriginalType     DocumentType   `json:"original_type,omitempty"`
	PreparerID       string         `json:"preparer_id"`
	PreparerName     string         `json:"preparer_name"`
	Status           Status         `json:"status"`
	Content          Content        `json:"content"`
	Validators       []string       `json:"validators"`
	ReviewerComments string         `json:"reviewer_comments"`
	ReleasedFromTask bool           `json:"released_from_task"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	History          []HistoryEntry `json:"history"`
}

// IsPreparedBy checks if the request was created by the given actor.
func (r *Request) IsPreparedBy(actorID string) bool {
	return r.PreparerID == actorID
}

// HasValidator checks if the actor is one of the assigned validators.
func (r *Request) HasValidator(actorID string) bool {
	return slices.Contains(r.Validators, actorID)
}

// Clone returns a deep copy so callers never share history or validator slices.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Validators = slices.Clone(r.Validators)
	c.History = slices.Clone(r.History)
	return &c
}

// RequestPatch is a partial update of a request. Nil fields are left unchanged.
type RequestPatch struct {
	Status           *Status
	DocumentType     *DocumentType
	OriginalType     *DocumentType
	Content          *Content
	Validators       *[]string
	ReviewerComments *string
	ReleasedFromTask *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p RequestPatch) IsEmpty() bool {
	return p.Status == nil && p.DocumentType == nil && p.OriginalType == nil &&
		p.Content == nil && p.Validators == nil && p.ReviewerComments == nil &&
		p.ReleasedFromTask == nil
}

// ApplyTo merges the patch into the request and stamps UpdatedAt.
func (p RequestPatch) ApplyTo(r *Request, now time.Time) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.DocumentType != nil {
		r.DocumentType = *p.DocumentType
	}
	if p.OriginalType != nil {
		r.OriginalType = *p.OriginalType
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Validators != nil {
		r.Validators = slices.Clone(*p.Validators)
	}
	if p.ReviewerComments != nil {
		r.ReviewerComments = *p.ReviewerComments
	}
	if p.ReleasedFromTask != nil {
		r.ReleasedFromTask = *p.ReleasedFromTask
	}
	if now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
}
