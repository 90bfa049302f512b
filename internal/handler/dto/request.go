package dto

import (
	"fmt"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/workflow"
)

// CreateRequestRequest represents the request body for POST /requests.
type CreateRequestRequest struct {
	DocumentType string `json:"document_type"`
}

// ContentBody is the drafted document body.
type ContentBody struct {
	Objective   string `json:"objective"`
	Scope       string `json:"scope"`
	Development string `json:"development"`
}

// ActionRequest represents the request body for POST /requests/{id}/actions.
// Only the fields the named action uses are read.
type ActionRequest struct {
	Action           string       `json:"action"`
	Comment          string       `json:"comment,omitempty"`
	DocumentType     string       `json:"document_type,omitempty"`
	Validators       []string     `json:"validators,omitempty"`
	Content          *ContentBody `json:"content,omitempty"`
	ReviewerComments *string      `json:"reviewer_comments,omitempty"`
}

// ToAction converts the body into a typed workflow action.
func (r ActionRequest) ToAction() (workflow.Action, error) {
	content := r.content()

	switch workflow.Kind(r.Action) {
	case workflow.KindValidateType:
		return workflow.ValidateType{DocumentType: domain.DocumentType(r.DocumentType), Comment: r.Comment}, nil
	case workflow.KindAcceptDocument:
		return workflow.AcceptDocument{Comment: r.Comment}, nil
	case workflow.KindAccept:
		return workflow.Accept{Comment: r.Comment}, nil
	case workflow.KindApprove:
		return workflow.Approve{Validators: r.Validators, Comment: r.Comment}, nil
	case workflow.KindReject:
		return workflow.Reject{Comment: r.Comment}, nil
	case workflow.KindSaveDraft:
		save := workflow.SaveDraft{Content: content, ReviewerComments: r.ReviewerComments, Comment: r.Comment}
		if r.Validators != nil {
			validators := r.Validators
			save.Validators = &validators
		}
		return save, nil
	case workflow.KindSubmitDraft:
		return workflow.SubmitDraft{Content: content, Comment: r.Comment}, nil
	case workflow.KindRelease:
		return workflow.Release{Content: content, Comment: r.Comment}, nil
	case workflow.KindResume:
		return workflow.Resume{Comment: r.Comment}, nil
	case workflow.KindClaim:
		return workflow.Claim{Comment: r.Comment}, nil
	case workflow.KindCreate:
		return nil, fmt.Errorf("%w: create requests with POST /api/v1/requests", domain.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, r.Action)
	}
}

func (r ActionRequest) content() *domain.Content {
	if r.Content == nil {
		return nil
	}
	return &domain.Content{
		Objective:   r.Content.Objective,
		Scope:       r.Content.Scope,
		Development: r.Content.Development,
	}
}
