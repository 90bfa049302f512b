package domain

import "time"

// HistoryAction is the closed vocabulary of audit trail entries.
type HistoryAction string

const (
	ActionCreated             HistoryAction = "created"
	ActionSentForReview       HistoryAction = "sent_for_review"
	ActionApproved            HistoryAction = "approved"
	ActionRejected            HistoryAction = "rejected"
	ActionTypeChanged         HistoryAction = "type_changed"
	ActionChangeAccepted      HistoryAction = "change_accepted"
	ActionDocumentCreated     HistoryAction = "document_created"
	ActionDocumentSent        HistoryAction = "document_sent"
	ActionSentForValidation   HistoryAction = "sent_for_validation"
	ActionValidationApproved  HistoryAction = "validation_approved"
	ActionValidationCompleted HistoryAction = "validation_completed"
	ActionDrafted             HistoryAction = "drafted"
	ActionTaskReleased        HistoryAction = "task_released"
	ActionTaskResumed         HistoryAction = "task_resumed"
	ActionReserved            HistoryAction = "reserved"
)

// HistoryEntry is an immutable audit record of one action on a request.
type HistoryEntry struct {
	ID           string        `json:"id"`
	Action       HistoryAction `json:"action"`
	ActorID      string        `json:"actor_id"`
	ActorName    string        `json:"actor_name"`
	ActorRole    Role          `json:"actor_role"`
	FromStatus   Status        `json:"from_status,omitempty"`
	ToStatus     Status        `json:"to_status"`
	Details      string        `json:"details,omitempty"`
	PreviousType DocumentType  `json:"previous_type,omitempty"`
	NewType      DocumentType  `json:"new_type,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// IsSystemEntry returns true if the entry was logged by the automatic relay.
func (e *HistoryEntry) IsSystemEntry() bool {
	return e.ActorRole == RoleSystem
}

// MovedStatus reports whether the entry changed the request status.
func (e *HistoryEntry) MovedStatus() bool {
	return e.FromStatus != e.ToStatus
}
