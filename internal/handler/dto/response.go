package dto

import (
	"time"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/queue"
	"github.com/mtlprog/docflow/internal/workflow"
)

// RequestSummary represents a request in queue listings (without history).
type RequestSummary struct {
	ID               string    `json:"id"`
	Number           string    `json:"number"`
	DocumentType     string    `json:"document_type"`
	Status           string    `json:"status"`
	Flow             string    `json:"flow,omitempty"`
	PreparerID       string    `json:"preparer_id"`
	PreparerName     string    `json:"preparer_name"`
	ReleasedFromTask bool      `json:"released_from_task"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RequestDetail represents the full request with its history.
type RequestDetail struct {
	RequestSummary
	OriginalType     *string        `json:"original_type"`
	Content          ContentBody    `json:"content"`
	Validators       []string       `json:"validators"`
	ReviewerComments string         `json:"reviewer_comments"`
	History          []HistoryEntry `json:"history"`
}

// HistoryEntry represents one audit trail entry.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	ActorID      string    `json:"actor_id"`
	ActorName    string    `json:"actor_name"`
	ActorRole    string    `json:"actor_role"`
	FromStatus   *string   `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Details      string    `json:"details"`
	PreviousType *string   `json:"previous_type,omitempty"`
	NewType      *string   `json:"new_type,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ActionResponse is returned by POST /requests/{id}/actions.
type ActionResponse struct {
	NewStatus string        `json:"new_status"`
	Entry     HistoryEntry  `json:"entry"`
	Relay     *HistoryEntry `json:"relay,omitempty"`
	Request   RequestDetail `json:"request"`
}

// QueuesResponse is returned by GET /queues.
type QueuesResponse struct {
	Role    string           `json:"role"`
	Pending []RequestSummary `json:"pending"`
	Tasks   []RequestSummary `json:"tasks"`
	History []RequestSummary `json:"history"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func optional[T ~string](v T) *string {
	if v == "" {
		return nil
	}
	s := string(v)
	return &s
}

// ToRequestSummary converts a domain request to its listing form.
func ToRequestSummary(req *domain.Request) RequestSummary {
	flow := workflow.ClassifyPendingFlow(req)
	summary := RequestSummary{
		ID:               req.ID,
		Number:           req.Number,
		DocumentType:     string(req.DocumentType),
		Status:           string(req.Status),
		PreparerID:       req.PreparerID,
		PreparerName:     req.PreparerName,
		ReleasedFromTask: req.ReleasedFromTask,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
	if flow != workflow.FlowNone {
		summary.Flow = string(flow)
	}
	return summary
}

// ToRequestDetail converts a domain request including its history.
func ToRequestDetail(req *domain.Request) RequestDetail {
	history := make([]HistoryEntry, len(req.History))
	for i := range req.History {
		history[i] = ToHistoryEntry(req.History[i])
	}
	validators := req.Validators
	if validators == nil {
		validators = []string{}
	}
	return RequestDetail{
		RequestSummary: ToRequestSummary(req),
		OriginalType:   optional(req.OriginalType),
		Content: ContentBody{
			Objective:   req.Content.Objective,
			Scope:       req.Content.Scope,
			Development: req.Content.Development,
		},
		Validators:       validators,
		ReviewerComments: req.ReviewerComments,
		History:          history,
	}
}

// ToHistoryEntry converts a domain history entry.
func ToHistoryEntry(e domain.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		ID:           e.ID,
		Action:       string(e.Action),
		ActorID:      e.ActorID,
		ActorName:    e.ActorName,
		ActorRole:    string(e.ActorRole),
		FromStatus:   optional(e.FromStatus),
		ToStatus:     string(e.ToStatus),
		Details:      e.Details,
		PreviousType: optional(e.PreviousType),
		NewType:      optional(e.NewType),
		Timestamp:    e.Timestamp,
	}
}

// ToQueuesResponse converts derived queues for the actor's role.
func ToQueuesResponse(role domain.Role, q *queue.Queues) QueuesResponse {
	return QueuesResponse{
		Role:    string(role),
		Pending: toSummaries(q.Pending),
		Tasks:   toSummaries(q.Tasks),
		History: toSummaries(q.History),
	}
}

func toSummaries(requests []*domain.Request) []RequestSummary {
	out := make([]RequestSummary, len(requests))
	for i, req := range requests {
		out[i] = ToRequestSummary(req)
	}
	return out
}

// ToStatsResponse converts status counts.
func ToStatsResponse(counts map[domain.Status]int) StatsResponse {
	resp := StatsResponse{ByStatus: make(map[string]int, len(counts))}
	for status, n := range counts {
		resp.ByStatus[string(status)] = n
		resp.Total += n
	}
	return resp
}
