package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/mtlprog/docflow/internal/domain"
)

// RequestStore holds the authoritative collection of requests.
// Every returned request is a private copy.
type RequestStore interface {
	// Create persists a fully formed request including its creation entry.
	Create(ctx context.Context, req *domain.Request) error
	Get(ctx context.Context, id string) (*domain.Request, error)
	Update(ctx context.Context, id string, patch domain.RequestPatch) (*domain.Request, error)
	AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error
	// Commit applies a patch and appends entries as one unit, provided the
	// request is still at the expected revision. Otherwise it returns ErrStatusConflict.
	Commit(ctx context.Context, id string, expected Revision, patch domain.RequestPatch, entries []domain.HistoryEntry) (*domain.Request, error)
	// List returns matching requests in insertion order.
	List(ctx context.Context, filter ListFilter) ([]*domain.Request, error)
	NextNumber(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	Snapshot(ctx context.Context) ([]*domain.Request, error)
	// Restore replaces the whole collection.
	Restore(ctx context.Context, requests []*domain.Request) error
	Ping(ctx context.Context) error
	Close() error
}

// Revision pins the stored state a decision was made against. History is
// append-only and every decision appends to it, so its length moves on each
// commit even when the status does not. Zero fields are not checked.
type Revision struct {
	Status     domain.Status
	HistoryLen int
}

// RevisionOf returns the current revision of a loaded request.
func RevisionOf(req *domain.Request) Revision {
	return Revision{Status: req.Status, HistoryLen: len(req.History)}
}

// Check returns ErrStatusConflict if req moved past the revision.
func (r Revision) Check(req *domain.Request) error {
	if r.Status != "" && req.Status != r.Status {
		return fmt.Errorf("%w: request %s is %s, expected %s", domain.ErrStatusConflict, req.ID, req.Status, r.Status)
	}
	if r.HistoryLen > 0 && len(req.History) != r.HistoryLen {
		return fmt.Errorf("%w: request %s has %d history entries, expected %d",
			domain.ErrStatusConflict, req.ID, len(req.History), r.HistoryLen)
	}
	return nil
}

// ListFilter narrows List results. Zero value matches everything.
type ListFilter struct {
	Statuses   []domain.Status
	PreparerID string
	Predicate  func(*domain.Request) bool
}

// Matches applies the whole filter to a request.
func (f ListFilter) Matches(req *domain.Request) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, req.Status) {
		return false
	}
	if f.PreparerID != "" && req.PreparerID != f.PreparerID {
		return false
	}
	if f.Predicate != nil && !f.Predicate(req) {
		return false
	}
	return true
}
