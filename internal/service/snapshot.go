package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mtlprog/docflow/internal/domain"
)

const snapshotVersion = 1

// Snapshot is the whole request collection as one document.
type Snapshot struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Requests   []*domain.Request `json:"requests"`
}

// Export writes every request, with history, as one JSON snapshot.
func (s *WorkflowService) Export(ctx context.Context, w io.Writer) (int, error) {
	requests, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot requests: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err = enc.Encode(Snapshot{
		Version:    snapshotVersion,
		ExportedAt: s.engine.Now(),
		Requests:   requests,
	})
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}

	slog.Info("requests exported", "count", len(requests))
	return len(requests), nil
}

// Import replaces the whole collection with a snapshot read from r.
// The snapshot is checked before anything is replaced.
func (s *WorkflowService) Import(ctx context.Context, r io.Reader) (int, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("%w: decode snapshot: %v", domain.ErrValidation, err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported snapshot version %d", domain.ErrValidation, snap.Version)
	}
	if err := checkSnapshot(snap.Requests); err != nil {
		return 0, err
	}

	if err := s.store.Restore(ctx, snap.Requests); err != nil {
		return 0, fmt.Errorf("restore requests: %w", err)
	}

	slog.Info("requests imported", "count", len(snap.Requests))
	return len(snap.Requests), nil
}

func checkSnapshot(requests []*domain.Request) error {
	seen := make(map[string]struct{}, len(requests))
	numbers := make(map[string]struct{}, len(requests))
	for i, req := range requests {
		if req == nil || req.ID == "" {
			return fmt.Errorf("%w: request %d has no id", domain.ErrValidation, i)
		}
		if _, err := uuid.Parse(req.ID); err != nil {
			return fmt.Errorf("%w: request id %q is not a UUID", domain.ErrValidation, req.ID)
		}
		if _, dup := seen[req.ID]; dup {
			return fmt.Errorf("%w: duplicate request id %s", domain.ErrValidation, req.ID)
		}
		seen[req.ID] = struct{}{}
		if _, dup := numbers[req.Number]; dup {
			return fmt.Errorf("%w: duplicate request number %s", domain.ErrValidation, req.Number)
		}
		numbers[req.Number] = struct{}{}

		if !req.Status.IsValid() {
			return fmt.Errorf("%w: request %s: %s", domain.ErrInvalidStatus, req.ID, req.Status)
		}
		if !req.DocumentType.IsValid() {
			return fmt.Errorf("%w: request %s: %s", domain.ErrInvalidDocumentType, req.ID, req.DocumentType)
		}
		if len(req.History) == 0 {
			return fmt.Errorf("%w: request %s has empty history", domain.ErrValidation, req.ID)
		}
		for _, e := range req.History {
			if _, err := uuid.Parse(e.ID); err != nil {
				return fmt.Errorf("%w: request %s: history entry id %q is not a UUID", domain.ErrValidation, req.ID, e.ID)
			}
		}
		if req.UpdatedAt.Before(req.CreatedAt) {
			return fmt.Errorf("%w: request %s updated before it was created", domain.ErrValidation, req.ID)
		}
		if req.Validators == nil {
			req.Validators = []string{}
		}
	}
	return nil
}
