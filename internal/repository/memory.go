package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mtlprog/docflow/internal/domain"
)

// MemoryStore keeps requests in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*domain.Request
	order    []string
	number   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*domain.Request),
		order:    make([]string, 0, 64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, req *domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return fmt.Errorf("%w: request %s already exists", domain.ErrValidation, req.ID)
	}
	m.requests[req.ID] = req.Clone()
	m.order = append(m.order, req.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	return req.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, patch domain.RequestPatch) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	patch.ApplyTo(req, m.now())
	return req.Clone(), nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, id string, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	req.History = append(req.History, entry)
	req.UpdatedAt = laterOf(req.UpdatedAt, m.now())
	return nil
}

func (m *MemoryStore) Commit(
	_ context.Context,
	id string,
	expected Revision,
	patch domain.RequestPatch,
	entries []domain.HistoryEntry,
) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
	}
	if err := expected.Check(req); err != nil {
		return nil, err
	}

	// Work on a copy so a bad patch leaves the stored request untouched.
	next := req.Clone()
	patch.ApplyTo(next, m.now())
	if !next.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidStatus, next.Status)
	}
	next.History = append(next.History, entries...)
	m.requests[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Request, 0, len(m.order))
	for _, id := range m.order {
		req := m.requests[id]
		if filter.Matches(req) {
			out = append(out, req.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) NextNumber(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.number++
	return m.number, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.Status]int)
	for _, req := range m.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) ([]*domain.Request, error) {
	return m.List(ctx, ListFilter{})
}

func (m *MemoryStore) Restore(_ context.Context, requests []*domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]*domain.Request, len(requests))
	m.order = make([]string, 0, len(requests))
	m.number = 0
	for _, req := range requests {
		m.requests[req.ID] = req.Clone()
		m.order = append(m.order, req.ID)
		m.number = max(m.number, ParseNumber(req.Number))
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// NumberPrefix starts every document number.
const NumberPrefix = "DOC-"

// FormatNumber renders a sequence value as a sortable document number.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("%s%06d", NumberPrefix, seq)
}

// ParseNumber extracts the sequence from a document number, or 0 if it has none.
func ParseNumber(number string) int64 {
	n, err := strconv.ParseInt(strings.TrimPrefix(number, NumberPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
