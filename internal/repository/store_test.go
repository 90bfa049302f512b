package repository_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/repository"
)

// storeSuite holds the behaviour every RequestStore backend must share.
// Backend suites embed it and set store before each test.
type storeSuite struct {
	suite.Suite
	store repository.RequestStore
}

func (s *storeSuite) newRequest(number int64, preparerID string) *domain.Request {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Request{
		ID:           uuid.NewString(),
		Number:       repository.FormatNumber(number),
		DocumentType: domain.DocumentTypeProcedure,
		PreparerID:   preparerID,
		PreparerName: "Ana",
		Status:       domain.StatusInReview,
		Validators:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
		History: []domain.HistoryEntry{{
			ID:        uuid.NewString(),
			Action:    domain.ActionCreated,
			ActorID:   preparerID,
			ActorName: "Ana",
			ActorRole: domain.RolePreparer,
			ToStatus:  domain.StatusInReview,
			Timestamp: now,
		}},
	}
}

func (s *storeSuite) entry(action domain.HistoryAction, from, to domain.Status) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:         uuid.NewString(),
		Action:     action,
		ActorID:    "r1",
		ActorName:  "Rita",
		ActorRole:  domain.RoleReviewer,
		FromStatus: from,
		ToStatus:   to,
		Details:    "looks right",
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func (s *storeSuite) mustCreate(number int64, preparerID string) *domain.Request {
	req := s.newRequest(number, preparerID)
	s.Require().NoError(s.store.Create(context.Background(), req))
	return req
}

func ids(requests []*domain.Request) []string {
	out := make([]string, len(requests))
	for i, req := range requests {
		out[i] = req.ID
	}
	return out
}

func (s *storeSuite) TestCreateAndGet() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)

	s.Equal(req.ID, got.ID)
	s.Equal("DOC-000001", got.Number)
	s.Equal(domain.StatusInReview, got.Status)
	s.Equal(domain.DocumentTypeProcedure, got.DocumentType)
	s.Equal(domain.DocumentType(""), got.OriginalType)
	s.NotNil(got.Validators)
	s.Empty(got.Validators)
	s.True(req.CreatedAt.Equal(got.CreatedAt))
	s.Require().Len(got.History, 1)
	s.Equal(req.History[0].ID, got.History[0].ID)
	s.Equal(domain.ActionCreated, got.History[0].Action)
}

func (s *storeSuite) TestCreateDuplicateFails() {
	req := s.mustCreate(1, "p1")

	err := s.store.Create(context.Background(), req)

	s.Error(err)
}

func (s *storeSuite) TestConcurrentCreateListsOnce() {
	ctx := context.Background()
	req := s.newRequest(1, "p1")

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.store.Create(ctx, req)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		}
	}
	s.Equal(1, created)

	all, err := s.store.List(ctx, repository.ListFilter{})
	s.Require().NoError(err)
	s.Equal([]string{req.ID}, ids(all))
}

func (s *storeSuite) TestGetNotFound() {
	_, err := s.store.Get(context.Background(), uuid.NewString())

	s.ErrorIs(err, domain.ErrRequestNotFound)
}

func (s *storeSuite) TestCommitAppliesPatchAndEntries() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	status := domain.StatusInDevelopment
	newType := domain.DocumentTypeManual
	validators := []string{"v1", "v2"}
	entries := []domain.HistoryEntry{
		s.entry(domain.ActionApproved, domain.StatusInReview, domain.StatusInDevelopment),
		s.entry(domain.ActionDrafted, domain.StatusInDevelopment, domain.StatusInDevelopment),
	}

	committed, err := s.store.Commit(ctx, req.ID, repository.RevisionOf(req), domain.RequestPatch{
		Status:       &status,
		DocumentType: &newType,
		Validators:   &validators,
		Content:      &domain.Content{Objective: "obj", Scope: "scope", Development: "dev"},
	}, entries)
	s.Require().NoError(err)
	s.Equal(status, committed.Status)
	s.Len(committed.History, 3)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInDevelopment, got.Status)
	s.Equal(domain.DocumentTypeManual, got.DocumentType)
	s.Equal([]string{"v1", "v2"}, got.Validators)
	s.Equal("dev", got.Content.Development)
	s.Require().Len(got.History, 3)
	s.Equal(entries[0].ID, got.History[1].ID)
	s.Equal(entries[1].ID, got.History[2].ID)
	s.Equal("looks right", got.History[1].Details)
	s.False(got.UpdatedAt.Before(req.UpdatedAt))
}

func (s *storeSuite) TestCommitStatusConflict() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	status := domain.StatusRejected
	_, err := s.store.Commit(ctx, req.ID, repository.Revision{Status: domain.StatusPending}, domain.RequestPatch{Status: &status},
		[]domain.HistoryEntry{s.entry(domain.ActionRejected, domain.StatusPending, domain.StatusRejected)})

	s.ErrorIs(err, domain.ErrStatusConflict)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInReview, got.Status)
	s.Len(got.History, 1)
}

func (s *storeSuite) TestCommitStaleHistoryConflict() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")
	seen := repository.RevisionOf(req)

	first := s.entry(domain.ActionValidationApproved, domain.StatusInReview, domain.StatusInReview)
	_, err := s.store.Commit(ctx, req.ID, seen, domain.RequestPatch{}, []domain.HistoryEntry{first})
	s.Require().NoError(err)

	second := s.entry(domain.ActionValidationApproved, domain.StatusInReview, domain.StatusInReview)
	_, err = s.store.Commit(ctx, req.ID, seen, domain.RequestPatch{}, []domain.HistoryEntry{second})
	s.ErrorIs(err, domain.ErrStatusConflict)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(got.History, 2)
	s.Equal(first.ID, got.History[1].ID)

	_, err = s.store.Commit(ctx, req.ID, repository.RevisionOf(got), domain.RequestPatch{}, []domain.HistoryEntry{second})
	s.Require().NoError(err)
}

func (s *storeSuite) TestCommitNotFound() {
	_, err := s.store.Commit(context.Background(), uuid.NewString(), repository.Revision{Status: domain.StatusInReview}, domain.RequestPatch{}, nil)

	s.ErrorIs(err, domain.ErrRequestNotFound)
}

func (s *storeSuite) TestUpdateKeepsHistory() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	comments := "check annex"
	released := true
	got, err := s.store.Update(ctx, req.ID, domain.RequestPatch{
		ReviewerComments: &comments,
		ReleasedFromTask: &released,
	})
	s.Require().NoError(err)
	s.Equal(comments, got.ReviewerComments)
	s.True(got.ReleasedFromTask)
	s.Len(got.History, 1)
}

func (s *storeSuite) TestAppendHistory() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	entry := s.entry(domain.ActionDrafted, domain.StatusInReview, domain.StatusInReview)
	s.Require().NoError(s.store.AppendHistory(ctx, req.ID, entry))

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(got.History, 2)
	s.Equal(entry.ID, got.History[1].ID)
	s.Equal(domain.StatusInReview, got.Status)

	s.ErrorIs(s.store.AppendHistory(ctx, uuid.NewString(), entry), domain.ErrRequestNotFound)
}

func (s *storeSuite) TestListOrderAndFilters() {
	ctx := context.Background()
	first := s.mustCreate(1, "p1")
	second := s.mustCreate(2, "p2")
	third := s.mustCreate(3, "p1")

	status := domain.StatusInDevelopment
	_, err := s.store.Commit(ctx, second.ID, repository.RevisionOf(second), domain.RequestPatch{Status: &status},
		[]domain.HistoryEntry{s.entry(domain.ActionApproved, domain.StatusInReview, domain.StatusInDevelopment)})
	s.Require().NoError(err)

	all, err := s.store.List(ctx, repository.ListFilter{})
	s.Require().NoError(err)
	s.Equal([]string{first.ID, second.ID, third.ID}, ids(all))
	s.Len(all[1].History, 2)

	byStatus, err := s.store.List(ctx, repository.ListFilter{Statuses: []domain.Status{domain.StatusInDevelopment}})
	s.Require().NoError(err)
	s.Equal([]string{second.ID}, ids(byStatus))

	byPreparer, err := s.store.List(ctx, repository.ListFilter{PreparerID: "p1"})
	s.Require().NoError(err)
	s.Equal([]string{first.ID, third.ID}, ids(byPreparer))

	byPredicate, err := s.store.List(ctx, repository.ListFilter{
		Predicate: func(req *domain.Request) bool { return req.Number == third.Number },
	})
	s.Require().NoError(err)
	s.Equal([]string{third.ID}, ids(byPredicate))
}

func (s *storeSuite) TestNextNumberIncreases() {
	ctx := context.Background()

	a, err := s.store.NextNumber(ctx)
	s.Require().NoError(err)
	b, err := s.store.NextNumber(ctx)
	s.Require().NoError(err)

	s.Equal(a+1, b)
}

func (s *storeSuite) TestCountByStatus() {
	ctx := context.Background()
	s.mustCreate(1, "p1")
	s.mustCreate(2, "p1")
	req := s.mustCreate(3, "p2")

	status := domain.StatusRejected
	_, err := s.store.Commit(ctx, req.ID, repository.RevisionOf(req), domain.RequestPatch{Status: &status},
		[]domain.HistoryEntry{s.entry(domain.ActionRejected, domain.StatusInReview, domain.StatusRejected)})
	s.Require().NoError(err)

	counts, err := s.store.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(2, counts[domain.StatusInReview])
	s.Equal(1, counts[domain.StatusRejected])
	s.Zero(counts[domain.StatusApproved])
}

func (s *storeSuite) TestRestoreReplacesEverything() {
	ctx := context.Background()
	old := s.mustCreate(1, "p1")

	seventh := s.newRequest(7, "p1")
	third := s.newRequest(3, "p2")
	s.Require().NoError(s.store.Restore(ctx, []*domain.Request{seventh, third}))

	_, err := s.store.Get(ctx, old.ID)
	s.ErrorIs(err, domain.ErrRequestNotFound)

	snap, err := s.store.Snapshot(ctx)
	s.Require().NoError(err)
	s.Equal([]string{seventh.ID, third.ID}, ids(snap))
	s.Len(snap[0].History, 1)

	next, err := s.store.NextNumber(ctx)
	s.Require().NoError(err)
	s.Equal(int64(8), next)
}

func (s *storeSuite) TestRestoreEmptyResetsNumbers() {
	ctx := context.Background()
	s.mustCreate(1, "p1")
	_, err := s.store.NextNumber(ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Restore(ctx, nil))

	snap, err := s.store.Snapshot(ctx)
	s.Require().NoError(err)
	s.Empty(snap)

	next, err := s.store.NextNumber(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), next)
}

func (s *storeSuite) TestReturnedRequestsAreCopies() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	got.Status = domain.StatusApproved
	got.History[0].Details = "tampered"

	again, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInReview, again.Status)
	s.Empty(again.History[0].Details)
}

func (s *storeSuite) TestConcurrentCommitsOnlyOneWins() {
	ctx := context.Background()
	req := s.mustCreate(1, "p1")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := domain.StatusInDevelopment
			_, err := s.store.Commit(ctx, req.ID, repository.RevisionOf(req), domain.RequestPatch{Status: &status},
				[]domain.HistoryEntry{s.entry(domain.ActionApproved, domain.StatusInReview, domain.StatusInDevelopment)})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrStatusConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(workers-1, conflicts)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Len(got.History, 2)
}
