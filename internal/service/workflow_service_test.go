package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/mtlprog/docflow/internal/repository"
	"github.com/mtlprog/docflow/internal/service"
	"github.com/mtlprog/docflow/internal/workflow"
)

// WorkflowServiceTestSuite is the test suite for WorkflowService over the memory store.
type WorkflowServiceTestSuite struct {
	suite.Suite
	store *repository.MemoryStore
	svc   *service.WorkflowService

	preparer   domain.Actor
	other      domain.Actor
	reviewer   domain.Actor
	validators []domain.Actor
	approver   domain.Actor
}

func TestWorkflowServiceTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowServiceTestSuite))
}

func (s *WorkflowServiceTestSuite) SetupTest() {
	s.store = repository.NewMemoryStore()
	s.svc = service.NewWorkflowService(s.store, workflow.NewEngine(workflow.RoutePreparer, nil, nil))

	s.preparer = domain.Actor{ID: "p1", Name: "Ana", Role: domain.RolePreparer}
	s.other = domain.Actor{ID: "p2", Name: "Luis", Role: domain.RolePreparer}
	s.reviewer = domain.Actor{ID: "r1", Name: "Rita", Role: domain.RoleReviewer}
	s.validators = []domain.Actor{
		{ID: "v1", Name: "Val 1", Role: domain.RoleValidator},
		{ID: "v2", Name: "Val 2", Role: domain.RoleValidator},
		{ID: "v3", Name: "Val 3", Role: domain.RoleValidator},
	}
	s.approver = domain.Actor{ID: "a1", Name: "Omar", Role: domain.RoleApprover}
}

func (s *WorkflowServiceTestSuite) create(actor domain.Actor) *domain.Request {
	req, err := s.svc.CreateRequest(context.Background(), actor, domain.DocumentTypeProcedure)
	s.Require().NoError(err)
	return req
}

func (s *WorkflowServiceTestSuite) submit(id string, actor domain.Actor, action workflow.Action) *service.Result {
	result, err := s.svc.SubmitAction(context.Background(), id, actor, action)
	s.Require().NoError(err, "%s by %s", action.Kind(), actor.Role)
	return result
}

// awaitingValidation returns a request routed to every validator in the suite.
func (s *WorkflowServiceTestSuite) awaitingValidation() *domain.Request {
	req := s.create(s.preparer)
	s.submit(req.ID, s.reviewer, workflow.ValidateType{DocumentType: domain.DocumentTypeProcedure})
	s.submit(req.ID, s.preparer, workflow.SubmitDraft{Content: &domain.Content{Objective: "obj"}})
	s.submit(req.ID, s.reviewer, workflow.AcceptDocument{})

	ids := make([]string, len(s.validators))
	for i, v := range s.validators {
		ids[i] = v.ID
	}
	return s.submit(req.ID, s.reviewer, workflow.Approve{Validators: ids}).Request
}

func (s *WorkflowServiceTestSuite) TestCreateRequest_AssignsNumbers() {
	first := s.create(s.preparer)
	second := s.create(s.other)

	s.Equal("DOC-000001", first.Number)
	s.Equal("DOC-000002", second.Number)
	s.Equal(domain.StatusInReview, first.Status)

	stored, err := s.svc.GetRequest(context.Background(), first.ID)
	s.Require().NoError(err)
	s.Equal(first.ID, stored.ID)
	s.Len(stored.History, 1)
}

func (s *WorkflowServiceTestSuite) TestCreateRequest_Refused() {
	ctx := context.Background()

	_, err := s.svc.CreateRequest(ctx, s.reviewer, domain.DocumentTypeManual)
	s.ErrorIs(err, domain.ErrIllegalTransition)

	_, err = s.svc.CreateRequest(ctx, s.preparer, "memo")
	s.ErrorIs(err, domain.ErrValidation)

	all, err := s.svc.ListRequests(ctx, repository.ListFilter{})
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_NotFound() {
	_, err := s.svc.SubmitAction(context.Background(), uuid.NewString(), s.reviewer, workflow.Reject{})

	s.ErrorIs(err, domain.ErrRequestNotFound)
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_RefusedChangesNothing() {
	ctx := context.Background()
	req := s.create(s.preparer)

	_, err := s.svc.SubmitAction(ctx, req.ID, s.approver, workflow.Approve{})
	s.ErrorIs(err, domain.ErrIllegalTransition)

	var illegal *workflow.IllegalTransitionError
	s.Require().True(errors.As(err, &illegal))
	s.Equal(domain.StatusInReview, illegal.Status)

	stored, err := s.svc.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req, stored)
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_FullApproval() {
	req := s.awaitingValidation()
	s.Equal(domain.StatusPending, req.Status)
	s.Equal([]string{"v1", "v2", "v3"}, req.Validators)

	s.submit(req.ID, s.validators[0], workflow.Claim{})
	s.Nil(s.submit(req.ID, s.validators[0], workflow.Approve{}).Relay)
	s.Nil(s.submit(req.ID, s.validators[1], workflow.Approve{}).Relay)

	last := s.submit(req.ID, s.validators[2], workflow.Approve{Comment: "fine"})
	s.Equal(domain.StatusPending, last.NewStatus)
	s.Equal(domain.ActionValidationApproved, last.Entry.Action)
	s.Require().NotNil(last.Relay)
	s.Equal(domain.ActionValidationCompleted, last.Relay.Action)
	s.Equal(workflow.FlowValidatedDocument, workflow.ClassifyPendingFlow(last.Request))

	s.submit(req.ID, s.preparer, workflow.Accept{})
	s.submit(req.ID, s.approver, workflow.Claim{})
	done := s.submit(req.ID, s.approver, workflow.Approve{})

	s.Equal(domain.StatusApproved, done.Request.Status)
	s.Equal(done.Entry, done.Request.History[len(done.Request.History)-1])
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_ConcurrentClaimsOneWins() {
	req := s.awaitingValidation()

	var wg sync.WaitGroup
	errs := make([]error, len(s.validators))
	for i, v := range s.validators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.SubmitAction(context.Background(), req.ID, v, workflow.Claim{})
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.ErrorIs(err, domain.ErrIllegalTransition)
	}
	s.Equal(1, wins)

	stored, err := s.svc.GetRequest(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInValidation, stored.Status)
	s.Len(stored.History, len(req.History)+1)
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_ConcurrentApprovalsRelayOnce() {
	req := s.awaitingValidation()
	s.submit(req.ID, s.validators[0], workflow.Claim{})

	var wg sync.WaitGroup
	results := make([]*service.Result, len(s.validators))
	for i, v := range s.validators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.svc.SubmitAction(context.Background(), req.ID, v, workflow.Approve{})
			s.NoError(err)
			results[i] = result
		}()
	}
	wg.Wait()

	relays := 0
	for _, r := range results {
		if r != nil && r.Relay != nil {
			relays++
		}
	}
	s.Equal(1, relays)

	stored, err := s.svc.GetRequest(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, stored.Status)
	s.Len(workflow.RoundApprovals(stored), 3)
}

// gatedStore holds each Get until every expected reader has loaded the request,
// so concurrent callers decide against the same stored state.
type gatedStore struct {
	repository.RequestStore
	readers sync.WaitGroup
}

func (g *gatedStore) Get(ctx context.Context, id string) (*domain.Request, error) {
	req, err := g.RequestStore.Get(ctx, id)
	g.readers.Done()
	g.readers.Wait()
	return req, err
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_SharedStoreRejectsStaleApproval() {
	ctx := context.Background()
	req := s.awaitingValidation()
	s.submit(req.ID, s.validators[0], workflow.Claim{})
	s.submit(req.ID, s.validators[0], workflow.Approve{})

	gated := &gatedStore{RequestStore: s.store}
	gated.readers.Add(2)
	engine := workflow.NewEngine(workflow.RoutePreparer, nil, nil)
	instances := []*service.WorkflowService{
		service.NewWorkflowService(gated, engine),
		service.NewWorkflowService(gated, engine),
	}

	late := s.validators[1:]
	errs := make([]error, len(late))
	var wg sync.WaitGroup
	for i, v := range late {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = instances[i].SubmitAction(ctx, req.ID, v, workflow.Approve{})
		}()
	}
	wg.Wait()

	var loser domain.Actor
	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.ErrorIs(err, domain.ErrStatusConflict)
		loser = late[i]
	}
	s.Require().Equal(1, wins)

	stored, err := s.svc.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInValidation, stored.Status)
	s.Len(workflow.RoundApprovals(stored), 2)

	retry := s.submit(req.ID, loser, workflow.Approve{})
	s.Require().NotNil(retry.Relay)
	s.Equal(domain.StatusPending, retry.Request.Status)
	s.Equal(workflow.FlowValidatedDocument, workflow.ClassifyPendingFlow(retry.Request))
}

func (s *WorkflowServiceTestSuite) TestSubmitAction_ReleasedReachesPreparer() {
	ctx := context.Background()
	req := s.create(s.preparer)
	s.submit(req.ID, s.reviewer, workflow.ValidateType{DocumentType: domain.DocumentTypeProcedure})
	s.submit(req.ID, s.preparer, workflow.SubmitDraft{Content: &domain.Content{Objective: "obj"}})
	s.submit(req.ID, s.reviewer, workflow.AcceptDocument{})
	s.submit(req.ID, s.reviewer, workflow.Release{})

	q, err := s.svc.GetQueues(ctx, s.preparer)
	s.Require().NoError(err)
	s.Require().Len(q.Pending, 1)
	s.Equal(req.ID, q.Pending[0].ID)

	accepted := s.submit(req.ID, s.preparer, workflow.Accept{})
	s.Equal(domain.StatusSentForApproval, accepted.NewStatus)
	s.False(accepted.Request.ReleasedFromTask)

	q, err = s.svc.GetQueues(ctx, s.approver)
	s.Require().NoError(err)
	s.Len(q.Pending, 1)
}

func (s *WorkflowServiceTestSuite) TestGetQueues() {
	ctx := context.Background()
	mine := s.create(s.preparer)
	s.create(s.other)

	q, err := s.svc.GetQueues(ctx, s.preparer)
	s.Require().NoError(err)
	s.Empty(q.Pending)
	s.Empty(q.Tasks)

	q, err = s.svc.GetQueues(ctx, s.reviewer)
	s.Require().NoError(err)
	s.Len(q.Pending, 2)

	s.submit(mine.ID, s.reviewer, workflow.ValidateType{DocumentType: domain.DocumentTypeProcedure})
	q, err = s.svc.GetQueues(ctx, s.preparer)
	s.Require().NoError(err)
	s.Require().Len(q.Tasks, 1)
	s.Equal(mine.ID, q.Tasks[0].ID)

	_, err = s.svc.GetQueues(ctx, domain.Actor{ID: "x", Name: "X", Role: domain.RoleSystem})
	s.ErrorIs(err, domain.ErrInvalidRole)

	_, err = s.svc.GetQueues(ctx, domain.Actor{Name: "X", Role: domain.RoleReviewer})
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *WorkflowServiceTestSuite) TestStats() {
	req := s.create(s.preparer)
	s.create(s.preparer)
	s.submit(req.ID, s.reviewer, workflow.Reject{})

	stats, err := s.svc.Stats(context.Background())
	s.Require().NoError(err)

	s.Len(stats, len(domain.AllStatuses))
	s.Equal(1, stats[domain.StatusInReview])
	s.Equal(1, stats[domain.StatusRejected])
	s.Equal(0, stats[domain.StatusApproved])
}

func (s *WorkflowServiceTestSuite) TestExportImportRoundTrip() {
	ctx := context.Background()
	req := s.awaitingValidation()
	s.create(s.other)

	var buf bytes.Buffer
	n, err := s.svc.Export(ctx, &buf)
	s.Require().NoError(err)
	s.Equal(2, n)

	restored := service.NewWorkflowService(repository.NewMemoryStore(), workflow.NewEngine(workflow.RoutePreparer, nil, nil))
	n, err = restored.Import(ctx, &buf)
	s.Require().NoError(err)
	s.Equal(2, n)

	got, err := restored.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.Status, got.Status)
	s.Equal(req.Validators, got.Validators)
	s.Len(got.History, len(req.History))
	s.Equal(workflow.FlowAwaitingValidation, workflow.ClassifyPendingFlow(got))

	next, err := restored.CreateRequest(ctx, s.preparer, domain.DocumentTypeManual)
	s.Require().NoError(err)
	s.Equal("DOC-000003", next.Number)
}

func (s *WorkflowServiceTestSuite) TestImportRejectsBadSnapshots() {
	ctx := context.Background()
	existing := s.create(s.preparer)

	const (
		id    = "6f1c2a4e-8d3b-4c5a-9e7f-0a1b2c3d4e5f"
		entry = `{"id": "0d9e8f7a-6b5c-4d3e-8f1a-2b3c4d5e6f70"}`
	)
	cases := map[string]string{
		"not json":       `{"version":`,
		"wrong version":  `{"version": 2, "requests": []}`,
		"missing id":     `{"version": 1, "requests": [{"number": "DOC-000001", "status": "in_review", "document_type": "manual", "history": [` + entry + `]}]}`,
		"non-uuid id":    `{"version": 1, "requests": [{"id": "a", "number": "DOC-000001", "status": "in_review", "document_type": "manual", "history": [` + entry + `]}]}`,
		"non-uuid entry": `{"version": 1, "requests": [{"id": "` + id + `", "number": "DOC-000001", "status": "in_review", "document_type": "manual", "history": [{"id": "h1"}]}]}`,
		"bad status":     `{"version": 1, "requests": [{"id": "` + id + `", "number": "DOC-000001", "status": "lost", "document_type": "manual", "history": [` + entry + `]}]}`,
		"bad type":       `{"version": 1, "requests": [{"id": "` + id + `", "number": "DOC-000001", "status": "in_review", "document_type": "memo", "history": [` + entry + `]}]}`,
		"no history":     `{"version": 1, "requests": [{"id": "` + id + `", "number": "DOC-000001", "status": "in_review", "document_type": "manual", "history": []}]}`,
		"duplicate id": `{"version": 1, "requests": [
			{"id": "` + id + `", "number": "DOC-000001", "status": "in_review", "document_type": "manual", "history": [` + entry + `]},
			{"id": "` + id + `", "number": "DOC-000002", "status": "in_review", "document_type": "manual", "history": [` + entry + `]}]}`,
	}

	for name, raw := range cases {
		s.Run(name, func() {
			_, err := s.svc.Import(ctx, strings.NewReader(raw))
			s.Require().Error(err)
			s.True(
				errors.Is(err, domain.ErrValidation) ||
					errors.Is(err, domain.ErrInvalidStatus) ||
					errors.Is(err, domain.ErrInvalidDocumentType),
				"unexpected error: %v", err,
			)
		})
	}

	stored, err := s.svc.GetRequest(ctx, existing.ID)
	s.Require().NoError(err)
	s.Equal(existing.ID, stored.ID)
}

func (s *WorkflowServiceTestSuite) TestImportedRequestsStayAddressable() {
	ctx := context.Background()
	raw := `{"version": 1, "requests": [{"id": "6f1c2a4e-8d3b-4c5a-9e7f-0a1b2c3d4e5f", "number": "DOC-000004",
		"status": "in_review", "document_type": "manual", "preparer_id": "p1", "preparer_name": "Ana",
		"history": [{"id": "0d9e8f7a-6b5c-4d3e-8f1a-2b3c4d5e6f70", "action": "created", "to_status": "in_review"}]}]}`

	n, err := s.svc.Import(ctx, strings.NewReader(raw))
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.svc.GetRequest(ctx, "6f1c2a4e-8d3b-4c5a-9e7f-0a1b2c3d4e5f")
	s.Require().NoError(err)
	s.Equal("DOC-000004", got.Number)
	s.Len(got.History, 1)
}
