package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/docflow/internal/domain"
)

// psql is the shared Squirrel statement builder configured for PostgreSQL dollar placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// requestColumns is the shared list of columns for request queries.
var requestColumns = []string{
	"id", "number", "document_type", "original_type", "preparer_id", "preparer_name",
	"status", "objective", "scope", "development", "validators", "reviewer_comments",
	"released_from_task", "created_at", "updated_at",
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists requests and their history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// scanRequest scans a single row into a Request without history.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	err := row.Scan(
		&req.ID,
		&req.Number,
		&req.DocumentType,
		&req.OriginalType,
		&req.PreparerID,
		&req.PreparerName,
		&req.Status,
		&req.Content.Objective,
		&req.Content.Scope,
		&req.Content.Development,
		&req.Validators,
		&req.ReviewerComments,
		&req.ReleasedFromTask,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("scan request: %w", err)
	}
	if req.Validators == nil {
		req.Validators = []string{}
	}
	return &req, nil
}

// scanRequests scans multiple rows into a slice of Requests.
func scanRequests(rows pgx.Rows) ([]*domain.Request, error) {
	defer rows.Close()

	var requests []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return requests, nil
}

func (s *PostgresStore) Create(ctx context.Context, req *domain.Request) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := insertRequest(ctx, tx, req); err != nil {
		return err
	}
	if err := insertEntries(ctx, tx, req.ID, req.History); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Request, error) {
	return getRequest(ctx, s.pool, id, false)
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch domain.RequestPatch) (*domain.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := updateRequest(ctx, tx, req, req.Status, patch); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	_, err := s.Commit(ctx, id, Revision{}, domain.RequestPatch{}, []domain.HistoryEntry{entry})
	return err
}

// Commit locks the request row, checks the expected revision against the
// locked state, and applies the patch and entries in one transaction.
func (s *PostgresStore) Commit(
	ctx context.Context,
	id string,
	expected Revision,
	patch domain.RequestPatch,
	entries []domain.HistoryEntry,
) (*domain.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := expected.Check(req); err != nil {
		return nil, err
	}

	if err := updateRequest(ctx, tx, req, req.Status, patch); err != nil {
		return nil, err
	}
	if err := insertEntries(ctx, tx, id, entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	req.History = append(req.History, entries...)
	return req, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*domain.Request, error) {
	builder := psql.
		Select(requestColumns...).
		From("requests").
		OrderBy("position ASC")
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": filter.Statuses})
	}
	if filter.PreparerID != "" {
		builder = builder.Where(sq.Eq{"preparer_id": filter.PreparerID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for requests: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := attachHistory(ctx, s.pool, requests); err != nil {
		return nil, err
	}

	out := make([]*domain.Request, 0, len(requests))
	for _, req := range requests {
		if filter.Predicate == nil || filter.Predicate(req) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *PostgresStore) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('request_number_seq')").Scan(&n); err != nil {
		return 0, fmt.Errorf("next request number: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	query, args, err := psql.
		Select("status", "COUNT(*)").
		From("requests").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CountByStatus query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context) ([]*domain.Request, error) {
	return s.List(ctx, ListFilter{})
}

func (s *PostgresStore) Restore(ctx context.Context, requests []*domain.Request) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, "TRUNCATE requests, history_entries"); err != nil {
		return fmt.Errorf("truncate requests: %w", err)
	}

	var maxNumber int64
	for _, req := range requests {
		if err := insertRequest(ctx, tx, req); err != nil {
			return err
		}
		if err := insertEntries(ctx, tx, req.ID, req.History); err != nil {
			return err
		}
		maxNumber = max(maxNumber, ParseNumber(req.Number))
	}

	if maxNumber > 0 {
		_, err = tx.Exec(ctx, "SELECT setval('request_number_seq', $1, true)", maxNumber)
	} else {
		_, err = tx.Exec(ctx, "SELECT setval('request_number_seq', 1, false)")
	}
	if err != nil {
		return fmt.Errorf("reset request number sequence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the database package.
func (s *PostgresStore) Close() error {
	return nil
}

func getRequest(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Request, error) {
	builder := psql.
		Select(requestColumns...).
		From("requests").
		Where(sq.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Get query for request %s: %w", id, err)
	}

	req, err := scanRequest(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
		}
		return nil, err
	}
	if err := attachHistory(ctx, q, []*domain.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func insertRequest(ctx context.Context, q querier, req *domain.Request) error {
	validators := req.Validators
	if validators == nil {
		validators = []string{}
	}

	query, args, err := psql.
		Insert("requests").
		Columns(requestColumns...).
		Values(
			req.ID,
			req.Number,
			req.DocumentType,
			req.OriginalType,
			req.PreparerID,
			req.PreparerName,
			req.Status,
			req.Content.Objective,
			req.Content.Scope,
			req.Content.Development,
			validators,
			req.ReviewerComments,
			req.ReleasedFromTask,
			req.CreatedAt,
			req.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for request: %w", err)
	}

	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// updateRequest applies the patch to req in place and writes every mutable
// column, guarded by the expected status.
func updateRequest(ctx context.Context, q querier, req *domain.Request, expected domain.Status, patch domain.RequestPatch) error {
	patch.ApplyTo(req, nowUTC())
	if !req.Status.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidStatus, req.Status)
	}

	query, args, err := psql.
		Update("requests").
		Set("document_type", req.DocumentType).
		Set("original_type", req.OriginalType).
		Set("status", req.Status).
		Set("objective", req.Content.Objective).
		Set("scope", req.Content.Scope).
		Set("development", req.Content.Development).
		Set("validators", req.Validators).
		Set("reviewer_comments", req.ReviewerComments).
		Set("released_from_task", req.ReleasedFromTask).
		Set("updated_at", req.UpdatedAt).
		Where(sq.Eq{
			"id":     req.ID,
			"status": expected,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update query for request %s: %w", req.ID, err)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request %s", domain.ErrStatusConflict, req.ID)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
