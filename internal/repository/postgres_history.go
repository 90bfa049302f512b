package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mtlprog/docflow/internal/domain"
)

var historyColumns = []string{
	"id", "request_id", "action", "actor_id", "actor_name", "actor_role",
	"from_status", "to_status", "details", "previous_type", "new_type", "created_at",
}

// insertEntries appends history entries in order. Entries are never updated.
func insertEntries(ctx context.Context, q querier, requestID string, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	builder := psql.Insert("history_entries").Columns(historyColumns...)
	for _, e := range entries {
		builder = builder.Values(
			e.ID,
			requestID,
			e.Action,
			e.ActorID,
			e.ActorName,
			e.ActorRole,
			e.FromStatus,
			e.ToStatus,
			e.Details,
			e.PreviousType,
			e.NewType,
			e.Timestamp,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert query for history entries: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create history entries: %w", err)
	}
	return nil
}

// attachHistory loads the history of every request in one query.
func attachHistory(ctx context.Context, q querier, requests []*domain.Request) error {
	if len(requests) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Request, len(requests))
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
		ids = append(ids, req.ID)
		req.History = []domain.HistoryEntry{}
	}

	query, args, err := psql.
		Select(historyColumns...).
		From("history_entries").
		Where(sq.Eq{"request_id": ids}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query for history entries: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query history entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.HistoryEntry
		var requestID string
		err := rows.Scan(
			&e.ID,
			&requestID,
			&e.Action,
			&e.ActorID,
			&e.ActorName,
			&e.ActorRole,
			&e.FromStatus,
			&e.ToStatus,
			&e.Details,
			&e.PreviousType,
			&e.NewType,
			&e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("scan history entry: %w", err)
		}
		if req, ok := byID[requestID]; ok {
			req.History = append(req.History, e)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
