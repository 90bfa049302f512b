package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mtlprog/docflow/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxCommitRetries = 5

// RedisStore keeps each request as one JSON value in a hash, with a list
// preserving insertion order and a counter for document numbers.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a new RedisStore. An empty prefix defaults to "docflow".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docflow"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (r *RedisStore) hashKey() string   { return r.prefix + ":requests" }
func (r *RedisStore) orderKey() string  { return r.prefix + ":requests:order" }
func (r *RedisStore) numberKey() string { return r.prefix + ":requests:number" }

// Create stores the request and records its position in one MULTI/EXEC.
func (r *RedisStore) Create(ctx context.Context, req *domain.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.hashKey(), req.ID).Result()
		if err != nil {
			return fmt.Errorf("check request: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: request %s already exists", domain.ErrValidation, req.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.hashKey(), req.ID, payload)
			pipe.RPush(ctx, r.orderKey(), req.ID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return nil
	}

	return r.watch(ctx, req.ID, txf)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Request, error) {
	return r.load(ctx, r.redis, id)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c hashGetter, id string) (*domain.Request, error) {
	result, err := c.HGet(ctx, r.hashKey(), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return decodeRequest(result)
}

func (r *RedisStore) Update(ctx context.Context, id string, patch domain.RequestPatch) (*domain.Request, error) {
	return r.Commit(ctx, id, Revision{}, patch, nil)
}

func (r *RedisStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	_, err := r.Commit(ctx, id, Revision{}, domain.RequestPatch{}, []domain.HistoryEntry{entry})
	return err
}

// Commit rewrites the request under WATCH so the patch and the new entries
// land in one MULTI/EXEC, provided the request is still at the expected revision.
func (r *RedisStore) Commit(
	ctx context.Context,
	id string,
	expected Revision,
	patch domain.RequestPatch,
	entries []domain.HistoryEntry,
) (*domain.Request, error) {
	var committed *domain.Request

	txf := func(tx *redis.Tx) error {
		req, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := expected.Check(req); err != nil {
			return err
		}

		patch.ApplyTo(req, nowUTC())
		if !req.Status.IsValid() {
			return fmt.Errorf("%w: %s", domain.ErrInvalidStatus, req.Status)
		}
		req.History = append(req.History, entries...)

		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.hashKey(), id, payload)
			return nil
		})
		if err != nil {
			return err
		}
		committed = req
		return nil
	}

	if err := r.watch(ctx, id, txf); err != nil {
		return nil, err
	}
	return committed, nil
}

// watch runs txf under WATCH on the request hash, retrying when another
// client changed the hash before EXEC.
func (r *RedisStore) watch(ctx context.Context, id string, txf func(*redis.Tx) error) error {
	for range maxCommitRetries {
		err := r.redis.Watch(ctx, txf, r.hashKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: request %s kept changing", domain.ErrStatusConflict, id)
}

func (r *RedisStore) List(ctx context.Context, filter ListFilter) ([]*domain.Request, error) {
	ids, err := r.redis.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list request order: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Request{}, nil
	}

	values, err := r.redis.HMGet(ctx, r.hashKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	out := make([]*domain.Request, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		req, err := decodeRequest(raw)
		if err != nil {
			return nil, err
		}
		if filter.Matches(req) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *RedisStore) NextNumber(ctx context.Context) (int64, error) {
	n, err := r.redis.Incr(ctx, r.numberKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("next request number: %w", err)
	}
	return n, nil
}

func (r *RedisStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	requests, err := r.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Status]int)
	for _, req := range requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]*domain.Request, error) {
	return r.List(ctx, ListFilter{})
}

func (r *RedisStore) Restore(ctx context.Context, requests []*domain.Request) error {
	var maxNumber int64
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.hashKey(), r.orderKey(), r.numberKey())
		for _, req := range requests {
			payload, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal request %s: %w", req.ID, err)
			}
			pipe.HSet(ctx, r.hashKey(), req.ID, payload)
			pipe.RPush(ctx, r.orderKey(), req.ID)
			maxNumber = max(maxNumber, ParseNumber(req.Number))
		}
		pipe.Set(ctx, r.numberKey(), maxNumber, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore requests: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.redis.Close()
}

func decodeRequest(raw string) (*domain.Request, error) {
	var req domain.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Validators == nil {
		req.Validators = []string{}
	}
	return &req, nil
}
