package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/docflow/internal/repository"
)

// RedisStoreTestSuite runs the store behaviour against a real Redis.
// It needs REDIS_URL and writes under a random key prefix.
type RedisStoreTestSuite struct {
	storeSuite
	client *redis.Client
	prefix string
}

func (s *RedisStoreTestSuite) SetupSuite() {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		s.T().Skip("REDIS_URL not set")
	}

	opts, err := redis.ParseURL(redisURL)
	s.Require().NoError(err)

	s.client = redis.NewClient(opts)
	s.prefix = "docflow-test-" + uuid.NewString()
	s.store = repository.NewRedisStore(s.client, s.prefix)
	s.Require().NoError(s.store.Ping(context.Background()), "failed to connect to redis")
}

func (s *RedisStoreTestSuite) SetupTest() {
	s.Require().NoError(s.store.Restore(context.Background(), nil), "failed to reset requests")
}

func (s *RedisStoreTestSuite) TearDownSuite() {
	if s.client == nil {
		return
	}
	ctx := context.Background()
	keys, err := s.client.Keys(ctx, s.prefix+":*").Result()
	if err == nil && len(keys) > 0 {
		s.client.Del(ctx, keys...)
	}
	s.client.Close()
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}
