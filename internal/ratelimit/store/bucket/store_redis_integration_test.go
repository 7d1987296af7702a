//go:build integration

package bucket

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carepilot/pkg/testutil/containers"
)

type RedisBucketIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketIntegrationSuite))
}

func (s *RedisBucketIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisBucketIntegrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketIntegrationSuite) TestConcurrentRequestsNeverExceedLimit() {
	const limit = 20
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.ctx, "actor:load", limit, time.Hour)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(limit, allowed.Load())
	count, err := s.store.GetCurrentCount(s.ctx, "actor:load", time.Hour)
	s.Require().NoError(err)
	s.Equal(100, count)
}

func (s *RedisBucketIntegrationSuite) TestWindowKeyExpires() {
	_, err := s.store.Allow(s.ctx, "actor:ttl", 5, time.Minute)
	s.Require().NoError(err)

	keys, err := s.redis.Client.Keys(s.ctx, redisKeyPrefix+"actor:ttl:*").Result()
	s.Require().NoError(err)
	s.Require().Len(keys, 1)

	ttl, err := s.redis.Client.PTTL(s.ctx, keys[0]).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}
