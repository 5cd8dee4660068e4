package medauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelmed/medauth/internal"
)

const activityKeyPrefix = "tac"

var (
	errActivityMissing = errors.New("token activity entry missing")
	errActivityBackend = errors.New("token activity backend unavailable")
)

// tokenActivityStore holds the second expiry dimension of access tokens: a
// per-token last-activity entry whose TTL is the inactivity timeout. Keys
// are token digests, never raw tokens. A missing entry means the token is
// dead for this engine — idle past the timeout, revoked by logout, or never
// issued here.
type tokenActivityStore struct {
	redis   redis.UniversalClient
	timeout time.Duration
	now     func() time.Time
}

func newTokenActivityStore(redisClient redis.UniversalClient, timeout time.Duration, now func() time.Time) *tokenActivityStore {
	if now == nil {
		now = time.Now
	}
	return &tokenActivityStore{
		redis:   redisClient,
		timeout: timeout,
		now:     now,
	}
}

func (s *tokenActivityStore) key(token string) string {
	return activityKeyPrefix + ":" + internal.TokenDigest(token)
}

// Seed creates the activity entry at issue time.
func (s *tokenActivityStore) Seed(ctx context.Context, token string) error {
	value := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.redis.Set(ctx, s.key(token), value, s.timeout).Err(); err != nil {
		return fmt.Errorf("%w: %v", errActivityBackend, err)
	}
	return nil
}

// Check verifies the entry exists without refreshing it.
func (s *tokenActivityStore) Check(ctx context.Context, token string) error {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errActivityBackend, err)
	}
	if n == 0 {
		return errActivityMissing
	}
	return nil
}

// Touch refreshes the entry and its TTL. Last writer wins; concurrent
// touches are all valid activity.
func (s *tokenActivityStore) Touch(ctx context.Context, token string) error {
	value := strconv.FormatInt(s.now().UnixMilli(), 10)
	set, err := s.redis.SetXX(ctx, s.key(token), value, s.timeout).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errActivityBackend, err)
	}
	if !set {
		return errActivityMissing
	}
	return nil
}

// Revoke deletes the entry. Idempotent: revoking an already-dead token is
// not an error.
func (s *tokenActivityStore) Revoke(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errActivityBackend, err)
	}
	return nil
}
