package medauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelmed/medauth/internal"
)

const mfaChallengeKeyPrefix = "mfc"

var (
	errMFAChallengeNotFound = errors.New("mfa challenge not found")
	errMFAChallengeMismatch = errors.New("mfa challenge mismatch")
	errMFAChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// mfaChallengeStore keeps at most one pending MFA code per user. Issue
// replaces any previous code; Verify consumes the code atomically so a
// correct code authenticates exactly one caller even under races.
type mfaChallengeStore struct {
	redis  *redis.Client
	digits int
	ttl    time.Duration
}

func newMFAChallengeStore(redisClient *redis.Client, cfg MFAConfig) *mfaChallengeStore {
	return &mfaChallengeStore{
		redis:  redisClient,
		digits: cfg.CodeDigits,
		ttl:    cfg.ChallengeTTL,
	}
}

func (s *mfaChallengeStore) key(userID string) string {
	return mfaChallengeKeyPrefix + ":" + userID
}

// Issue generates a fresh code for the user, replacing any outstanding one.
func (s *mfaChallengeStore) Issue(ctx context.Context, userID string) (string, error) {
	code, err := internal.NewOTP(s.digits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
	}
	if err := s.redis.Set(ctx, s.key(userID), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
	}
	return code, nil
}

// Verify compares and consumes in one optimistic transaction. A mismatch
// leaves the challenge in place; a match deletes it, so only one concurrent
// caller can win. Expired or absent challenges report not-found.
func (s *mfaChallengeStore) Verify(ctx context.Context, userID, code string) error {
	const maxRetries = 4
	key := s.key(userID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
				return errMFAChallengeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errMFAChallengeNotFound
			}
			if errors.Is(err, errMFAChallengeMismatch) {
				return err
			}
			return fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
		}
		return nil
	}

	return errMFAChallengeNotFound
}
