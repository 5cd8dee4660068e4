package medauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "la"
	failureKeyPrefix = "laf"
)

var errAttemptBackend = errors.New("attempt ledger backend unavailable")

// loginAttemptLedger is the append-only record of login attempts per email.
// Lockout is never stored: it is derived from the failure count inside the
// trailing window, so it decays on its own as attempts age out.
type loginAttemptLedger struct {
	redis     redis.UniversalClient
	threshold int
	window    time.Duration
	retention time.Duration
	now       func() time.Time
}

func newLoginAttemptLedger(redisClient redis.UniversalClient, cfg LockoutConfig, now func() time.Time) *loginAttemptLedger {
	if now == nil {
		now = time.Now
	}
	return &loginAttemptLedger{
		redis:     redisClient,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		retention: cfg.Retention,
		now:       now,
	}
}

func (l *loginAttemptLedger) attemptKey(email string) string {
	return attemptKeyPrefix + ":" + email
}

func (l *loginAttemptLedger) failureKey(email string) string {
	return failureKeyPrefix + ":" + email
}

// Record appends one attempt. Failures additionally land in the failure set
// used for lockout derivation. Old entries past the retention horizon are
// pruned on every write so the sets stay bounded.
func (l *loginAttemptLedger) Record(ctx context.Context, email, ip string, outcome AttemptOutcome, reason string) error {
	at := l.now()
	record := LoginAttemptRecord{
		ID:      uuid.NewString(),
		Email:   email,
		IP:      ip,
		Outcome: outcome,
		Reason:  reason,
		At:      at,
	}

	member, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", errAttemptBackend, err)
	}

	score := float64(at.UnixMilli())
	horizon := strconv.FormatInt(at.Add(-l.retention).UnixMilli(), 10)

	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, l.attemptKey(email), redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, l.attemptKey(email), "-inf", horizon)
	pipe.Expire(ctx, l.attemptKey(email), l.retention)
	if outcome == AttemptFailed {
		pipe.ZAdd(ctx, l.failureKey(email), redis.Z{Score: score, Member: record.ID})
		pipe.ZRemRangeByScore(ctx, l.failureKey(email), "-inf", horizon)
		pipe.Expire(ctx, l.failureKey(email), l.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errAttemptBackend, err)
	}

	return nil
}

// FailuresSince counts failed attempts with timestamps >= since.
func (l *loginAttemptLedger) FailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	min := strconv.FormatInt(since.UnixMilli(), 10)
	count, err := l.redis.ZCount(ctx, l.failureKey(email), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errAttemptBackend, err)
	}
	return int(count), nil
}

// IsLocked reports whether the failure count inside the trailing window has
// reached the threshold. A backend failure is an error, never "not locked".
func (l *loginAttemptLedger) IsLocked(ctx context.Context, email string) (bool, error) {
	failures, err := l.FailuresSince(ctx, email, l.now().Add(-l.window))
	if err != nil {
		return false, err
	}
	return failures >= l.threshold, nil
}

// Clear drops the failure entries that currently count toward lockout. The
// attempt history itself stays: unlocking an account does not rewrite its
// audit trail.
func (l *loginAttemptLedger) Clear(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.failureKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptBackend, err)
	}
	return nil
}

// Recent returns up to n most recent attempts, newest first.
func (l *loginAttemptLedger) Recent(ctx context.Context, email string, n int) ([]LoginAttemptRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	members, err := l.redis.ZRevRange(ctx, l.attemptKey(email), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAttemptBackend, err)
	}

	records := make([]LoginAttemptRecord, 0, len(members))
	for _, member := range members {
		var record LoginAttemptRecord
		if err := json.Unmarshal([]byte(member), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
