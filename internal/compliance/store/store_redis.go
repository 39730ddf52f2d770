package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"medshare/internal/compliance/models"
)

const keyPrefix = "compliance:state:"

// recordFailureScript performs the read-increment-compare for one identity
// in a single server-side step. Timestamps are unix milliseconds; a zero
// locked_until means no lockout. The key expires once the state it holds
// would be discarded anyway: at the end of the failure window or of the
// lockout, whichever is later.
var recordFailureScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local window = tonumber(ARGV[4])

local failures = tonumber(redis.call('HGET', key, 'failures') or '0')
local locked = tonumber(redis.call('HGET', key, 'locked_until') or '0')
local last = tonumber(redis.call('HGET', key, 'last_failure') or '0')
if locked > 0 and locked <= now then
  failures = 0
  locked = 0
elseif locked == 0 and window > 0 and last > 0 and last + window <= now then
  failures = 0
end

failures = failures + 1
local triggered = 0
if locked == 0 and failures >= threshold then
  locked = now + lockout
  triggered = 1
end

redis.call('HSET', key, 'failures', failures, 'locked_until', locked, 'last_failure', now)

local ttl = window
if locked > now and locked - now > ttl then
  ttl = locked - now
end
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
else
  redis.call('PERSIST', key)
end
return {failures, locked, triggered}
`)

var clearElapsedScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local locked = tonumber(redis.call('HGET', key, 'locked_until') or '0')
if locked > 0 and locked <= now then
  redis.call('DEL', key)
  return {}
end
return redis.call('HMGET', key, 'failures', 'locked_until', 'last_failure')
`)

// RedisStore keeps attempt state in one hash per identity so every
// instance behind a load balancer sees the same counters.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*models.State, error) {
	values, err := s.client.HMGet(ctx, key(identity), "failures", "locked_until", "last_failure").Result()
	if err != nil {
		return nil, fmt.Errorf("get compliance state: %w", err)
	}
	return decodeState(identity, values)
}

func (s *RedisStore) ClearElapsed(ctx context.Context, identity string, now time.Time) (*models.State, error) {
	values, err := clearElapsedScript.Run(ctx, s.client, []string{key(identity)}, now.UnixMilli()).Slice()
	if err != nil {
		return nil, fmt.Errorf("clear elapsed lockout: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeState(identity, values)
}

func (s *RedisStore) RecordFailure(ctx context.Context, identity string, now time.Time, policy models.Policy) (*models.FailureResult, error) {
	res, err := recordFailureScript.Run(ctx, s.client, []string{key(identity)},
		now.UnixMilli(), policy.Threshold, policy.LockoutDuration.Milliseconds(),
		policy.FailureWindow.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("record failure: unexpected script result %v", res)
	}
	state := &models.State{
		Identity:            identity,
		ConsecutiveFailures: int(res[0]),
		LockedUntil:         fromMillis(res[1]),
		LastFailureAt:       now,
	}
	return &models.FailureResult{State: state, LockTriggered: res[2] == 1}, nil
}

func (s *RedisStore) Clear(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, key(identity)).Err(); err != nil {
		return fmt.Errorf("clear compliance state: %w", err)
	}
	return nil
}

func key(identity string) string {
	return keyPrefix + identity
}

// decodeState parses HMGET output ordered failures, locked_until, last_failure.
// A missing failures field means the identity is not tracked.
func decodeState(identity string, values []any) (*models.State, error) {
	if len(values) != 3 || values[0] == nil {
		return nil, nil
	}
	nums := make([]int64, 3)
	for i, v := range values {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("decode compliance state: unexpected %T", v)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode compliance state: %w", err)
		}
		nums[i] = n
	}
	state := &models.State{
		Identity:            identity,
		ConsecutiveFailures: int(nums[0]),
		LockedUntil:         fromMillis(nums[1]),
	}
	if nums[2] > 0 {
		state.LastFailureAt = time.UnixMilli(nums[2]).UTC()
	}
	return state, nil
}

func fromMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
