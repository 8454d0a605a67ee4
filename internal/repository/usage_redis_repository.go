package repository

import (
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys outlive the logical window by this much so Redis reclaims abandoned
// users on its own; the timestamp comparison stays authoritative.
const redisKeyGrace = time.Hour

// incrementScript counts one request against the user's hash.
// KEYS[1] = usage hash key
// ARGV[1] = now (unix milliseconds)
// ARGV[2] = window (milliseconds)
// ARGV[3] = key ttl (milliseconds)
//
// Returns the request count after the increment.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local first = tonumber(redis.call("HGET", key, "first_request_at") or "0")
if first == 0 or now >= first + window then
    redis.call("HSET", key, "request_count", 1, "first_request_at", now, "last_request_at", now)
    redis.call("PEXPIRE", key, ttl)
    return 1
end

local count = redis.call("HINCRBY", key, "request_count", 1)
redis.call("HSET", key, "last_request_at", now)
return count
`)

// deleteExpiredScript removes the hash only if its window started at or before the cutoff.
// KEYS[1] = usage hash key
// ARGV[1] = cutoff (unix milliseconds)
var deleteExpiredScript = redis.NewScript(`
local first = tonumber(redis.call("HGET", KEYS[1], "first_request_at") or "0")
if first ~= 0 and first <= tonumber(ARGV[1]) then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisUsageRepository struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisUsageRepository stores one hash per user under keyPrefix+userID.
func NewRedisUsageRepository(client redis.Cmdable, keyPrefix string) UsageRepository {
	return &redisUsageRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *redisUsageRepository) key(userID string) string {
	return r.keyPrefix + userID
}

func (r *redisUsageRepository) FindByUserID(ctx context.Context, userID string) (*models.UsageRecord, error) {
	vals, err := r.client.HMGet(ctx, r.key(userID), "request_count", "first_request_at", "last_request_at").Result()
	if err != nil {
		return nil, errors.Unavailable(err, "failed to get usage record")
	}
	if vals[0] == nil || vals[1] == nil {
		return nil, nil
	}

	count, err := parseRedisInt(vals[0])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt request_count in usage record")
	}
	first, err := parseRedisInt(vals[1])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt first_request_at in usage record")
	}
	last := first
	if vals[2] != nil {
		if last, err = parseRedisInt(vals[2]); err != nil {
			return nil, errors.Wrap(err, "corrupt last_request_at in usage record")
		}
	}

	return &models.UsageRecord{
		UserID:         userID,
		RequestCount:   int(count),
		FirstRequestAt: time.UnixMilli(first).UTC(),
		LastRequestAt:  time.UnixMilli(last).UTC(),
	}, nil
}

func (r *redisUsageRepository) Increment(ctx context.Context, userID string, now time.Time, window time.Duration) error {
	ttl := window + redisKeyGrace
	err := incrementScript.Run(ctx, r.client,
		[]string{r.key(userID)},
		now.UnixMilli(), window.Milliseconds(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return errors.Unavailable(err, "failed to increment usage record")
	}
	return nil
}

func (r *redisUsageRepository) DeleteExpired(ctx context.Context, userID string, cutoff time.Time) error {
	err := deleteExpiredScript.Run(ctx, r.client, []string{r.key(userID)}, cutoff.UnixMilli()).Err()
	if err != nil {
		return errors.Unavailable(err, "failed to delete usage record")
	}
	return nil
}

func parseRedisInt(v interface{}) (int64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseInt(val, 10, 64)
	case int64:
		return val, nil
	default:
		return 0, errors.ErrInvalidInput
	}
}
