package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rating-service/internal/client"
	"rating-service/internal/ratelimit"
	"rating-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// checkAndConsumeScript runs the ledger decision rule server side so that
// the read, the check and the write happen in one atomic step. Expiry is
// judged against the policy window passed in, never the stored window_ms.
// ARGV: now_ms, window_ms, quota. Returns {allowed, remaining}.
var checkAndConsumeScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local quota = tonumber(ARGV[3])

local entry = redis.call('HMGET', key, 'count', 'window_start')
local count = tonumber(entry[1])
local start = tonumber(entry[2])

if count == nil or start == nil or now - start >= window then
    redis.call('HSET', key, 'count', 1, 'window_start', now, 'window_ms', window)
    return {1, quota - 1}
end

if count < quota then
    count = redis.call('HINCRBY', key, 'count', 1)
    redis.call('HSET', key, 'window_ms', window)
    return {1, quota - count}
end

return {0, 0}
`)

// sweepScript deletes the entry only if it is still past its window plus the
// margin when the script runs. ARGV: now_ms, margin_ms.
var sweepScript = goredis.NewScript(`
local entry = redis.call('HMGET', KEYS[1], 'window_start', 'window_ms')
local start = tonumber(entry[1])
local window = tonumber(entry[2])
if start == nil or window == nil then
    return 0
end
if tonumber(ARGV[1]) >= start + window + tonumber(ARGV[2]) then
    redis.call('DEL', KEYS[1])
    return 1
end
return 0
`)

// RateLimitCache is the Redis backed rate limit ledger. Entries are hashes
// without TTL; expired ones are removed by the sweeper.
type RateLimitCache struct {
	client        *client.RedisClient
	scanBatchSize int64
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client, scanBatchSize: 500}
}

func (c *RateLimitCache) Name() string { return "redis" }

func ledgerKey(key ratelimit.Key) string {
	return fmt.Sprintf("%s%s:%s:%s", rateLimitPrefix, key.Action, key.Identity, key.Scope)
}

// splitLedgerKey returns the action and identity of a key built by
// ledgerKey. The scope may itself contain colons and is not returned.
func splitLedgerKey(key string) (action, identity string) {
	parts := strings.SplitN(strings.TrimPrefix(key, rateLimitPrefix), ":", 3)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func (c *RateLimitCache) CheckAndConsume(ctx context.Context, key ratelimit.Key, policy ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	result, err := checkAndConsumeScript.Run(ctx, c.client.Client,
		[]string{ledgerKey(key)},
		now.UnixMilli(), policy.Window.Milliseconds(), policy.Quota).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("failed to execute rate limit script: %w", err)
	}
	if len(result) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("unexpected result format from rate limit script")
	}

	return ratelimit.Decision{Allowed: result[0] == 1, Remaining: int(result[1])}, nil
}

func (c *RateLimitCache) SweepExpired(ctx context.Context, now time.Time, margin time.Duration) (int, error) {
	deleted := 0
	cursor := uint64(0)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, rateLimitPrefix+"*", c.scanBatchSize)
		if err != nil {
			return deleted, fmt.Errorf("failed to scan rate limit keys: %w", err)
		}

		for _, key := range keys {
			n, err := sweepScript.Run(ctx, c.client.Client, []string{key}, now.UnixMilli(), margin.Milliseconds()).Int()
			if err != nil {
				action, identity := splitLedgerKey(key)
				util.Warn("Failed to sweep rate limit key",
					zap.String("action", action),
					util.Identity(identity),
					zap.Error(err))
				if ctx.Err() != nil {
					return deleted, ctx.Err()
				}
				continue
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
