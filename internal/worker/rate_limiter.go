package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DripLimiter enforces per-batch daily enrollment quotas using an atomic
// Redis Lua script. A GET -> check -> INCR sequence would race when two
// worker instances handle the same drip schedule.
type DripLimiter struct {
	redis       *redis.Client
	quotaScript *redis.Script
}

// Lua script: reserve up to ARGV[2] units under the daily limit ARGV[1],
// atomically. Returns how many units were granted (possibly fewer than
// requested, possibly zero).
const dripQuotaLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local want = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")
local available = limit - current
if available <= 0 then
    return 0
end

local grant = want
if grant > available then
    grant = available
end

local newVal = redis.call("INCRBY", key, grant)
if newVal == grant then
    redis.call("EXPIRE", key, ttl)
end

return grant
`

func NewDripLimiter(redisClient *redis.Client) *DripLimiter {
	return &DripLimiter{
		redis:       redisClient,
		quotaScript: redis.NewScript(dripQuotaLuaScript),
	}
}

// Reserve grants up to want enrollment slots for the batch's current day,
// bounded by perDay. The counter expires after 25 hours so stale days
// clean themselves up.
func (l *DripLimiter) Reserve(ctx context.Context, batchID uuid.UUID, perDay, want int) (int, error) {
	if l == nil || l.redis == nil {
		// No Redis: quota enforcement degrades to plain per-pass capping.
		if want > perDay {
			return perDay, nil
		}
		return want, nil
	}

	key := fmt.Sprintf("driplimit:%s:day:%s", batchID, time.Now().Format("2006-01-02"))
	granted, err := l.quotaScript.Run(ctx, l.redis, []string{key}, perDay, want, 90000).Int()
	if err != nil {
		return 0, fmt.Errorf("drip quota check failed: %w", err)
	}
	return granted, nil
}

// Usage returns how many slots the batch has consumed today.
func (l *DripLimiter) Usage(ctx context.Context, batchID uuid.UUID) (int, error) {
	if l == nil || l.redis == nil {
		return 0, nil
	}
	key := fmt.Sprintf("driplimit:%s:day:%s", batchID, time.Now().Format("2006-01-02"))
	n, err := l.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading drip usage: %w", err)
	}
	return n, nil
}
