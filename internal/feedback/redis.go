package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

const (
	redisKeyPrefix    = "feedback:"
	redisResourcesKey = "feedback:resources"
)

// trimScript pops everything but the newest ARGV[1] entries from the list
// at KEYS[1] and returns the popped entries oldest first.
// KEYS[1] = list key
// ARGV[1] = entries to keep
var trimScript = redis.NewScript(`
local key = KEYS[1]
local keep = tonumber(ARGV[1])
local len = redis.call("LLEN", key)
local drop = len - keep
if drop <= 0 then
    return {}
end
local removed = redis.call("LRANGE", key, 0, drop - 1)
redis.call("LTRIM", key, drop, -1)
return removed
`)

// trimHeadScript pops at most ARGV[1] of the oldest entries from the list
// at KEYS[1] and returns them oldest first.
var trimHeadScript = redis.NewScript(`
local n = tonumber(ARGV[1])
if n <= 0 then
    return {}
end
local removed = redis.call("LRANGE", KEYS[1], 0, n - 1)
if #removed > 0 then
    redis.call("LTRIM", KEYS[1], #removed, -1)
end
return removed
`)

// RedisLog stores each resource's feedback as a Redis list of JSON records
// under feedback:<resourceId>, plus a set of resource ids.
type RedisLog struct {
	client redis.UniversalClient
}

func NewRedisLog(addr, password string, db int) *RedisLog {
	return NewRedisLogFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewRedisLogFromClient(client redis.UniversalClient) *RedisLog {
	return &RedisLog{client: client}
}

func redisKey(resourceID string) string {
	return redisKeyPrefix + resourceID
}

func (r *RedisLog) Append(ctx context.Context, rec models.FeedbackRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, redisKey(rec.ResourceID), payload)
		pipe.SAdd(ctx, redisResourcesKey, rec.ResourceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append feedback: %w", err)
	}
	return nil
}

func (r *RedisLog) List(ctx context.Context, resourceID string) ([]models.FeedbackRecord, error) {
	raw, err := r.client.LRange(ctx, redisKey(resourceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list feedback: %w", err)
	}
	return decodeRecords(raw)
}

func (r *RedisLog) Trim(ctx context.Context, resourceID string, keep int) ([]models.FeedbackRecord, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := trimScript.Run(ctx, r.client, []string{redisKey(resourceID)}, keep).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis trim feedback: %w", err)
	}
	return decodeRecords(res)
}

func (r *RedisLog) TrimHead(ctx context.Context, resourceID string, n int) ([]models.FeedbackRecord, error) {
	res, err := trimHeadScript.Run(ctx, r.client, []string{redisKey(resourceID)}, n).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis trim feedback: %w", err)
	}
	return decodeRecords(res)
}

func (r *RedisLog) Resources(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, redisResourcesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis feedback resources: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *RedisLog) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLog) Close() error {
	return r.client.Close()
}

func decodeRecords(raw []string) ([]models.FeedbackRecord, error) {
	out := make([]models.FeedbackRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.FeedbackRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
