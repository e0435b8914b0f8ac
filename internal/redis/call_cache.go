package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/reception-signaling/internal/calls"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
)

const keyPrefix = "reception:call:"

// writeIfNewer stores ARGV[2] under KEYS[1] unless the stored version is
// already at or past ARGV[1].
var writeIfNewer = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// CallCache keeps the latest snapshot of each call in Redis so any instance
// can answer lookups for recently finished calls. It implements calls.Journal.
type CallCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ calls.Journal = (*CallCache)(nil)

// NewCallCache wraps client. Entries expire ttl after their last write; a
// non-positive ttl keeps them forever.
func NewCallCache(client *redis.Client, ttl time.Duration) (*CallCache, error) {
	if client == nil {
		return nil, errors.New("call cache: redis client is required")
	}
	return &CallCache{client: client, ttl: ttl}, nil
}

// Record stores call if it is newer than the cached snapshot.
func (c *CallCache) Record(ctx context.Context, call calls.Call) error {
	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode call %s: %w", call.ID, err)
	}
	return writeIfNewer.Run(ctx, c.client,
		[]string{key(call.ID)},
		call.Version, data, c.ttl.Milliseconds(),
	).Err()
}

// Find returns the cached snapshot for id.
func (c *CallCache) Find(ctx context.Context, id string) (calls.Call, error) {
	data, err := c.client.HGet(ctx, key(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return calls.Call{}, apperrors.ErrCallNotFound.WithMessage("call %s not found", id)
	}
	if err != nil {
		return calls.Call{}, err
	}

	var call calls.Call
	if err := json.Unmarshal(data, &call); err != nil {
		return calls.Call{}, fmt.Errorf("decode call %s: %w", id, err)
	}
	return call, nil
}

func key(id string) string {
	return keyPrefix + id
}
