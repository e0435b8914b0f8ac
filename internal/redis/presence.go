package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/reception-signaling/internal/models"
)

const presenceKey = "reception:staff:online"

// Presence tracks online staff across instances in a single Redis hash keyed
// by connection id. The hash expires ttl after the last join so a crashed
// instance cannot leave staff online forever.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresence wraps client.
func NewPresence(client *redis.Client, ttl time.Duration) (*Presence, error) {
	if client == nil {
		return nil, errors.New("presence: redis client is required")
	}
	return &Presence{client: client, ttl: ttl}, nil
}

// Join marks staff as online.
func (p *Presence) Join(ctx context.Context, staff models.OnlineStaff) error {
	data, err := json.Marshal(staff)
	if err != nil {
		return fmt.Errorf("encode presence %s: %w", staff.ConnID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, presenceKey, staff.ConnID, data)
	if p.ttl > 0 {
		pipe.Expire(ctx, presenceKey, p.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Leave removes a staff connection.
func (p *Presence) Leave(ctx context.Context, connID string) error {
	return p.client.HDel(ctx, presenceKey, connID).Err()
}

// Members lists online staff ordered by connection time.
func (p *Presence) Members(ctx context.Context) ([]models.OnlineStaff, error) {
	raw, err := p.client.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.OnlineStaff, 0, len(raw))
	for connID, data := range raw {
		var staff models.OnlineStaff
		if err := json.Unmarshal([]byte(data), &staff); err != nil {
			return nil, fmt.Errorf("decode presence %s: %w", connID, err)
		}
		out = append(out, staff)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out, nil
}
