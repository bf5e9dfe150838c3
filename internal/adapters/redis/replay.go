package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Replay stores serialized HTTP responses keyed by idempotency token so a
// retried booking request can be answered without re-entering the engine. The
// reservation ledger stays the source of truth; this is only a fast path.
type Replay struct {
	client *redis.Client
}

func NewReplay(client *redis.Client) *Replay {
	return &Replay{client: client}
}

type ReplayResponse struct {
	Status int
	Result []byte
}

func (r *Replay) Get(ctx context.Context, token string) (*ReplayResponse, error) {
	val, err := r.client.Get(ctx, "replay:"+token).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp ReplayResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (r *Replay) Set(ctx context.Context, token string, resp ReplayResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, "replay:"+token, data, ttl).Err()
}
