// Package idempotency caches decided HTTP responses per idempotency token.
// It sits in front of the booking coordinator: a hit answers the retry
// without touching the engine, a miss falls through to the ledger's own
// token check. Best effort only; a cold or absent cache is never an error.
package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/transconnect/booking-engine/internal/adapters/redis"
)

type Idempotency struct {
	replay *redisadapter.Replay
	ttl    time.Duration
}

func NewIdempotency(replay *redisadapter.Replay, ttl time.Duration) *Idempotency {
	return &Idempotency{replay: replay, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, token string) (*Response, error) {
	if i == nil || i.replay == nil || token == "" {
		return nil, nil
	}
	cached, err := i.replay.Get(ctx, token)
	if err != nil || cached == nil {
		return nil, err
	}
	return &Response{Status: cached.Status, Result: cached.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, token string, resp Response) error {
	if i == nil || i.replay == nil || token == "" {
		return nil
	}
	return i.replay.Set(ctx, token, redisadapter.ReplayResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}
