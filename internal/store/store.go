package store

import (
	"context"
	"time"
)

// Cache keeps successful API response bodies so repeated queries do not spend
// the daily call budget.
type Cache interface {
	Lookup(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error)
	Save(ctx context.Context, key string, body []byte) error
	Close() error
}

type NopCache struct{}

func (c *NopCache) Lookup(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	_ = ctx
	_ = key
	_ = maxAge
	return nil, false, nil
}

func (c *NopCache) Save(ctx context.Context, key string, body []byte) error {
	_ = ctx
	_ = key
	_ = body
	return nil
}

func (c *NopCache) Close() error {
	return nil
}
