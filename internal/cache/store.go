package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Prefixed namespaces every key of an underlying Store.
type Prefixed struct {
	Store  Store
	Prefix string
}

func (p Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.Prefix+key)
}

func (p Prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.Store.Set(ctx, p.Prefix+key, value, ttl)
}

func (p Prefixed) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.Prefix+key)
}

// GetJSON decodes a cached JSON value into out.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
