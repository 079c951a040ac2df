// Package redis provides a Redis-backed implementation of store.Store.
//
// It wraps redis.UniversalClient, which supports Redis standalone,
// Redis Cluster, and Redis Sentinel out of the box. This is the store
// that exercises the TTL-as-clock trick for real: PTTL, SET ... KEEPTTL,
// and PSETEX all round-trip through the server that owns the expiry
// clock the token bucket, leaky bucket, and fixed window policies read
// elapsed time from.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//
//	// Or with Redis Cluster:
//	client := redis.NewClusterClient(&redis.ClusterOptions{
//	    Addrs: []string{"node1:6379", "node2:6379", "node3:6379"},
//	})
//	s := redisstore.New(client)
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shieldrl/shield/store"
)

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
}

// New creates a Redis-backed Store from any UniversalClient
// (standalone *redis.Client, *redis.ClusterClient, or *redis.Ring).
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient {
	return s.client
}

// PTTL reports the remaining TTL in milliseconds. go-redis represents the
// "no expiry" and "absent" sentinels as -1ns and -2ns respectively rather
// than -1ms/-2ms, so those two cases are special-cased before converting
// the rest to milliseconds.
func (s *Store) PTTL(ctx context.Context, key string) (int64, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	switch d {
	case -2 * time.Nanosecond:
		return store.Absent, nil
	case -1 * time.Nanosecond:
		return store.NoExpiry, nil
	default:
		return d.Milliseconds(), nil
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) SetKeepTTL(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, goredis.KeepTTL).Err()
}

func (s *Store) SetWithExpire(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

func (s *Store) Time(ctx context.Context) (time.Time, error) {
	return s.client.Time(ctx).Result()
}
