package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores one JSON value per principal under a key prefix.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed store.
func NewRedisBackend(addr, password string, db int, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "numrelay:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(principal int64) string {
	return r.prefix + "principal:" + strconv.FormatInt(principal, 10)
}

func (r *RedisBackend) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error) {
	pattern := r.prefix + "principal:*"
	records := make(map[int64]*PrincipalRecord)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var rec PrincipalRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		records[rec.Principal] = &rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan principals: %w", err)
	}
	return records, nil
}

func (r *RedisBackend) SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error {
	pipe := r.client.Pipeline()
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode principal %d: %w", rec.Principal, err)
		}
		pipe.Set(ctx, r.key(rec.Principal), payload, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) SavePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode principal %d: %w", rec.Principal, err)
	}
	return r.client.Set(ctx, r.key(rec.Principal), payload, 0).Err()
}

func (r *RedisBackend) DeletePrincipal(ctx context.Context, principal int64) error {
	return r.client.Del(ctx, r.key(principal)).Err()
}
