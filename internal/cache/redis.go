// Package cache はオーバーラップ計算結果のキャッシュを提供する。
// Redisが設定されている場合のみ有効化され、キャッシュの失敗は直接計算へフォールバックする。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss はキーが存在しないことを示す。
var ErrCacheMiss = errors.New("cache miss")

// Store はキャッシュバックエンドのインターフェース。
type Store interface {
	// Get はキーの値を返す。存在しない場合はErrCacheMissを返す。
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisConfig はRedis接続設定を保持する。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore はgo-redisを使用したStoreの実装。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore はRedisクライアントを生成し、PINGで接続を確認する。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Get はキーの値を返す。
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

// Set はTTL付きで値を保存する。
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Del はキーを削除する。
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
