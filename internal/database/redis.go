package database

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "roadstation:styles:"

// RedisBackend keeps each profile in one hash
type RedisBackend struct {
	rc *redis.Client
}

// NewRedisBackend connects and pings the server
func NewRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, err
	}
	return &RedisBackend{rc: rc}, nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(rc *redis.Client) *RedisBackend {
	return &RedisBackend{rc: rc}
}

func (r *RedisBackend) Close() error {
	return r.rc.Close()
}

func profileKey(profile string) string {
	return redisKeyPrefix + profile
}

func (r *RedisBackend) Get(ctx context.Context, profile, key string) (string, bool, error) {
	v, err := r.rc.HGet(ctx, profileKey(profile), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, profile, key, value string) error {
	return r.rc.HSet(ctx, profileKey(profile), key, value).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, profile, key string) error {
	return r.rc.HDel(ctx, profileKey(profile), key).Err()
}

func (r *RedisBackend) Keys(ctx context.Context, profile string) ([]string, error) {
	return r.rc.HKeys(ctx, profileKey(profile)).Result()
}

func (r *RedisBackend) Items(ctx context.Context, profile string) (map[string]string, error) {
	return r.rc.HGetAll(ctx, profileKey(profile)).Result()
}

// Profiles scans for profile hashes
func (r *RedisBackend) Profiles(ctx context.Context) ([]string, error) {
	var profiles []string
	iter := r.rc.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		profiles = append(profiles, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}
