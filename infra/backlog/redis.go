package backlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transitio/fleetcoord/core/model"
)

const keyPrefix = "fleetcoord:alerts:"

// Config defines the Redis connection for the shared alert backlog.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// RedisBacklog stores alerts in a per-bus sorted set scored by creation
// time, so multiple coordinator instances share one backlog.
type RedisBacklog struct {
	cli *redis.Client
}

// NewRedisBacklog connects to Redis and verifies the connection.
func NewRedisBacklog(ctx context.Context, cfg Config) (*RedisBacklog, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBacklog{cli: cli}, nil
}

func busKey(busID string) string { return keyPrefix + busID }

func (b *RedisBacklog) Append(ctx context.Context, ev model.AlertEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return b.cli.ZAdd(ctx, busKey(ev.BusID), redis.Z{
		Score:  float64(ev.CreatedAt.UnixNano()),
		Member: raw,
	}).Err()
}

func (b *RedisBacklog) Since(ctx context.Context, busID string, since time.Time) ([]model.AlertEvent, error) {
	raws, err := b.cli.ZRangeByScore(ctx, busKey(busID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.AlertEvent, 0, len(raws))
	for _, raw := range raws {
		var ev model.AlertEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal alert: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (b *RedisBacklog) Prune(ctx context.Context, cutoff time.Time) error {
	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	var cursor uint64
	for {
		keys, next, err := b.cli.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := b.cli.ZRemRangeByScore(ctx, key, "-inf", max).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the underlying client.
func (b *RedisBacklog) Close() error { return b.cli.Close() }
