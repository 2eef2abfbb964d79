package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

const (
	alertsKey   = "dashboard:alerts"
	alertsAtKey = "dashboard:alerts:updated_at"
)

// ErrNoSnapshot is returned by LoadAlerts when nothing has been saved or
// the saved snapshot expired.
var ErrNoSnapshot = errors.New("no alert snapshot")

type RedisSnapshot struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSnapshot(redisURL string, ttl time.Duration) (*RedisSnapshot, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisSnapshot{redis: client, ttl: ttl}, nil
}

func (r *RedisSnapshot) Close() error { return r.redis.Close() }

// SaveAlerts writes the set and its timestamp in one transaction so readers
// never pair a new set with an old timestamp.
func (r *RedisSnapshot) SaveAlerts(ctx context.Context, alerts []models.ClassifiedAlert, updatedAt time.Time) error {
	if alerts == nil {
		alerts = []models.ClassifiedAlert{}
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, alertsKey, data, r.ttl)
	pipe.Set(ctx, alertsAtKey, updatedAt.UTC().Format(time.RFC3339Nano), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save alert snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshot) LoadAlerts(ctx context.Context) ([]models.ClassifiedAlert, time.Time, error) {
	data, err := r.redis.Get(ctx, alertsKey).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load alert snapshot: %w", err)
	}

	var alerts []models.ClassifiedAlert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode alert snapshot: %w", err)
	}

	var updatedAt time.Time
	if s, err := r.redis.Get(ctx, alertsAtKey).Result(); err == nil {
		updatedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	return alerts, updatedAt, nil
}
