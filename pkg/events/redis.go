package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/logger"
)

const (
	TopUpQueue  = "topup_events"
	FailedQueue = "failed_topup_events"
)

const (
	EventTopUpSucceeded = "topup.success"
	EventTopUpFailed    = "topup.failed"
)

type RedisClient struct {
	Client *redis.Client
}

// TopUpEvent is a verified gateway notification about a pending top-up.
type TopUpEvent struct {
	Event     string    `json:"event"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis url is not a url, using it as an address", logger.Fields{"error": err.Error()})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
		}
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "addr": opt.Addr})
	} else {
		logger.Info("Connected to Redis", logger.Fields{"addr": opt.Addr})
	}

	return &RedisClient{Client: rdb}
}

func (r *RedisClient) PublishTopUp(ctx context.Context, event TopUpEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.Client.RPush(ctx, TopUpQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to redis: %w", err)
	}
	return nil
}

// Pop blocks for up to timeout waiting for the next top-up event. It returns
// nil data when the queue stayed empty.
func (r *RedisClient) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := r.Client.BLPop(ctx, timeout, TopUpQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(result[1]), nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to DLQ: %w", err)
	}
	return nil
}

// Requeue puts an unfinished event back at the head of the top-up queue.
func (r *RedisClient) Requeue(ctx context.Context, data []byte) error {
	if err := r.Client.LPush(ctx, TopUpQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue event: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}
