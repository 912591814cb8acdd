package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corefin/metrichub/internal/logger"
)

// TaskEvent is the lifecycle notification published for every task
// state transition. Consumers (dashboards, cache invalidators) treat it
// as advisory; the task_run row stays the source of truth.
type TaskEvent struct {
	TaskID          string    `json:"task_id"`
	MetricVersionID string    `json:"metric_version_id"`
	TaskType        string    `json:"task_type"`
	Status          string    `json:"status"`
	At              time.Time `json:"at"`
}

type TaskBus interface {
	Publish(ctx context.Context, event TaskEvent) error
	StartListener(ctx context.Context, onEvent func(e TaskEvent)) error
	Close() error
}

type taskBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewTaskBus(log *logger.Logger) (TaskBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_TASK_CHANNEL"))
	if ch == "" {
		ch = "metric_tasks"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &taskBus{
		log:     log.With("service", "RedisTaskBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *taskBus) Publish(ctx context.Context, event TaskEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis task bus not initialized")
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *taskBus) StartListener(ctx context.Context, onEvent func(e TaskEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis task bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var event TaskEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad redis task payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}

func (b *taskBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
