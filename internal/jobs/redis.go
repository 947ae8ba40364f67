package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultSnapshotTTL = 24 * time.Hour

// RedisBroadcaster mirrors job events onto Redis pub/sub so other processes
// can follow a job. The latest event per job is also kept under a key with a
// TTL, which lets a late listener start from the current state.
type RedisBroadcaster struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisBroadcaster wraps an existing client. An empty prefix defaults to
// "roleplay".
func NewRedisBroadcaster(rdb goredis.UniversalClient, prefix string, logger *slog.Logger) *RedisBroadcaster {
	if prefix == "" {
		prefix = "roleplay"
	}
	return &RedisBroadcaster{rdb: rdb, prefix: prefix, ttl: defaultSnapshotTTL, log: logger}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Channel is the pub/sub channel carrying events for one job.
func (b *RedisBroadcaster) Channel(jobID string) string {
	return b.prefix + ":job:" + jobID
}

func (b *RedisBroadcaster) lastKey(jobID string) string {
	return b.Channel(jobID) + ":last"
}

// Publish implements Publisher.
func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.lastKey(ev.JobID), raw, b.ttl)
	pipe.Publish(ctx, b.Channel(ev.JobID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Last returns the most recent event published for a job.
func (b *RedisBroadcaster) Last(ctx context.Context, jobID string) (Event, error) {
	raw, err := b.rdb.Get(ctx, b.lastKey(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Event{}, fmt.Errorf("last event %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return Event{}, fmt.Errorf("get last event: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode last event: %w", err)
	}
	return ev, nil
}

// Listen follows a job from another process. The channel is closed after a
// terminal event or when ctx ends.
func (b *RedisBroadcaster) Listen(ctx context.Context, jobID string) (<-chan Event, error) {
	sub := b.rdb.Subscribe(ctx, b.Channel(jobID))
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("Bad job event payload", "channel", m.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Status.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}
