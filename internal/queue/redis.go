// Package queue carries post-call analysis jobs over a Redis stream so the
// worker process can run them outside the API server.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config names the stream and this process's consumer identity. Entries left
// pending for ClaimIdle are handed to the next Consume again.
type Config struct {
	URL       string
	Stream    string
	Group     string
	Consumer  string
	ClaimIdle time.Duration
}

// Job asks for one call's post-call analysis.
type Job struct {
	CallID     string
	EnqueuedAt time.Time
}

// Message is a delivered job with its stream entry id. Deliveries counts
// this delivery, starting at 1.
type Message struct {
	ID         string
	Job        Job
	Deliveries int64
}

type RedisQueue struct {
	client    *redis.Client
	stream    string
	group     string
	consumer  string
	claimIdle time.Duration
}

func NewRedisQueue(ctx context.Context, cfg Config) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = 5 * time.Minute
	}
	q := &RedisQueue{
		client:    client,
		stream:    cfg.Stream,
		group:     cfg.Group,
		consumer:  cfg.Consumer,
		claimIdle: cfg.ClaimIdle,
	}

	if err := q.ensureConsumerGroup(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return q, nil
}

func (q *RedisQueue) ensureConsumerGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Dispatch enqueues analysis for callID.
func (q *RedisQueue) Dispatch(ctx context.Context, callID string) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"call_id":     callID,
			"enqueued_at": strconv.FormatInt(time.Now().UnixMilli(), 10),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Consume returns up to count jobs. Entries another delivery left pending for
// longer than the claim idle time come first; otherwise it reads new entries,
// blocking up to block. Entries that do not decode are acknowledged and
// dropped.
func (q *RedisQueue) Consume(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	reclaimed, err := q.reclaim(ctx, count)
	if err != nil {
		return nil, err
	}
	if len(reclaimed) > 0 {
		return reclaimed, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var entries []redis.XMessage
	for _, stream := range streams {
		entries = append(entries, stream.Messages...)
	}
	return q.decode(ctx, entries, nil), nil
}

// reclaim takes over stale pending entries with XAUTOCLAIM.
func (q *RedisQueue) reclaim(ctx context.Context, count int64) ([]Message, error) {
	entries, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   q.stream,
		Group:    q.group,
		Start:    entries[0].ID,
		End:      entries[len(entries)-1].ID,
		Count:    int64(len(entries)),
		Consumer: q.consumer,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
	}
	return q.decode(ctx, entries, deliveries), nil
}

func (q *RedisQueue) decode(ctx context.Context, entries []redis.XMessage, deliveries map[string]int64) []Message {
	var (
		messages []Message
		bad      []string
	)
	for _, entry := range entries {
		job, ok := decodeJob(entry.Values)
		if !ok {
			bad = append(bad, entry.ID)
			continue
		}
		n := deliveries[entry.ID]
		if n < 1 {
			n = 1
		}
		messages = append(messages, Message{ID: entry.ID, Job: job, Deliveries: n})
	}
	if len(bad) > 0 {
		_ = q.Ack(ctx, bad...)
	}
	return messages
}

func decodeJob(values map[string]any) (Job, bool) {
	id, _ := values["call_id"].(string)
	if strings.TrimSpace(id) == "" {
		return Job{}, false
	}
	job := Job{CallID: id}
	if raw, ok := values["enqueued_at"].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			job.EnqueuedAt = time.UnixMilli(ms).UTC()
		}
	}
	return job, true
}

func (q *RedisQueue) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if _, err := q.client.XAck(ctx, q.stream, q.group, messageIDs...).Result(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.stream).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
