package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	client.FlushDB(ctx)
	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx := context.Background()
	client.FlushDB(ctx)
	client.Close()
}

const testStream = "stream:timeline:test"

func TestPublishAndConsume(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)
	ctx := context.Background()

	pub := NewPublisher(client)
	con := NewConsumer(client)

	if err := con.EnsureGroup(ctx, testStream, ConsumerGroupTimeline); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	// Second call must tolerate BUSYGROUP.
	if err := con.EnsureGroup(ctx, testStream, ConsumerGroupTimeline); err != nil {
		t.Fatalf("EnsureGroup is not idempotent: %v", err)
	}

	sent := NewFanOutJob(100, 10)
	if _, err := pub.Publish(ctx, testStream, sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := con.Read(ctx, testStream, ConsumerGroupTimeline, "worker-test", 10, time.Second)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	got := msgs[0].Job
	if got.Type != JobFanOut || got.PostID != 100 || got.AuthorID != 10 {
		t.Errorf("job mangled in transit: %+v", got)
	}
	if got.JobID != sent.JobID {
		t.Errorf("job id changed: sent %s, got %s", sent.JobID, got.JobID)
	}

	if err := con.Ack(ctx, testStream, ConsumerGroupTimeline, msgs[0].ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}

func TestUnackedMessageStaysPending(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)
	ctx := context.Background()

	pub := NewPublisher(client)
	con := NewConsumer(client)

	if err := con.EnsureGroup(ctx, testStream, ConsumerGroupTimeline); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	if _, err := pub.Publish(ctx, testStream, NewBackfillJob(5, 10)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Read but do not ack, simulating a crash mid-job.
	msgs, err := con.Read(ctx, testStream, ConsumerGroupTimeline, "worker-crash", 10, time.Second)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Read failed: msgs=%d err=%v", len(msgs), err)
	}

	// The same consumer recovers it from the pending list on restart.
	pending, err := con.ReadPending(ctx, testStream, ConsumerGroupTimeline, "worker-crash", "0", 10)
	if err != nil {
		t.Fatalf("ReadPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msgs[0].ID {
		t.Fatalf("expected the unacked message back, got %d messages", len(pending))
	}

	if err := con.Ack(ctx, testStream, ConsumerGroupTimeline, pending[0].ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	// After ack nothing is pending.
	pending, err = con.ReadPending(ctx, testStream, ConsumerGroupTimeline, "worker-crash", "0", 10)
	if err != nil {
		t.Fatalf("ReadPending after ack failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("acked message still pending: %d", len(pending))
	}
}
