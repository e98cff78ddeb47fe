package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for enqueueing jobs onto a stream.
type Publisher interface {
	// Publish adds a job to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, job Job) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds a job to the stream using XADD with an auto-generated
// message ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, job Job) (string, error) {
	startTime := time.Now()

	values, err := job.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s job=%s err=%v", stream, job.Type, job.JobID, err)
		return "", fmt.Errorf("serialize job: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()

	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s job=%s err=%v", stream, job.Type, job.JobID, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s job=%s msgID=%s duration=%v",
		stream, job.Type, job.JobID, messageID, time.Since(startTime))

	switch job.Type {
	case JobFanOut:
		log.Printf("[Publisher]   -> post=%d author=%d after=%d", job.PostID, job.AuthorID, job.AfterFollowerID)
	case JobBackfill:
		log.Printf("[Publisher]   -> follower=%d followed=%d", job.FollowerID, job.FollowedID)
	case JobCountersRecount:
		log.Printf("[Publisher]   -> account=%d", job.AccountID)
	}

	return messageID, nil
}
