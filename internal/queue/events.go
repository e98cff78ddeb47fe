package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job types for the timeline stream. Every handler is written assuming
// at-least-once delivery: re-running any job produces the identical end
// state because all feed writes are conflict-ignore inserts.
const (
	JobFanOut          = "fanout_post"
	JobBackfill        = "backfill_follow"
	JobCountersRecount = "counters_recount"
)

// Stream and consumer group names.
const (
	StreamTimeline        = "stream:timeline"
	ConsumerGroupTimeline = "timeline_workers"
)

// Job is the payload published to the timeline stream. JobID correlates
// log lines across redeliveries of the same job.
type Job struct {
	JobID     string `json:"job_id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix seconds at enqueue time

	// Fan-out (JobFanOut)
	PostID   int64 `json:"post_id,omitempty"`
	AuthorID int64 `json:"author_id,omitempty"`
	// AfterFollowerID is the chunk continuation cursor: non-zero when this
	// job resumes a fan-out that was split to bound per-job work.
	AfterFollowerID int64 `json:"after_follower_id,omitempty"`

	// Backfill (JobBackfill)
	FollowerID int64 `json:"follower_id,omitempty"`
	FollowedID int64 `json:"followed_id,omitempty"`

	// Counter repair (JobCountersRecount)
	AccountID int64 `json:"account_id,omitempty"`
}

// NewFanOutJob creates the job enqueued when a post is committed. The
// follower set is read at execution time, not here.
func NewFanOutJob(postID, authorID int64) Job {
	return Job{
		JobID:     uuid.NewString(),
		Type:      JobFanOut,
		Timestamp: time.Now().Unix(),
		PostID:    postID,
		AuthorID:  authorID,
	}
}

// NewFanOutChunkJob creates a continuation of a fan-out whose follower set
// exceeded the per-job page budget. afterFollowerID is the last follower
// id the previous chunk completed.
func NewFanOutChunkJob(postID, authorID, afterFollowerID int64) Job {
	j := NewFanOutJob(postID, authorID)
	j.AfterFollowerID = afterFollowerID
	return j
}

// NewBackfillJob creates the job enqueued when a follow relationship is
// committed. The worker copies the followed account's recent posts into
// the follower's timeline.
func NewBackfillJob(followerID, followedID int64) Job {
	return Job{
		JobID:      uuid.NewString(),
		Type:       JobBackfill,
		Timestamp:  time.Now().Unix(),
		FollowerID: followerID,
		FollowedID: followedID,
	}
}

// NewCountersRecountJob creates an out-of-band counter drift repair job.
func NewCountersRecountJob(accountID int64) Job {
	return Job{
		JobID:     uuid.NewString(),
		Type:      JobCountersRecount,
		Timestamp: time.Now().Unix(),
		AccountID: accountID,
	}
}

// ToMap converts the job to a map for Redis XADD. Streams store field-value
// pairs, so the payload travels as JSON in a "data" field.
func (j Job) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return map[string]interface{}{
		"type": j.Type,
		"data": string(data),
	}, nil
}

// ParseJob parses a Job from Redis stream message values.
func ParseJob(values map[string]interface{}) (Job, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Job{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}
