package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"homefeed/internal/cache"
	"homefeed/internal/model"
	"homefeed/internal/queue"
)

// FanOutVisibilitySLA is the documented eventual-consistency bound: under
// healthy queue lag a new post is expected in every follower's materialized
// timeline within this window. Exceeding it is a queue-health signal, not a
// correctness failure.
const FanOutVisibilitySLA = 30 * time.Second

// ErrUnknownJobType marks a job no handler exists for. Unlike transient
// store failures it can never succeed on redelivery, so the manager acks
// and drops it instead of leaving it pending.
var ErrUnknownJobType = errors.New("unknown job type")

// FollowerSource pages follower ids for fan-out. Abstracts the repository
// so the worker never depends on the DB package directly.
type FollowerSource interface {
	// GetFollowerIDsPage returns follower ids strictly after afterID,
	// ordered ascending, at most limit.
	GetFollowerIDsPage(ctx context.Context, followedID, afterID int64, limit int) ([]int64, error)
	// Exists reports whether the follow relationship is currently live.
	Exists(ctx context.Context, followerID, followedID int64) (bool, error)
}

// PostSource provides the post projections fan-out and backfill need.
type PostSource interface {
	GetRef(ctx context.Context, postID int64) (*model.PostRef, error)
	GetRecentRefsByAuthor(ctx context.Context, authorID int64, limit int) ([]model.PostRef, error)
}

// EntrySink is the idempotent write target of both fan-out and backfill.
type EntrySink interface {
	InsertIgnore(ctx context.Context, entries []model.FeedEntry) (int64, error)
}

// CounterRepairer recomputes an account's counter cache from source tables.
type CounterRepairer interface {
	RecountTotals(ctx context.Context, id int64) (*model.CounterTotals, error)
}

// Config bounds per-job work for the handler.
type Config struct {
	// FollowerPageSize is the follower-id page size; the full follower set
	// is never materialized at once.
	FollowerPageSize int
	// PagesPerJob is how many pages one fan-out execution processes before
	// handing the rest to a continuation chunk job.
	PagesPerJob int
	// BackfillLimit is K: how many recent posts a new follow copies in.
	BackfillLimit int
}

// DefaultConfig returns the handler defaults.
func DefaultConfig() Config {
	return Config{
		FollowerPageSize: 500,
		PagesPerJob:      20,
		BackfillLimit:    50,
	}
}

// Handler processes timeline jobs from the queue. Every handler is safe
// under at-least-once delivery: the conflict-ignore insert makes reruns
// converge to the same end state.
type Handler struct {
	followers    FollowerSource
	posts        PostSource
	entries      EntrySink
	repairer     CounterRepairer
	publisher    queue.Publisher
	accountCache cache.AccountCache // optional; nil skips invalidation
	cfg          Config
}

// NewHandler creates a new job handler. publisher is used only to enqueue
// fan-out continuation chunks.
func NewHandler(followers FollowerSource, posts PostSource, entries EntrySink, repairer CounterRepairer, publisher queue.Publisher, cfg Config) *Handler {
	if cfg.FollowerPageSize <= 0 {
		cfg.FollowerPageSize = DefaultConfig().FollowerPageSize
	}
	if cfg.PagesPerJob <= 0 {
		cfg.PagesPerJob = DefaultConfig().PagesPerJob
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = DefaultConfig().BackfillLimit
	}
	return &Handler{
		followers: followers,
		posts:     posts,
		entries:   entries,
		repairer:  repairer,
		publisher: publisher,
		cfg:       cfg,
	}
}

// SetAccountCache wires the optional summary cache so counter repair can
// point-invalidate the repaired account.
func (h *Handler) SetAccountCache(ac cache.AccountCache) {
	h.accountCache = ac
}

// HandleJob routes a job to the appropriate handler based on type.
func (h *Handler) HandleJob(ctx context.Context, job queue.Job) error {
	startTime := time.Now()
	var err error

	switch job.Type {
	case queue.JobFanOut:
		err = h.handleFanOut(ctx, job)
	case queue.JobBackfill:
		err = h.handleBackfill(ctx, job)
	case queue.JobCountersRecount:
		err = h.handleRecount(ctx, job)
	default:
		log.Printf("[Worker] Unknown job type: %s", job.Type)
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleJob FAILED: type=%s job=%s duration=%v err=%v",
			job.Type, job.JobID, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleJob OK: type=%s job=%s duration=%v", job.Type, job.JobID, time.Since(startTime))
	return nil
}

// handleFanOut inserts one feed entry per current follower of the post's
// author. The follower set is read in keyset pages at execution time, so
// followers gained since enqueue are included. When the set exceeds the
// per-job page budget, the remainder continues in a chunk job carrying the
// last completed follower id; a crash or timeout loses at most one chunk.
func (h *Handler) handleFanOut(ctx context.Context, job queue.Job) error {
	log.Printf("[Worker] FanOut: post=%d author=%d after=%d job=%s",
		job.PostID, job.AuthorID, job.AfterFollowerID, job.JobID)

	ref, err := h.posts.GetRef(ctx, job.PostID)
	if errors.Is(err, model.ErrPostNotFound) {
		// Post deleted (or author removed) before fan-out ran; its feed
		// entries would be cleaned up immediately anyway.
		log.Printf("[Worker] FanOut: post=%d gone, nothing to do", job.PostID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get post ref: %w", err)
	}

	afterID := job.AfterFollowerID
	var inserted, seen int64

	for page := 0; page < h.cfg.PagesPerJob; page++ {
		followerIDs, err := h.followers.GetFollowerIDsPage(ctx, ref.AuthorID, afterID, h.cfg.FollowerPageSize)
		if err != nil {
			return fmt.Errorf("get follower page: %w", err)
		}

		// A short or empty page means the set is exhausted.
		if len(followerIDs) == 0 {
			log.Printf("[Worker] FanOut DONE: post=%d followers=%d inserted=%d", ref.ID, seen, inserted)
			return nil
		}

		entries := make([]model.FeedEntry, len(followerIDs))
		for i, ownerID := range followerIDs {
			entries[i] = model.FeedEntry{
				OwnerID:   ownerID,
				PostID:    ref.ID,
				AuthorID:  ref.AuthorID,
				CreatedAt: ref.CreatedAt,
			}
		}

		n, err := h.entries.InsertIgnore(ctx, entries)
		if err != nil {
			// Retryable from the chunk start: re-running re-inserts with
			// conflict-ignore and converges.
			return fmt.Errorf("insert entries: %w", err)
		}

		inserted += n
		seen += int64(len(followerIDs))
		afterID = followerIDs[len(followerIDs)-1]

		if len(followerIDs) < h.cfg.FollowerPageSize {
			log.Printf("[Worker] FanOut DONE: post=%d followers=%d inserted=%d", ref.ID, seen, inserted)
			return nil
		}
	}

	// Page budget exhausted on a full page. When the follower count is an
	// exact multiple of the page size there is nothing left; peek one id
	// past the cursor so a dead continuation chunk is not enqueued.
	remaining, err := h.followers.GetFollowerIDsPage(ctx, ref.AuthorID, afterID, 1)
	if err != nil {
		return fmt.Errorf("peek follower page: %w", err)
	}
	if len(remaining) == 0 {
		log.Printf("[Worker] FanOut DONE: post=%d followers=%d inserted=%d", ref.ID, seen, inserted)
		return nil
	}

	chunk := queue.NewFanOutChunkJob(ref.ID, ref.AuthorID, afterID)
	if _, err := h.publisher.Publish(ctx, queue.StreamTimeline, chunk); err != nil {
		// Let the queue redeliver this job; the completed pages replay as
		// harmless no-ops.
		return fmt.Errorf("enqueue fanout chunk: %w", err)
	}

	log.Printf("[Worker] FanOut CHUNKED: post=%d followers=%d inserted=%d next_after=%d chunk=%s",
		ref.ID, seen, inserted, afterID, chunk.JobID)
	return nil
}

// handleBackfill copies the followed account's most recent posts into the
// new follower's timeline, bounded by K so a huge historical post volume
// never causes unbounded work. If the relationship was destroyed before
// the job ran, it no-ops: that choice is deterministic, and a follow
// re-created later gets a fresh backfill job.
func (h *Handler) handleBackfill(ctx context.Context, job queue.Job) error {
	log.Printf("[Worker] Backfill: follower=%d followed=%d job=%s", job.FollowerID, job.FollowedID, job.JobID)

	live, err := h.followers.Exists(ctx, job.FollowerID, job.FollowedID)
	if err != nil {
		return fmt.Errorf("check follow exists: %w", err)
	}
	if !live {
		log.Printf("[Worker] Backfill: follow %d->%d no longer exists, skipping", job.FollowerID, job.FollowedID)
		return nil
	}

	refs, err := h.posts.GetRecentRefsByAuthor(ctx, job.FollowedID, h.cfg.BackfillLimit)
	if err != nil {
		return fmt.Errorf("get recent posts: %w", err)
	}
	if len(refs) == 0 {
		log.Printf("[Worker] Backfill: followed=%d has no posts", job.FollowedID)
		return nil
	}

	entries := make([]model.FeedEntry, len(refs))
	for i, ref := range refs {
		entries[i] = model.FeedEntry{
			OwnerID:   job.FollowerID,
			PostID:    ref.ID,
			AuthorID:  ref.AuthorID,
			CreatedAt: ref.CreatedAt,
		}
	}

	inserted, err := h.entries.InsertIgnore(ctx, entries)
	if err != nil {
		return fmt.Errorf("insert backfill entries: %w", err)
	}

	log.Printf("[Worker] Backfill DONE: follower=%d followed=%d copied=%d inserted=%d",
		job.FollowerID, job.FollowedID, len(entries), inserted)
	return nil
}

// handleRecount rewrites one account's counters from the source tables and
// point-invalidates its cached summary.
func (h *Handler) handleRecount(ctx context.Context, job queue.Job) error {
	log.Printf("[Worker] Recount: account=%d job=%s", job.AccountID, job.JobID)

	totals, err := h.repairer.RecountTotals(ctx, job.AccountID)
	if errors.Is(err, model.ErrAccountNotFound) {
		log.Printf("[Worker] Recount: account=%d gone, nothing to do", job.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recount totals: %w", err)
	}

	if h.accountCache != nil {
		if err := h.accountCache.Invalidate(ctx, job.AccountID); err != nil {
			log.Printf("[Worker] Recount: cache invalidate failed account=%d err=%v", job.AccountID, err)
		}
	}

	log.Printf("[Worker] Recount DONE: account=%d followers=%d following=%d posts=%d",
		totals.AccountID, totals.FollowersCount, totals.FollowingCount, totals.PostsCount)
	return nil
}
