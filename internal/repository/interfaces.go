package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"homefeed/internal/model"
)

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// GetSummaries batch-loads author summaries for timeline hydration.
	GetSummaries(ctx context.Context, ids []int64) (map[int64]model.AccountSummary, error)
	// Counter cache maintenance. Always relative deltas executed inside the
	// transaction that mutates the counted rows; never read-then-write.
	AdjustFollowersCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error
	AdjustFollowingCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error
	AdjustPostsCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error
	// RecountTotals recomputes all three counters from the source tables
	// and writes them back. Idempotent; used for drift repair after bulk or
	// out-of-band writes that bypassed the delta path.
	RecountTotals(ctx context.Context, id int64) (*model.CounterTotals, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id int64) error
}

type PostRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, authorID int64, content string, parentID *int64) (*model.Post, error)
	GetByID(ctx context.Context, postID int64) (*model.Post, error)
	// GetByIDs returns posts re-ordered to match the input ids; missing
	// (deleted) ids are simply absent.
	GetByIDs(ctx context.Context, postIDs []int64) ([]model.Post, error)
	Delete(ctx context.Context, tx *sqlx.Tx, postID, authorID int64) error
	GetRef(ctx context.Context, postID int64) (*model.PostRef, error)
	// GetRecentRefsByAuthor returns the author's most recent posts, newest
	// first. Used by the backfill worker.
	GetRecentRefsByAuthor(ctx context.Context, authorID int64, limit int) ([]model.PostRef, error)
	// GetHomeTimeline is the fallback live join: posts authored by any of
	// authorIDs under the same (created_at, id) ordering and cursor
	// predicate as the materialized path.
	GetHomeTimeline(ctx context.Context, authorIDs []int64, cursor *model.TimelineCursor, limit int) ([]model.Post, error)
	// NullAuthor detaches all posts from a deleted account.
	NullAuthor(ctx context.Context, tx *sqlx.Tx, authorID int64) (int64, error)
}

type FollowRepository interface {
	// Create inserts with conflict-ignore; returns false when the
	// relationship already existed.
	Create(ctx context.Context, tx *sqlx.Tx, followerID, followedID int64) (bool, error)
	Delete(ctx context.Context, tx *sqlx.Tx, followerID, followedID int64) error
	Exists(ctx context.Context, followerID, followedID int64) (bool, error)
	// GetFollowerIDsPage returns one keyset page of follower ids ordered by
	// follower_id ascending, strictly after afterID. Fan-out never loads
	// the whole follower set at once.
	GetFollowerIDsPage(ctx context.Context, followedID, afterID int64, limit int) ([]int64, error)
	GetFollowedIDs(ctx context.Context, followerID int64) ([]int64, error)
	// DeleteAllForAccount removes every relationship involving the account
	// and applies the matching counter decrements to the surviving side,
	// all inside the given transaction.
	DeleteAllForAccount(ctx context.Context, tx *sqlx.Tx, accountID int64) error
}

type FeedEntryRepository interface {
	// InsertIgnore bulk-inserts with ON CONFLICT (owner_id, post_id) DO
	// NOTHING and returns how many rows were actually inserted. This is the
	// sole concurrency control of the write path: concurrent fan-out and
	// backfill race harmlessly to the same end state.
	InsertIgnore(ctx context.Context, entries []model.FeedEntry) (int64, error)
	DeleteByOwnerAuthor(ctx context.Context, tx *sqlx.Tx, ownerID, authorID int64) (int64, error)
	DeleteByPost(ctx context.Context, tx *sqlx.Tx, postID int64) (int64, error)
	DeleteByOwner(ctx context.Context, tx *sqlx.Tx, ownerID int64) (int64, error)
	// HasEntries is the single existence check that resolves the timeline
	// reader's materialized-vs-cold choice.
	HasEntries(ctx context.Context, ownerID int64) (bool, error)
	GetPage(ctx context.Context, ownerID int64, cursor *model.TimelineCursor, limit int) ([]model.FeedEntry, error)
	// DeleteOlderThan trims entries past the retention age. Idempotent;
	// concurrent sweeps converge.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
