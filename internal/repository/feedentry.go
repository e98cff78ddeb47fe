package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"homefeed/internal/model"
)

type feedEntryRepository struct {
	db *sqlx.DB
}

func NewFeedEntryRepository(db *sqlx.DB) FeedEntryRepository {
	return &feedEntryRepository{db: db}
}

// InsertIgnore bulk-inserts entries with conflict-ignore semantics. A
// duplicate (owner_id, post_id) is silently skipped, never an error, which
// makes every caller (fan-out, backfill, retries of either) safely
// re-executable with identical end state.
func (r *feedEntryRepository) InsertIgnore(ctx context.Context, entries []model.FeedEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO feed_entries (owner_id, post_id, author_id, created_at)
		VALUES (:owner_id, :post_id, :author_id, :created_at)
		ON CONFLICT (owner_id, post_id) DO NOTHING
	`
	result, err := r.db.NamedExecContext(ctx, query, entries)
	if err != nil {
		return 0, fmt.Errorf("insert feed entries: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return inserted, nil
}

// DeleteByOwnerAuthor is the unfollow cleanup: every entry this owner holds
// for this author goes away. Runs in the caller's transaction so the
// removal is observable as soon as the unfollow commits.
func (r *feedEntryRepository) DeleteByOwnerAuthor(ctx context.Context, tx *sqlx.Tx, ownerID, authorID int64) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`DELETE FROM feed_entries WHERE owner_id = $1 AND author_id = $2`, ownerID, authorID)
	if err != nil {
		return 0, fmt.Errorf("delete entries by owner/author: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteByPost is the post-deletion cascade. Transactionally linked to the
// post delete so no reader can load a dangling reference past the commit.
func (r *feedEntryRepository) DeleteByPost(ctx context.Context, tx *sqlx.Tx, postID int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `DELETE FROM feed_entries WHERE post_id = $1`, postID)
	if err != nil {
		return 0, fmt.Errorf("delete entries by post: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteByOwner purges a deleted account's own timeline. Entries owned by
// other accounts that reference the deleted account's posts are kept.
func (r *feedEntryRepository) DeleteByOwner(ctx context.Context, tx *sqlx.Tx, ownerID int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `DELETE FROM feed_entries WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete entries by owner: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

func (r *feedEntryRepository) HasEntries(ctx context.Context, ownerID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM feed_entries WHERE owner_id = $1)`, ownerID)
	if err != nil {
		return false, fmt.Errorf("check entries exist: %w", err)
	}
	return exists, nil
}

// GetPage returns one timeline page ordered by (created_at, post_id)
// descending. The cursor applies as a strict row-comparison predicate:
// the page after a cursor can never repeat or skip an entry, even when new
// posts land between fetches.
func (r *feedEntryRepository) GetPage(ctx context.Context, ownerID int64, cursor *model.TimelineCursor, limit int) ([]model.FeedEntry, error) {
	var query string
	var args []interface{}

	if cursor == nil {
		query = `
			SELECT owner_id, post_id, author_id, created_at
			FROM feed_entries
			WHERE owner_id = $1
			ORDER BY created_at DESC, post_id DESC
			LIMIT $2
		`
		args = []interface{}{ownerID, limit}
	} else {
		query = `
			SELECT owner_id, post_id, author_id, created_at
			FROM feed_entries
			WHERE owner_id = $1
			  AND (created_at, post_id) < ($2, $3)
			ORDER BY created_at DESC, post_id DESC
			LIMIT $4
		`
		args = []interface{}{ownerID, cursor.CreatedAt, cursor.PostID, limit}
	}

	var entries []model.FeedEntry
	err := r.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get feed page: %w", err)
	}
	return entries, nil
}

func (r *feedEntryRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	result, err := r.db.ExecContext(ctx, `DELETE FROM feed_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("trim feed entries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}
