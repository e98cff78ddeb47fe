package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"homefeed/internal/model"
)

type followRepository struct {
	db *sqlx.DB
}

func NewFollowRepository(db *sqlx.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Create(ctx context.Context, tx *sqlx.Tx, followerID, followedID int64) (bool, error) {
	query := `
		INSERT INTO follows (follower_id, followed_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, followed_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("failed to create follow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *followRepository) Delete(ctx context.Context, tx *sqlx.Tx, followerID, followedID int64) error {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`
	result, err := tx.ExecContext(ctx, query, followerID, followedID)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFollowing
	}

	return nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("failed to check follow existence: %w", err)
	}
	return exists, nil
}

// GetFollowerIDsPage returns one keyset page of follower ids, ordered by
// follower_id ascending and strictly after afterID. Fan-out walks these
// pages at job-execution time; followers gained between enqueue and
// execution are included, which is correct and desired.
func (r *followRepository) GetFollowerIDsPage(ctx context.Context, followedID, afterID int64, limit int) ([]int64, error) {
	query := `
		SELECT follower_id
		FROM follows
		WHERE followed_id = $1 AND follower_id > $2
		ORDER BY follower_id ASC
		LIMIT $3
	`
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, followedID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get follower ids page: %w", err)
	}
	return ids, nil
}

func (r *followRepository) GetFollowedIDs(ctx context.Context, followerID int64) ([]int64, error) {
	query := `SELECT followed_id FROM follows WHERE follower_id = $1`
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, followerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get followed ids: %w", err)
	}
	return ids, nil
}

// DeleteAllForAccount removes every relationship involving the account and
// decrements the counter cache of each surviving counterpart, all inside
// the caller's transaction. The dying account's own counters are left
// alone; the row is about to be deleted.
func (r *followRepository) DeleteAllForAccount(ctx context.Context, tx *sqlx.Tx, accountID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts SET followers_count = followers_count - d.cnt, updated_at = NOW()
		FROM (SELECT followed_id, COUNT(*) AS cnt FROM follows WHERE follower_id = $1 GROUP BY followed_id) d
		WHERE accounts.id = d.followed_id
	`, accountID)
	if err != nil {
		return fmt.Errorf("decrement follower counts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET following_count = following_count - d.cnt, updated_at = NOW()
		FROM (SELECT follower_id, COUNT(*) AS cnt FROM follows WHERE followed_id = $1 GROUP BY follower_id) d
		WHERE accounts.id = d.follower_id
	`, accountID)
	if err != nil {
		return fmt.Errorf("decrement following counts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = $1 OR followed_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete follows: %w", err)
	}

	return nil
}
