package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"homefeed/internal/model"
)

type postRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts a new post in the caller's transaction. The posts_count
// increment happens in the same transaction via AccountRepository.
func (r *postRepository) Create(ctx context.Context, tx *sqlx.Tx, authorID int64, content string, parentID *int64) (*model.Post, error) {
	query := `
		INSERT INTO posts (author_id, content, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, author_id, content, parent_id, created_at
	`
	var post model.Post
	err := tx.GetContext(ctx, &post, query, authorID, content, parentID)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	query := `SELECT id, author_id, content, parent_id, created_at FROM posts WHERE id = $1`
	var post model.Post
	err := r.db.GetContext(ctx, &post, query, postID)
	if err == sql.ErrNoRows {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}

// GetByIDs retrieves multiple posts and re-orders them to match the input
// order. Ids whose post no longer exists are absent from the result; the
// timeline reader skips those defensively.
func (r *postRepository) GetByIDs(ctx context.Context, postIDs []int64) ([]model.Post, error) {
	if len(postIDs) == 0 {
		return []model.Post{}, nil
	}

	query := `SELECT id, author_id, content, parent_id, created_at FROM posts WHERE id = ANY($1)`
	var posts []model.Post
	err := r.db.SelectContext(ctx, &posts, query, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("get posts by ids: %w", err)
	}

	postsMap := make(map[int64]model.Post, len(posts))
	for _, p := range posts {
		postsMap[p.ID] = p
	}
	ordered := make([]model.Post, 0, len(postIDs))
	for _, id := range postIDs {
		if p, ok := postsMap[id]; ok {
			ordered = append(ordered, p)
		}
	}

	return ordered, nil
}

// Delete removes a post after verifying ownership. Runs in the caller's
// transaction so the feed-entry cascade commits or rolls back with it.
func (r *postRepository) Delete(ctx context.Context, tx *sqlx.Tx, postID, authorID int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND author_id = $2`, postID, authorID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID)
		if exists {
			return model.ErrNotPostOwner
		}
		return model.ErrPostNotFound
	}
	return nil
}

func (r *postRepository) GetRef(ctx context.Context, postID int64) (*model.PostRef, error) {
	query := `SELECT id, author_id, created_at FROM posts WHERE id = $1 AND author_id IS NOT NULL`
	var ref model.PostRef
	err := r.db.GetContext(ctx, &ref, query, postID)
	if err == sql.ErrNoRows {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post ref: %w", err)
	}
	return &ref, nil
}

func (r *postRepository) GetRecentRefsByAuthor(ctx context.Context, authorID int64, limit int) ([]model.PostRef, error) {
	query := `
		SELECT id, author_id, created_at
		FROM posts
		WHERE author_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	var refs []model.PostRef
	err := r.db.SelectContext(ctx, &refs, query, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent posts: %w", err)
	}
	return refs, nil
}

// GetHomeTimeline computes a timeline page by live join: posts authored by
// any of authorIDs, same ordering and strict cursor predicate as the
// materialized path. Used only for owners with no feed entries yet.
func (r *postRepository) GetHomeTimeline(ctx context.Context, authorIDs []int64, cursor *model.TimelineCursor, limit int) ([]model.Post, error) {
	if len(authorIDs) == 0 {
		return []model.Post{}, nil
	}

	var query string
	var args []interface{}

	if cursor == nil {
		query = `
			SELECT id, author_id, content, parent_id, created_at
			FROM posts
			WHERE author_id = ANY($1)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []interface{}{pq.Array(authorIDs), limit}
	} else {
		query = `
			SELECT id, author_id, content, parent_id, created_at
			FROM posts
			WHERE author_id = ANY($1)
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		args = []interface{}{pq.Array(authorIDs), cursor.CreatedAt, cursor.PostID, limit}
	}

	var posts []model.Post
	err := r.db.SelectContext(ctx, &posts, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get home timeline: %w", err)
	}
	return posts, nil
}

// NullAuthor detaches all of a deleted account's posts. The posts remain;
// only the attribution is cleared.
func (r *postRepository) NullAuthor(ctx context.Context, tx *sqlx.Tx, authorID int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `UPDATE posts SET author_id = NULL WHERE author_id = $1`, authorID)
	if err != nil {
		return 0, fmt.Errorf("null post authors: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}
