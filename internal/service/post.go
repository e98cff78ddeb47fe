package service

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"homefeed/internal/model"
	"homefeed/internal/queue"
	"homefeed/internal/repository"
)

type PostService struct {
	postRepo    repository.PostRepository
	accountRepo repository.AccountRepository
	feedRepo    repository.FeedEntryRepository
	publisher   queue.Publisher
	db          *sqlx.DB
}

func NewPostService(
	postRepo repository.PostRepository,
	accountRepo repository.AccountRepository,
	feedRepo repository.FeedEntryRepository,
	publisher queue.Publisher,
	db *sqlx.DB,
) *PostService {
	return &PostService{
		postRepo:    postRepo,
		accountRepo: accountRepo,
		feedRepo:    feedRepo,
		publisher:   publisher,
		db:          db,
	}
}

// Create commits a new post and enqueues its fan-out. The insert and the
// posts_count increment share one transaction; the fan-out job is
// published only after commit so the worker always sees a durable post.
func (s *PostService) Create(ctx context.Context, authorID int64, req model.CreatePostRequest) (*model.Post, error) {
	if req.Content == "" {
		return nil, model.ErrEmptyContent
	}
	if len(req.Content) > model.MaxPostContentLength {
		return nil, model.ErrContentTooLong
	}
	if req.ParentID != nil {
		if _, err := s.postRepo.GetByID(ctx, *req.ParentID); err != nil {
			return nil, err
		}
	}
	if _, err := s.accountRepo.GetByID(ctx, authorID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	post, err := s.postRepo.Create(ctx, tx, authorID, req.Content, req.ParentID)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.AdjustPostsCount(ctx, tx, authorID, 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Enqueue fan-out after commit. A lost publish leaves followers'
	// timelines momentarily behind; the post itself is durable.
	job := queue.NewFanOutJob(post.ID, authorID)
	msgID, err := s.publisher.Publish(ctx, queue.StreamTimeline, job)
	if err != nil {
		log.Printf("[PostService] Failed to publish fan-out: post=%d err=%v", post.ID, err)
	} else {
		log.Printf("[PostService] Published fan-out: post=%d job=%s msgID=%s", post.ID, job.JobID, msgID)
	}

	return post, nil
}

// GetByID retrieves a single post.
func (s *PostService) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	return s.postRepo.GetByID(ctx, postID)
}

// Delete removes a post and cascades its feed entries in the same
// transaction, so no reader can observe a feed entry whose post is gone
// past the commit point.
func (s *PostService) Delete(ctx context.Context, postID, authorID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := s.feedRepo.DeleteByPost(ctx, tx, postID)
	if err != nil {
		return err
	}

	if err := s.postRepo.Delete(ctx, tx, postID, authorID); err != nil {
		return err
	}

	if err := s.accountRepo.AdjustPostsCount(ctx, tx, authorID, -1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("[PostService] Deleted post=%d author=%d feed_entries=%d", postID, authorID, removed)
	return nil
}
