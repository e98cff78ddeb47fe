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

type FollowService struct {
	followRepo  repository.FollowRepository
	accountRepo repository.AccountRepository
	feedRepo    repository.FeedEntryRepository
	db          *sqlx.DB
	publisher   queue.Publisher
}

func NewFollowService(
	followRepo repository.FollowRepository,
	accountRepo repository.AccountRepository,
	feedRepo repository.FeedEntryRepository,
	db *sqlx.DB,
	publisher queue.Publisher,
) *FollowService {
	return &FollowService{
		followRepo:  followRepo,
		accountRepo: accountRepo,
		feedRepo:    feedRepo,
		db:          db,
		publisher:   publisher,
	}
}

// Follow creates the relationship and its counter updates in one
// transaction, then enqueues the backfill that seeds the new follower's
// timeline with the followed account's recent posts.
func (s *FollowService) Follow(ctx context.Context, followerID, followedID int64) error {
	if followerID == followedID {
		return model.ErrCannotFollowSelf
	}

	if _, err := s.accountRepo.GetByID(ctx, followedID); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := s.followRepo.Create(ctx, tx, followerID, followedID)
	if err != nil {
		return err
	}
	if !inserted {
		return model.ErrAlreadyFollowing
	}

	if err := s.accountRepo.AdjustFollowersCount(ctx, tx, followedID, 1); err != nil {
		return err
	}
	if err := s.accountRepo.AdjustFollowingCount(ctx, tx, followerID, 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Enqueue backfill after commit so the worker sees the relationship.
	job := queue.NewBackfillJob(followerID, followedID)
	msgID, err := s.publisher.Publish(ctx, queue.StreamTimeline, job)
	if err != nil {
		log.Printf("[FollowService] Failed to publish backfill: follower=%d followed=%d err=%v",
			followerID, followedID, err)
	} else {
		log.Printf("[FollowService] Published backfill: follower=%d followed=%d job=%s msgID=%s",
			followerID, followedID, job.JobID, msgID)
	}

	return nil
}

// Unfollow removes the relationship, its counter updates, and every feed
// entry the follower holds for the unfollowed author, all in one
// transaction. The cleanup is synchronous on purpose: once the unfollow
// returns, the timeline no longer serves that author's pre-unfollow posts.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followedID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.followRepo.Delete(ctx, tx, followerID, followedID); err != nil {
		return err
	}

	if err := s.accountRepo.AdjustFollowersCount(ctx, tx, followedID, -1); err != nil {
		return err
	}
	if err := s.accountRepo.AdjustFollowingCount(ctx, tx, followerID, -1); err != nil {
		return err
	}

	removed, err := s.feedRepo.DeleteByOwnerAuthor(ctx, tx, followerID, followedID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("[FollowService] Unfollowed: follower=%d followed=%d feed_entries=%d",
		followerID, followedID, removed)
	return nil
}
