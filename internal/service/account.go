package service

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"homefeed/internal/cache"
	"homefeed/internal/model"
	"homefeed/internal/queue"
	"homefeed/internal/repository"
)

type AccountService struct {
	accountRepo  repository.AccountRepository
	postRepo     repository.PostRepository
	followRepo   repository.FollowRepository
	feedRepo     repository.FeedEntryRepository
	accountCache cache.AccountCache
	publisher    queue.Publisher
	db           *sqlx.DB
}

func NewAccountService(
	accountRepo repository.AccountRepository,
	postRepo repository.PostRepository,
	followRepo repository.FollowRepository,
	feedRepo repository.FeedEntryRepository,
	accountCache cache.AccountCache,
	publisher queue.Publisher,
	db *sqlx.DB,
) *AccountService {
	return &AccountService{
		accountRepo:  accountRepo,
		postRepo:     postRepo,
		followRepo:   followRepo,
		feedRepo:     feedRepo,
		accountCache: accountCache,
		publisher:    publisher,
		db:           db,
	}
}

// Register creates an account. Counters start at zero and are maintained
// incrementally from there.
func (s *AccountService) Register(ctx context.Context, username string, displayName *string) (*model.Account, error) {
	account := &model.Account{Username: username, DisplayName: displayName}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetByID returns the account with its counter cache values.
func (s *AccountService) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

// Delete removes an account. In one transaction:
//   - the account's posts stay, with author_id nulled so they render as
//     authored by a deleted account
//   - every follow relationship involving the account is removed, with
//     counter decrements applied to each surviving counterpart
//   - the account's own timeline rows are purged; rows other owners hold
//     for this author's posts are kept, since those posts remain valid
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	detached, err := s.postRepo.NullAuthor(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := s.followRepo.DeleteAllForAccount(ctx, tx, id); err != nil {
		return err
	}

	purged, err := s.feedRepo.DeleteByOwner(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := s.accountRepo.Delete(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Single stable identity: the summary is point-invalidated rather than
	// waiting out its TTL.
	if s.accountCache != nil {
		if err := s.accountCache.Invalidate(ctx, id); err != nil {
			log.Printf("[AccountService] summary invalidate failed: account=%d err=%v", id, err)
		}
	}

	log.Printf("[AccountService] Deleted account=%d detached_posts=%d purged_entries=%d", id, detached, purged)
	return nil
}

// RepairCounters enqueues an out-of-band recount of the account's counter
// cache from the source tables. Used when bulk or out-of-band writes may
// have bypassed the incremental path.
func (s *AccountService) RepairCounters(ctx context.Context, id int64) error {
	if _, err := s.accountRepo.GetByID(ctx, id); err != nil {
		return err
	}

	job := queue.NewCountersRecountJob(id)
	msgID, err := s.publisher.Publish(ctx, queue.StreamTimeline, job)
	if err != nil {
		return fmt.Errorf("publish recount: %w", err)
	}

	log.Printf("[AccountService] Published recount: account=%d job=%s msgID=%s", id, job.JobID, msgID)
	return nil
}
