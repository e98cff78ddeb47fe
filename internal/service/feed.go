package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"homefeed/internal/cache"
	"homefeed/internal/model"
	"homefeed/internal/repository"
)

const (
	// TimelineDefaultLimit is the default number of posts per page.
	TimelineDefaultLimit = 10

	// TimelineMaxLimit is the maximum number of posts per page.
	TimelineMaxLimit = 50
)

// timelineSource is the explicit choice between the two read paths,
// resolved by one existence check. Never inferred from an empty result.
type timelineSource int

const (
	sourceMaterialized timelineSource = iota // owner has feed entries
	sourceCold                               // no entries yet: live join bridge
)

type FeedService struct {
	pageCache    cache.TimelineCache
	accountCache cache.AccountCache
	feedRepo     repository.FeedEntryRepository
	postRepo     repository.PostRepository
	followRepo   repository.FollowRepository
	accountRepo  repository.AccountRepository
}

func NewFeedService(
	pageCache cache.TimelineCache,
	accountCache cache.AccountCache,
	feedRepo repository.FeedEntryRepository,
	postRepo repository.PostRepository,
	followRepo repository.FollowRepository,
	accountRepo repository.AccountRepository,
) *FeedService {
	return &FeedService{
		pageCache:    pageCache,
		accountCache: accountCache,
		feedRepo:     feedRepo,
		postRepo:     postRepo,
		followRepo:   followRepo,
		accountRepo:  accountRepo,
	}
}

// GetTimeline returns one page of the owner's home timeline.
//
// Flow:
//  1. decode the cursor (strict (created_at, post_id) position)
//  2. consult the read-through page cache; any cache error is a miss
//  3. one existence check picks the source: materialized feed entries, or
//     the live-join fallback for owners with no entries yet
//  4. hydrate posts, skipping entries whose post no longer resolves
//  5. store the page back in the cache, best effort
//
// A new post may be momentarily absent from a follower's page right after
// creation; that eventual-consistency window is bounded by the fan-out SLA
// plus one cache TTL.
func (s *FeedService) GetTimeline(ctx context.Context, ownerID int64, cursor *string, limit int) (*model.TimelinePage, error) {
	startTime := time.Now()

	if limit <= 0 {
		limit = TimelineDefaultLimit
	}
	if limit > TimelineMaxLimit {
		limit = TimelineMaxLimit
	}

	var cur *model.TimelineCursor
	cursorStr := ""
	if cursor != nil && *cursor != "" {
		parsed, err := parseTimelineCursor(*cursor)
		if err != nil {
			return nil, err
		}
		cur = &parsed
		cursorStr = *cursor
	}

	if page, hit := s.cacheGet(ctx, ownerID, cursorStr, limit); hit {
		return page, nil
	}

	source, err := s.resolveSource(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var page *model.TimelinePage
	switch source {
	case sourceMaterialized:
		page, err = s.readMaterialized(ctx, ownerID, cur, limit)
	case sourceCold:
		page, err = s.readCold(ctx, ownerID, cur, limit)
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, ownerID, cursorStr, limit, page)

	log.Printf("[FeedService] GetTimeline OK: owner=%d source=%d posts=%d hasNext=%v duration=%v",
		ownerID, source, len(page.Posts), page.HasNext, time.Since(startTime))
	return page, nil
}

// resolveSource performs the single existence check that picks the path.
func (s *FeedService) resolveSource(ctx context.Context, ownerID int64) (timelineSource, error) {
	has, err := s.feedRepo.HasEntries(ctx, ownerID)
	if err != nil {
		return sourceCold, fmt.Errorf("check feed entries: %w", err)
	}
	if has {
		return sourceMaterialized, nil
	}
	return sourceCold, nil
}

// readMaterialized serves the fast path from feed entries. Pagination runs
// on the entries themselves; entries whose post cannot be resolved (cleanup
// lag after a post deletion) are skipped, never an error.
func (s *FeedService) readMaterialized(ctx context.Context, ownerID int64, cur *model.TimelineCursor, limit int) (*model.TimelinePage, error) {
	entries, err := s.feedRepo.GetPage(ctx, ownerID, cur, limit+1)
	if err != nil {
		return nil, fmt.Errorf("get feed page: %w", err)
	}

	hasNext := len(entries) > limit
	if hasNext {
		entries = entries[:limit]
	}

	if len(entries) == 0 {
		return &model.TimelinePage{Posts: []model.TimelinePost{}}, nil
	}

	postIDs := make([]int64, len(entries))
	for i, e := range entries {
		postIDs[i] = e.PostID
	}

	posts, err := s.postRepo.GetByIDs(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate posts: %w", err)
	}
	if len(posts) < len(entries) {
		log.Printf("[FeedService] owner=%d skipped %d unresolvable entries", ownerID, len(entries)-len(posts))
	}

	timelinePosts, err := s.attachAuthors(ctx, posts)
	if err != nil {
		return nil, err
	}

	// The next cursor comes from the last entry of the page, not the last
	// resolvable post: pagination must advance past skipped entries too.
	last := entries[len(entries)-1]
	return buildPage(timelinePosts, model.TimelineCursor{CreatedAt: last.CreatedAt, PostID: last.PostID}, hasNext), nil
}

// readCold computes the timeline by live join over posts authored by the
// owner and everyone they follow. Functionally equivalent ordering and
// cursor semantics to the fast path; used only until fan-out or backfill
// materializes entries for this owner.
func (s *FeedService) readCold(ctx context.Context, ownerID int64, cur *model.TimelineCursor, limit int) (*model.TimelinePage, error) {
	followedIDs, err := s.followRepo.GetFollowedIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get followed ids: %w", err)
	}
	authorIDs := append(followedIDs, ownerID)

	posts, err := s.postRepo.GetHomeTimeline(ctx, authorIDs, cur, limit+1)
	if err != nil {
		return nil, fmt.Errorf("fallback timeline: %w", err)
	}

	hasNext := len(posts) > limit
	if hasNext {
		posts = posts[:limit]
	}

	if len(posts) == 0 {
		return &model.TimelinePage{Posts: []model.TimelinePost{}}, nil
	}

	timelinePosts, err := s.attachAuthors(ctx, posts)
	if err != nil {
		return nil, err
	}

	last := posts[len(posts)-1]
	return buildPage(timelinePosts, model.TimelineCursor{CreatedAt: last.CreatedAt, PostID: last.ID}, hasNext), nil
}

// attachAuthors enriches posts with author summaries through the account
// cache. Posts whose author was deleted keep a nil Author.
func (s *FeedService) attachAuthors(ctx context.Context, posts []model.Post) ([]model.TimelinePost, error) {
	need := make(map[int64]struct{})
	for _, p := range posts {
		if p.AuthorID != nil {
			need[*p.AuthorID] = struct{}{}
		}
	}

	summaries := make(map[int64]model.AccountSummary, len(need))
	var missing []int64
	for id := range need {
		if s.accountCache != nil {
			cached, hit, err := s.accountCache.GetSummary(ctx, id)
			if err == nil && hit {
				summaries[id] = *cached
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		loaded, err := s.accountRepo.GetSummaries(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load author summaries: %w", err)
		}
		for id, sum := range loaded {
			summaries[id] = sum
			if s.accountCache != nil {
				if err := s.accountCache.SetSummary(ctx, sum); err != nil {
					log.Printf("[FeedService] summary cache set failed: account=%d err=%v", id, err)
				}
			}
		}
	}

	result := make([]model.TimelinePost, len(posts))
	for i, p := range posts {
		tp := model.TimelinePost{Post: p}
		if p.AuthorID != nil {
			if sum, ok := summaries[*p.AuthorID]; ok {
				author := sum
				tp.Author = &author
			}
		}
		result[i] = tp
	}
	return result, nil
}

func buildPage(posts []model.TimelinePost, last model.TimelineCursor, hasNext bool) *model.TimelinePage {
	page := &model.TimelinePage{Posts: posts, HasNext: hasNext}
	if hasNext {
		c := formatTimelineCursor(last)
		page.NextCursor = &c
	}
	return page
}

// cacheGet treats every cache failure as a miss: a degraded cache slows
// reads, it never fails them.
func (s *FeedService) cacheGet(ctx context.Context, ownerID int64, cursor string, limit int) (*model.TimelinePage, bool) {
	if s.pageCache == nil {
		return nil, false
	}
	page, hit, err := s.pageCache.GetPage(ctx, ownerID, cursor, limit)
	if err != nil {
		log.Printf("[FeedService] page cache get failed: owner=%d err=%v", ownerID, err)
		return nil, false
	}
	return page, hit
}

func (s *FeedService) cacheSet(ctx context.Context, ownerID int64, cursor string, limit int, page *model.TimelinePage) {
	if s.pageCache == nil {
		return
	}
	if err := s.pageCache.SetPage(ctx, ownerID, cursor, limit, page); err != nil {
		log.Printf("[FeedService] page cache set failed: owner=%d err=%v", ownerID, err)
	}
}

// parseTimelineCursor parses the "postID:unixMicros" cursor format.
// Microsecond precision keeps the strict (created_at, post_id) predicate
// exact for posts created within the same second.
func parseTimelineCursor(cursor string) (model.TimelineCursor, error) {
	parts := strings.Split(cursor, ":")
	if len(parts) != 2 {
		return model.TimelineCursor{}, fmt.Errorf("%w: expected postID:micros", model.ErrInvalidCursor)
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return model.TimelineCursor{}, fmt.Errorf("%w: bad post id", model.ErrInvalidCursor)
	}

	micros, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return model.TimelineCursor{}, fmt.Errorf("%w: bad timestamp", model.ErrInvalidCursor)
	}

	return model.TimelineCursor{CreatedAt: time.UnixMicro(micros), PostID: id}, nil
}

// formatTimelineCursor creates the "postID:unixMicros" cursor format.
func formatTimelineCursor(c model.TimelineCursor) string {
	return fmt.Sprintf("%d:%d", c.PostID, c.CreatedAt.UnixMicro())
}
