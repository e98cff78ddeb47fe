package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homefeed/internal/model"
	"homefeed/internal/queue"
)

// mockFollowerSource serves follower ids from a fixed, sorted slice using
// the same keyset semantics as the real repository.
type mockFollowerSource struct {
	followers map[int64][]int64 // followedID -> sorted follower ids
	live      map[[2]int64]bool // (follower, followed) -> exists
	pageCalls int
	err       error
}

func (m *mockFollowerSource) GetFollowerIDsPage(_ context.Context, followedID, afterID int64, limit int) ([]int64, error) {
	m.pageCalls++
	if m.err != nil {
		return nil, m.err
	}
	var out []int64
	for _, id := range m.followers[followedID] {
		if id > afterID {
			out = append(out, id)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockFollowerSource) Exists(_ context.Context, followerID, followedID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.live[[2]int64{followerID, followedID}], nil
}

type mockPostSource struct {
	refs   map[int64]*model.PostRef // postID -> ref
	recent map[int64][]model.PostRef
}

func (m *mockPostSource) GetRef(_ context.Context, postID int64) (*model.PostRef, error) {
	ref, ok := m.refs[postID]
	if !ok {
		return nil, model.ErrPostNotFound
	}
	return ref, nil
}

func (m *mockPostSource) GetRecentRefsByAuthor(_ context.Context, authorID int64, limit int) ([]model.PostRef, error) {
	refs := m.recent[authorID]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// mockEntrySink deduplicates on (owner, post) the way the conflict-ignore
// insert does, and records every entry ever offered. transientFailures
// makes the next N inserts fail, simulating a store outage that recovers.
type mockEntrySink struct {
	mu                sync.Mutex
	stored            map[[2]int64]model.FeedEntry
	offered           int
	err               error
	transientFailures int
}

func newMockEntrySink() *mockEntrySink {
	return &mockEntrySink{stored: make(map[[2]int64]model.FeedEntry)}
}

func (m *mockEntrySink) InsertIgnore(_ context.Context, entries []model.FeedEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.transientFailures > 0 {
		m.transientFailures--
		return 0, errors.New("store unavailable")
	}
	var inserted int64
	m.offered += len(entries)
	for _, e := range entries {
		key := [2]int64{e.OwnerID, e.PostID}
		if _, dup := m.stored[key]; dup {
			continue
		}
		m.stored[key] = e
		inserted++
	}
	return inserted, nil
}

func (m *mockEntrySink) owners() map[int64]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]bool)
	for key := range m.stored {
		out[key[0]] = true
	}
	return out
}

func (m *mockEntrySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

type mockRepairer struct {
	totals map[int64]*model.CounterTotals
	calls  []int64
}

func (m *mockRepairer) RecountTotals(_ context.Context, id int64) (*model.CounterTotals, error) {
	m.calls = append(m.calls, id)
	t, ok := m.totals[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return t, nil
}

type mockPublisher struct {
	published []queue.Job
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, _ string, job queue.Job) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.published = append(m.published, job)
	return "1-0", nil
}

func newTestHandler(followers *mockFollowerSource, posts *mockPostSource, sink *mockEntrySink, pub *mockPublisher, cfg Config) *Handler {
	return NewHandler(followers, posts, sink, &mockRepairer{}, pub, cfg)
}

func TestFanOutInsertsExactlyFollowerSet(t *testing.T) {
	created := time.Now().Truncate(time.Microsecond)
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2, 3}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{100: {ID: 100, AuthorID: 10, CreatedAt: created}}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	if err := h.HandleJob(context.Background(), queue.NewFanOutJob(100, 10)); err != nil {
		t.Fatalf("HandleJob failed: %v", err)
	}

	want := map[int64]bool{1: true, 2: true, 3: true}
	got := sink.owners()
	if len(got) != len(want) {
		t.Fatalf("expected entries for exactly %v, got %v", want, got)
	}
	for id := range want {
		if !got[id] {
			t.Errorf("missing entry for follower %d", id)
		}
	}
	if got[10] {
		t.Error("author must not receive an entry for their own post")
	}

	e := sink.stored[[2]int64{1, 100}]
	if e.AuthorID != 10 || !e.CreatedAt.Equal(created) {
		t.Errorf("entry fields wrong: %+v", e)
	}
}

func TestFanOutRerunIsIdempotent(t *testing.T) {
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2, 3}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()}}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	job := queue.NewFanOutJob(100, 10)
	for i := 0; i < 2; i++ {
		if err := h.HandleJob(context.Background(), job); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if len(sink.stored) != 3 {
		t.Errorf("expected 3 unique entries after rerun, got %d", len(sink.stored))
	}
	if sink.offered != 6 {
		t.Errorf("expected 6 offered inserts across two runs, got %d", sink.offered)
	}
}

func TestFanOutChunksWhenPageBudgetExhausted(t *testing.T) {
	ids := make([]int64, 10)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	followers := &mockFollowerSource{followers: map[int64][]int64{10: ids}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()}}}
	sink := newMockEntrySink()
	pub := &mockPublisher{}
	// 2 pages of 3 per execution: 10 followers need a continuation.
	h := newTestHandler(followers, posts, sink, pub, Config{FollowerPageSize: 3, PagesPerJob: 2})

	if err := h.HandleJob(context.Background(), queue.NewFanOutJob(100, 10)); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}

	if len(sink.stored) != 6 {
		t.Fatalf("expected 6 entries after first execution, got %d", len(sink.stored))
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 continuation chunk, got %d", len(pub.published))
	}
	chunk := pub.published[0]
	if chunk.Type != queue.JobFanOut || chunk.AfterFollowerID != 6 {
		t.Fatalf("unexpected chunk job: %+v", chunk)
	}

	// Running the chunk finishes the set.
	if err := h.HandleJob(context.Background(), chunk); err != nil {
		t.Fatalf("chunk execution failed: %v", err)
	}
	if len(sink.stored) != 10 {
		t.Errorf("expected all 10 entries after chunk, got %d", len(sink.stored))
	}
	if len(pub.published) != 1 {
		t.Errorf("final chunk must not enqueue another continuation, got %d", len(pub.published))
	}
}

func TestFanOutExactPageMultipleSkipsChunk(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5, 6}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()}}}

	// Set size is an exact multiple of the page size. Whether the budget
	// ends exactly at the end of the set or the next page comes back
	// empty, no continuation chunk may be enqueued.
	cases := []struct {
		name        string
		pagesPerJob int
	}{
		{"budget ends at set boundary", 2},
		{"empty page inside budget", 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			followers := &mockFollowerSource{followers: map[int64][]int64{10: ids}}
			sink := newMockEntrySink()
			pub := &mockPublisher{}
			h := newTestHandler(followers, posts, sink, pub, Config{FollowerPageSize: 3, PagesPerJob: tc.pagesPerJob})

			if err := h.HandleJob(context.Background(), queue.NewFanOutJob(100, 10)); err != nil {
				t.Fatalf("HandleJob failed: %v", err)
			}
			if sink.count() != 6 {
				t.Errorf("expected 6 entries, got %d", sink.count())
			}
			if len(pub.published) != 0 {
				t.Errorf("exhausted follower set must not enqueue a chunk, got %d", len(pub.published))
			}
		})
	}
}

func TestFanOutNoOpWhenPostGone(t *testing.T) {
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	if err := h.HandleJob(context.Background(), queue.NewFanOutJob(999, 10)); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
	if len(sink.stored) != 0 {
		t.Errorf("no entries expected for a deleted post, got %d", len(sink.stored))
	}
}

func TestFanOutReturnsErrorWhenChunkPublishFails(t *testing.T) {
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2, 3, 4}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()}}}
	sink := newMockEntrySink()
	pub := &mockPublisher{err: errors.New("stream down")}
	h := newTestHandler(followers, posts, sink, pub, Config{FollowerPageSize: 2, PagesPerJob: 1})

	err := h.HandleJob(context.Background(), queue.NewFanOutJob(100, 10))
	if err == nil {
		t.Fatal("expected an error so the queue redelivers the job")
	}
}

func TestBackfillBoundedByLimit(t *testing.T) {
	refs := make([]model.PostRef, 8)
	for i := range refs {
		refs[i] = model.PostRef{
			ID:        int64(200 - i),
			AuthorID:  10,
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		}
	}
	followers := &mockFollowerSource{live: map[[2]int64]bool{{5, 10}: true}}
	posts := &mockPostSource{recent: map[int64][]model.PostRef{10: refs}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{BackfillLimit: 5})

	if err := h.HandleJob(context.Background(), queue.NewBackfillJob(5, 10)); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if len(sink.stored) != 5 {
		t.Errorf("expected backfill capped at 5 entries, got %d", len(sink.stored))
	}
	for key, e := range sink.stored {
		if key[0] != 5 || e.AuthorID != 10 {
			t.Errorf("unexpected entry %v -> %+v", key, e)
		}
	}
}

func TestBackfillSkipsWhenRelationshipGone(t *testing.T) {
	followers := &mockFollowerSource{live: map[[2]int64]bool{}}
	posts := &mockPostSource{recent: map[int64][]model.PostRef{10: {{ID: 1, AuthorID: 10, CreatedAt: time.Now()}}}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	if err := h.HandleJob(context.Background(), queue.NewBackfillJob(5, 10)); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
	if len(sink.stored) != 0 {
		t.Errorf("unfollowed-before-run backfill must write nothing, got %d entries", len(sink.stored))
	}
}

func TestRecountRepairsAndSurvivesMissingAccount(t *testing.T) {
	repairer := &mockRepairer{totals: map[int64]*model.CounterTotals{
		7: {AccountID: 7, FollowersCount: 3, FollowingCount: 1, PostsCount: 12},
	}}
	h := NewHandler(&mockFollowerSource{}, &mockPostSource{}, newMockEntrySink(), repairer, &mockPublisher{}, Config{})

	if err := h.HandleJob(context.Background(), queue.NewCountersRecountJob(7)); err != nil {
		t.Fatalf("recount failed: %v", err)
	}
	if len(repairer.calls) != 1 || repairer.calls[0] != 7 {
		t.Errorf("expected one recount for account 7, got %v", repairer.calls)
	}

	// Deleted account is a clean no-op, not a poison message.
	if err := h.HandleJob(context.Background(), queue.NewCountersRecountJob(999)); err != nil {
		t.Fatalf("recount of deleted account should no-op, got: %v", err)
	}
}

func TestUnknownJobTypeFails(t *testing.T) {
	h := newTestHandler(&mockFollowerSource{}, &mockPostSource{}, newMockEntrySink(), &mockPublisher{}, Config{})

	err := h.HandleJob(context.Background(), queue.Job{Type: "reticulate_splines"})
	if err == nil {
		t.Fatal("expected an error for an unknown job type")
	}
}
