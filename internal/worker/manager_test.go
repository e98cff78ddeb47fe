package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"homefeed/internal/model"
	"homefeed/internal/queue"
)

// mockConsumer models the consumer-group contract: Read hands out fresh
// messages and moves them to the pending list, ReadPending pages the
// pending list, Ack removes from it. Unacked messages therefore come back
// on the next pending pass, like a real stream.
type mockConsumer struct {
	mu      sync.Mutex
	fresh   []queue.Message
	pending []queue.Message // delivered, unacked, in id order
	acked   []string
	groups  int
}

func (m *mockConsumer) EnsureGroup(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups++
	return nil
}

func (m *mockConsumer) Read(ctx context.Context, _, _, _ string, _ int64, block time.Duration) ([]queue.Message, error) {
	m.mu.Lock()
	out := m.fresh
	m.fresh = nil
	m.pending = append(m.pending, out...)
	m.mu.Unlock()
	if out == nil {
		// Empty stream: behave like a blocking XREADGROUP timeout.
		select {
		case <-ctx.Done():
		case <-time.After(block):
		}
	}
	return out, nil
}

func (m *mockConsumer) ReadPending(_ context.Context, _, _, _ string, startID string, _ int64) ([]queue.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Message
	for _, msg := range m.pending {
		if msg.ID > startID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockConsumer) Ack(_ context.Context, _, _ string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for i, msg := range m.pending {
			if msg.ID == id {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
		m.acked = append(m.acked, id)
	}
	return nil
}

func (m *mockConsumer) Pending(context.Context, string, string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *mockConsumer) ackedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

func TestManagerRecoversPendingThenConsumes(t *testing.T) {
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{
		100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()},
		101: {ID: 101, AuthorID: 10, CreatedAt: time.Now()},
	}}
	sink := newMockEntrySink()
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	consumer := &mockConsumer{
		pending: []queue.Message{{ID: "1-0", Job: queue.NewFanOutJob(100, 10)}},
		fresh:   []queue.Message{{ID: "2-0", Job: queue.NewFanOutJob(101, 10)}},
	}

	mgr := NewManager(consumer, h, nil, ManagerConfig{WorkerCount: 1, BlockTimeout: 10 * time.Millisecond})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(consumer.ackedIDs()) < 2 {
		select {
		case <-deadline:
			mgr.Stop()
			t.Fatalf("timed out waiting for acks, got %v", consumer.ackedIDs())
		case <-time.After(5 * time.Millisecond):
		}
	}
	mgr.Stop()

	acked := consumer.ackedIDs()
	if acked[0] != "1-0" {
		t.Errorf("pending message must be processed before new ones, acks=%v", acked)
	}
	// Both posts fanned out to both followers.
	if sink.count() != 4 {
		t.Errorf("expected 4 feed entries, got %d", sink.count())
	}
}

func TestManagerRetriesTransientFailure(t *testing.T) {
	followers := &mockFollowerSource{followers: map[int64][]int64{10: {1, 2, 3}}}
	posts := &mockPostSource{refs: map[int64]*model.PostRef{
		100: {ID: 100, AuthorID: 10, CreatedAt: time.Now()},
	}}
	sink := newMockEntrySink()
	sink.transientFailures = 1 // first insert fails, then the store recovers
	h := newTestHandler(followers, posts, sink, &mockPublisher{}, Config{})

	consumer := &mockConsumer{
		fresh: []queue.Message{{ID: "1-0", Job: queue.NewFanOutJob(100, 10)}},
	}

	mgr := NewManager(consumer, h, nil, ManagerConfig{
		WorkerCount:          1,
		BlockTimeout:         5 * time.Millisecond,
		PendingRetryInterval: 10 * time.Millisecond,
	})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(consumer.ackedIDs()) < 1 {
		select {
		case <-deadline:
			mgr.Stop()
			t.Fatal("job never acked after the store recovered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	mgr.Stop()

	// The failed delivery stayed pending and was re-run to completion:
	// every follower has the entry, and only then was the message acked.
	if sink.count() != 3 {
		t.Errorf("expected all 3 followers fanned out after retry, got %d entries", sink.count())
	}
	if n, _ := consumer.Pending(context.Background(), "", ""); n != 0 {
		t.Errorf("message still pending after successful retry: %d", n)
	}
}

func TestManagerDropsUnknownJobType(t *testing.T) {
	// A job with no handler can never succeed; it must be acked and
	// dropped so it cannot wedge the pending list.
	h := newTestHandler(&mockFollowerSource{}, &mockPostSource{}, newMockEntrySink(), &mockPublisher{}, Config{})

	consumer := &mockConsumer{
		fresh: []queue.Message{{ID: "3-0", Job: queue.Job{JobID: "j", Type: "bogus"}}},
	}

	mgr := NewManager(consumer, h, nil, ManagerConfig{WorkerCount: 1, BlockTimeout: 10 * time.Millisecond})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(consumer.ackedIDs()) < 1 {
		select {
		case <-deadline:
			mgr.Stop()
			t.Fatal("unhandleable job was never acked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	mgr.Stop()

	if n, _ := consumer.Pending(context.Background(), "", ""); n != 0 {
		t.Errorf("dropped job still pending: %d", n)
	}
}

// trimmerFunc adapts a function to the EntryTrimmer interface.
type trimmerFunc func(ctx context.Context, age time.Duration) (int64, error)

func (f trimmerFunc) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return f(ctx, age)
}

func TestManagerRunsRetentionSweep(t *testing.T) {
	h := newTestHandler(&mockFollowerSource{}, &mockPostSource{}, newMockEntrySink(), &mockPublisher{}, Config{})

	var mu sync.Mutex
	sweeps := 0
	trimmer := trimmerFunc(func(_ context.Context, age time.Duration) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		if age != 30*24*time.Hour {
			t.Errorf("unexpected retention age %v", age)
		}
		sweeps++
		return 7, nil
	})

	mgr := NewManager(&mockConsumer{}, h, trimmer, ManagerConfig{
		WorkerCount:       1,
		BlockTimeout:      10 * time.Millisecond,
		RetentionAge:      30 * 24 * time.Hour,
		RetentionInterval: 20 * time.Millisecond,
	})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := sweeps
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			mgr.Stop()
			t.Fatalf("expected at least 2 sweeps, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	mgr.Stop()
}
