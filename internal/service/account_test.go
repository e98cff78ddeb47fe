package service

import (
	"context"
	"errors"
	"testing"

	"homefeed/internal/model"
	"homefeed/internal/queue"
)

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

func TestRegisterAssignsID(t *testing.T) {
	accountRepo := &mockAccountRepo{}
	svc := NewAccountService(accountRepo, &mockPostRepo{}, &mockFollowRepo{}, &mockFeedRepo{}, nil, &mockPublisher{}, nil)

	account, err := svc.Register(context.Background(), "alice", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if account.ID == 0 {
		t.Error("expected an assigned id")
	}
	if account.FollowersCount != 0 || account.FollowingCount != 0 || account.PostsCount != 0 {
		t.Errorf("counters must start at zero: %+v", account)
	}
}

func TestRepairCountersPublishesJob(t *testing.T) {
	accountRepo := &mockAccountRepo{accounts: map[int64]*model.Account{
		7: {ID: 7, Username: "alice"},
	}}
	pub := &mockPublisher{}
	svc := NewAccountService(accountRepo, &mockPostRepo{}, &mockFollowRepo{}, &mockFeedRepo{}, nil, pub, nil)

	if err := svc.RepairCounters(context.Background(), 7); err != nil {
		t.Fatalf("RepairCounters failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published job, got %d", len(pub.published))
	}
	job := pub.published[0]
	if job.Type != queue.JobCountersRecount || job.AccountID != 7 {
		t.Errorf("wrong job published: %+v", job)
	}
}

func TestRepairCountersUnknownAccount(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewAccountService(&mockAccountRepo{}, &mockPostRepo{}, &mockFollowRepo{}, &mockFeedRepo{}, nil, pub, nil)

	err := svc.RepairCounters(context.Background(), 999)
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if len(pub.published) != 0 {
		t.Error("no job may be published for an unknown account")
	}
}
