package model

import (
	"errors"
	"time"
)

// Account represents an account in the system. The three *_count columns
// are a counter cache: denormalized running totals maintained in the same
// transaction as the rows they count. CounterTotals holds the authoritative
// values recomputed from the source tables.
type Account struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	DisplayName    *string   `db:"display_name" json:"display_name"`
	FollowersCount int       `db:"followers_count" json:"followers_count"`
	FollowingCount int       `db:"following_count" json:"following_count"`
	PostsCount     int       `db:"posts_count" json:"posts_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AccountSummary is the lightweight author representation attached to
// timeline posts.
type AccountSummary struct {
	ID          int64   `db:"id" json:"id"`
	Username    string  `db:"username" json:"username"`
	DisplayName *string `db:"display_name" json:"display_name"`
}

// CounterTotals holds recomputed counter values for one account.
type CounterTotals struct {
	AccountID      int64 `db:"account_id"`
	FollowersCount int   `db:"followers_count"`
	FollowingCount int   `db:"following_count"`
	PostsCount     int   `db:"posts_count"`
}

var (
	// ErrAccountNotFound is returned when an account cannot be found.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUsernameExists is returned when the username is already taken.
	ErrUsernameExists = errors.New("username already exists")
)
