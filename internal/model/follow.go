package model

import (
	"errors"
	"time"
)

// Follow is the follower -> followed relationship. Rows are created and
// destroyed exclusively through FollowService; there is no other mutation
// path.
type Follow struct {
	FollowerID int64     `db:"follower_id" json:"follower_id"`
	FollowedID int64     `db:"followed_id" json:"followed_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

var (
	ErrAlreadyFollowing = errors.New("already following this account")
	ErrNotFollowing     = errors.New("not following this account")
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
)
