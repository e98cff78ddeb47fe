package model

import (
	"errors"
	"time"
)

// FeedEntry is one denormalized timeline row: "this post appears in this
// owner's timeline". AuthorID and CreatedAt are copied from the post at
// insertion time so cleanup and ordering never join back to posts.
//
// Invariants:
//   - unique on (OwnerID, PostID); duplicate inserts are silently skipped
//   - AuthorID equals the post's author at insertion time; the post
//     deletion cascade keeps it consistent by deleting, never mutating
//   - a row either corresponds to a live follow of AuthorID by OwnerID, or
//     is pending cleanup after an unfollow
type FeedEntry struct {
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	PostID    int64     `db:"post_id" json:"post_id"`
	AuthorID  int64     `db:"author_id" json:"author_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TimelinePost is a hydrated post for timeline display. Author is nil when
// the authoring account has been deleted.
type TimelinePost struct {
	Post
	Author *AccountSummary `json:"author"`
}

// TimelineCursor is the decoded pagination position: pages advance with a
// strict (created_at, post_id) < (CreatedAt, PostID) predicate, never an
// offset, so concurrent inserts cannot skip or duplicate entries.
type TimelineCursor struct {
	CreatedAt time.Time
	PostID    int64
}

// TimelinePage is one page of a timeline plus the cursor for the next one.
type TimelinePage struct {
	Posts      []TimelinePost `json:"posts"`
	NextCursor *string        `json:"next_cursor,omitempty"`
	HasNext    bool           `json:"has_next"`
}

// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")
