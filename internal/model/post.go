package model

import (
	"errors"
	"time"
)

// Post is an authored entry. AuthorID is nullable: it is set to NULL (not
// cascaded) when the authoring account is deleted, so historical posts stay
// visible attributed to a deleted account. ParentID links replies.
type Post struct {
	ID        int64     `db:"id" json:"id"`
	AuthorID  *int64    `db:"author_id" json:"author_id"`
	Content   string    `db:"content" json:"content"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PostRef is a lightweight (id, author, created_at) projection used when
// constructing feed entries without loading post content.
type PostRef struct {
	ID        int64     `db:"id"`
	AuthorID  int64     `db:"author_id"`
	CreatedAt time.Time `db:"created_at"`
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
}

const (
	MaxPostContentLength = 2200
)

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrNotPostOwner   = errors.New("not the owner of this post")
	ErrEmptyContent   = errors.New("post content is required")
	ErrContentTooLong = errors.New("post content too long")
)
