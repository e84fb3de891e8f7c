package embedded

import (
	"context"
	"time"

	"github.com/nasermirzaei89/threads/discuss"
)

// CommentRepository persists comments. Records it returns carry the derived
// reply, like and dislike counts.
type CommentRepository interface {
	Insert(ctx context.Context, comment *discuss.Comment) (err error)
	Find(ctx context.Context, id string) (comment *discuss.Comment, err error)
	UpdateContent(ctx context.Context, id string, content string, updatedAt time.Time) (err error)
	DeleteTree(ctx context.Context, id string) (deleted int, err error)
	List(ctx context.Context, params *ListCommentsParams) (comments []*discuss.Comment, err error)
	Count(ctx context.Context, scope discuss.Scope) (count int, err error)
	Stats(ctx context.Context, scope discuss.Scope) (stats *discuss.CommentStats, err error)
}

// ListCommentsParams selects a page of a scope ordered by creation time.
type ListCommentsParams struct {
	Scope  discuss.Scope
	Offset int
	Limit  int
}
