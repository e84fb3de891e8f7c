package reactions

import (
	"context"
	"fmt"
	"time"
)

// UserReaction is the persisted reaction of one user on one comment. None is
// never stored; removing a reaction deletes the record.
type UserReaction struct {
	CommentID string
	UserID    string
	Type      Reaction
	CreatedAt time.Time
}

type UserReactionRepository interface {
	FindByUserComment(ctx context.Context, commentID string, userID string) (reaction *UserReaction, err error)
	Upsert(ctx context.Context, reaction *UserReaction) (err error)
	DeleteByUserComment(ctx context.Context, commentID string, userID string) (err error)
	ListByUser(ctx context.Context, userID string, commentIDs []string) (reactions map[string]Reaction, err error)
}

type UserReactionNotFoundError struct {
	CommentID string
	UserID    string
}

func (err UserReactionNotFoundError) Error() string {
	return fmt.Sprintf("reaction for user %q on comment %q not found", err.UserID, err.CommentID)
}
