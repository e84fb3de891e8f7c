package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/threads/reactions"
)

const tableCommentReactions = "comment_reactions"

type UserReactionRepository struct {
	db *sql.DB
}

var _ reactions.UserReactionRepository = (*UserReactionRepository)(nil)

func NewUserReactionRepository(db *sql.DB) *UserReactionRepository {
	return &UserReactionRepository{db: db}
}

const (
	userReactionFieldCommentID = "comment_id"
	userReactionFieldUserID    = "user_id"
	userReactionFieldType      = "type"
	userReactionFieldCreatedAt = "created_at"
)

func reactionColumns() []string {
	return []string{
		userReactionFieldCommentID,
		userReactionFieldUserID,
		userReactionFieldType,
		userReactionFieldCreatedAt,
	}
}

func scanUserReaction(row sq.RowScanner) (*reactions.UserReaction, error) {
	var reaction reactions.UserReaction

	err := row.Scan(
		&reaction.CommentID,
		&reaction.UserID,
		&reaction.Type,
		&reaction.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reaction row: %w", err)
	}

	return &reaction, nil
}

func (repo *UserReactionRepository) FindByUserComment(
	ctx context.Context,
	commentID string,
	userID string,
) (*reactions.UserReaction, error) {
	q := sq.Select(reactionColumns()...).
		From(tableCommentReactions).
		Where(sq.Eq{
			userReactionFieldCommentID: commentID,
			userReactionFieldUserID:    userID,
		})

	q = q.RunWith(repo.db)

	reaction, err := scanUserReaction(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reactions.UserReactionNotFoundError{
				CommentID: commentID,
				UserID:    userID,
			}
		}

		return nil, fmt.Errorf("failed to find reaction by user comment: %w", err)
	}

	return reaction, nil
}

func (repo *UserReactionRepository) Upsert(ctx context.Context, reaction *reactions.UserReaction) error {
	query := fmt.Sprintf(`
INSERT INTO %s (comment_id, user_id, type, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(comment_id, user_id)
DO UPDATE SET
    type = excluded.type,
    created_at = excluded.created_at
`, tableCommentReactions)

	_, err := repo.db.ExecContext(
		ctx,
		query,
		reaction.CommentID,
		reaction.UserID,
		string(reaction.Type),
		reaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}

	return nil
}

func (repo *UserReactionRepository) DeleteByUserComment(ctx context.Context, commentID string, userID string) error {
	q := sq.Delete(tableCommentReactions).
		Where(sq.Eq{
			userReactionFieldCommentID: commentID,
			userReactionFieldUserID:    userID,
		}).
		RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	return nil
}

// ListByUser returns the reactions of userID on commentIDs. Comments without
// a reaction are absent from the result.
func (repo *UserReactionRepository) ListByUser(
	ctx context.Context,
	userID string,
	commentIDs []string,
) (map[string]reactions.Reaction, error) {
	result := make(map[string]reactions.Reaction)

	if len(commentIDs) == 0 {
		return result, nil
	}

	q := sq.Select(userReactionFieldCommentID, userReactionFieldType).
		From(tableCommentReactions).
		Where(sq.Eq{
			userReactionFieldUserID:    userID,
			userReactionFieldCommentID: commentIDs,
		}).
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query user reactions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close reaction rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			commentID string
			reaction  reactions.Reaction
		)

		err := rows.Scan(&commentID, &reaction)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user reaction row: %w", err)
		}

		result[commentID] = reaction
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate user reaction rows: %w", err)
	}

	return result, nil
}
