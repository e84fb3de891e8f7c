package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/embedded"
)

const tableComments = "comments"

type CommentRepository struct {
	db *sql.DB
}

var _ embedded.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const (
	commentFieldID              = "id"
	commentFieldContentID       = "content_id"
	commentFieldContentType     = "content_type"
	commentFieldParentCommentID = "parent_comment_id"
	commentFieldAuthorID        = "author_id"
	commentFieldContent         = "content"
	commentFieldIsEdited        = "is_edited"
	commentFieldCreatedAt       = "created_at"
	commentFieldUpdatedAt       = "updated_at"
)

func commentColumns() []string {
	return []string{
		commentFieldID,
		commentFieldContentID,
		commentFieldContentType,
		commentFieldParentCommentID,
		commentFieldAuthorID,
		commentFieldContent,
		commentFieldIsEdited,
		commentFieldCreatedAt,
		commentFieldUpdatedAt,
	}
}

// selectComments selects stored columns of c plus the derived counters.
func selectComments() sq.SelectBuilder {
	columns := make([]string, 0, len(commentColumns())+3)

	for _, column := range commentColumns() {
		columns = append(columns, "c."+column)
	}

	columns = append(
		columns,
		"(SELECT COUNT(*) FROM comments AS r WHERE r.parent_comment_id = c.id) AS reply_count",
		"(SELECT COUNT(*) FROM comment_reactions AS cr WHERE cr.comment_id = c.id AND cr.type = 'like') AS like_count",
		"(SELECT COUNT(*) FROM comment_reactions AS cr WHERE cr.comment_id = c.id AND cr.type = 'dislike') AS dislike_count",
	)

	return sq.Select(columns...).From(tableComments + " AS c")
}

func scanComment(row sq.RowScanner) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := row.Scan(
		&comment.ID,
		&comment.ContentID,
		&comment.ContentType,
		&comment.ParentCommentID,
		&comment.AuthorID,
		&comment.Content,
		&comment.IsEdited,
		&comment.CreatedAt,
		&comment.UpdatedAt,
		&comment.ReplyCount,
		&comment.LikeCount,
		&comment.DislikeCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &comment, nil
}

func (repo *CommentRepository) Insert(ctx context.Context, comment *discuss.Comment) error {
	q := sq.Insert(tableComments).
		Columns(commentColumns()...).
		Values(
			comment.ID,
			comment.ContentID,
			comment.ContentType,
			comment.ParentCommentID,
			comment.AuthorID,
			comment.Content,
			comment.IsEdited,
			comment.CreatedAt,
			comment.UpdatedAt,
		)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *CommentRepository) Find(ctx context.Context, id string) (*discuss.Comment, error) {
	q := selectComments().Where(sq.Eq{"c." + commentFieldID: id})

	q = q.RunWith(repo.db)

	comment, err := scanComment(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &discuss.CommentNotFoundError{ID: id}
		}

		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	return comment, nil
}

func (repo *CommentRepository) UpdateContent(ctx context.Context, id string, content string, updatedAt time.Time) error {
	q := sq.Update(tableComments).
		Set(commentFieldContent, content).
		Set(commentFieldIsEdited, true).
		Set(commentFieldUpdatedAt, updatedAt).
		Where(sq.Eq{commentFieldID: id}).
		RunWith(repo.db)

	result, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return &discuss.CommentNotFoundError{ID: id}
	}

	return nil
}

const selectCommentTree = `
WITH RECURSIVE tree(id) AS (
    SELECT id FROM comments WHERE id = ?
    UNION
    SELECT c.id FROM comments AS c JOIN tree AS t ON c.parent_comment_id = t.id
)
SELECT id FROM tree`

// DeleteTree deletes the comment, every reply below it and their reactions
// in one transaction. It returns the number of deleted comments.
func (repo *CommentRepository) DeleteTree(ctx context.Context, id string) (int, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		err := tx.Rollback()
		if err != nil {
			slog.ErrorContext(ctx, "failed to rollback transaction", "error", err)
		}
	}()

	ids, err := collectIDs(ctx, tx, selectCommentTree, id)
	if err != nil {
		return 0, fmt.Errorf("failed to collect comment tree: %w", err)
	}

	if len(ids) == 0 {
		return 0, &discuss.CommentNotFoundError{ID: id}
	}

	_, err = sq.Delete(tableCommentReactions).
		Where(sq.Eq{userReactionFieldCommentID: ids}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reactions of comment tree: %w", err)
	}

	_, err = sq.Delete(tableComments).
		Where(sq.Eq{commentFieldID: ids}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete comment tree: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed = true

	return len(ids), nil
}

func collectIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return ids, nil
}

func (repo *CommentRepository) List(
	ctx context.Context,
	params *embedded.ListCommentsParams,
) ([]*discuss.Comment, error) {
	query := selectComments().
		Where(sq.Eq{
			"c." + commentFieldContentID:   params.Scope.ContentID,
			"c." + commentFieldContentType: params.Scope.ContentType,
		}).
		OrderBy("c."+commentFieldCreatedAt+" ASC", "c."+commentFieldID+" ASC")

	if params.Limit > 0 {
		query = query.Limit(uint64(params.Limit))
	}

	if params.Offset > 0 {
		query = query.Offset(uint64(params.Offset))
	}

	query = query.RunWith(repo.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	comments := make([]*discuss.Comment, 0)

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment failed: %w", err)
		}

		comments = append(comments, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return comments, nil
}

func (repo *CommentRepository) Count(ctx context.Context, scope discuss.Scope) (int, error) {
	q := sq.Select("COUNT(*)").
		From(tableComments).
		Where(sq.Eq{
			commentFieldContentID:   scope.ContentID,
			commentFieldContentType: scope.ContentType,
		}).
		RunWith(repo.db)

	var count int

	err := q.QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}

	return count, nil
}

func (repo *CommentRepository) Stats(ctx context.Context, scope discuss.Scope) (*discuss.CommentStats, error) {
	q := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN parent_comment_id IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN parent_comment_id IS NOT NULL THEN 1 ELSE 0 END), 0)",
		"COUNT(DISTINCT author_id)",
	).
		From(tableComments).
		Where(sq.Eq{
			commentFieldContentID:   scope.ContentID,
			commentFieldContentType: scope.ContentType,
		}).
		RunWith(repo.db)

	var stats discuss.CommentStats

	err := q.QueryRowContext(ctx).Scan(&stats.Total, &stats.TopLevel, &stats.Replies, &stats.Participants)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment stats: %w", err)
	}

	return &stats, nil
}
