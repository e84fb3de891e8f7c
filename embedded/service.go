package embedded

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/reactions"
)

const MaxPageSize = 100

// Service is an in-process comments backend. It implements the same contract
// as the remote API, so a CommentStore can run against a local database.
type Service struct {
	commentRepo      CommentRepository
	userReactionRepo reactions.UserReactionRepository
	validate         *validator.Validate
	maxContentLength int
}

var _ discuss.Transport = (*Service)(nil)

func NewService(
	commentRepo CommentRepository,
	userReactionRepo reactions.UserReactionRepository,
	maxContentLength int,
) *Service {
	if maxContentLength < 1 {
		maxContentLength = discuss.DefaultMaxContentLength
	}

	return &Service{
		commentRepo:      commentRepo,
		userReactionRepo: userReactionRepo,
		validate:         validator.New(),
		maxContentLength: maxContentLength,
	}
}

func (svc *Service) Create(ctx context.Context, input discuss.CreateCommentInput) (*discuss.Comment, error) {
	comment, err := svc.create(ctx, input)
	if err != nil {
		return nil, transportError(ctx, discuss.OpCreate, err)
	}

	return comment, nil
}

func (svc *Service) create(ctx context.Context, input discuss.CreateCommentInput) (*discuss.Comment, error) {
	authorID, err := subject(ctx)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)

	fields := discuss.ValidationMap{
		"contentId":   discuss.WithTag(input.ContentID, "required,max=255"),
		"contentType": discuss.WithTag(input.ContentType, "required,max=64"),
		"content":     discuss.WithTag(content, svc.contentTag()),
	}

	if input.ParentCommentID != nil {
		fields["parentCommentId"] = discuss.WithTag(*input.ParentCommentID, "required")
	}

	err = discuss.ValidateFields(svc.validate, fields)
	if err != nil {
		return nil, err
	}

	if input.ParentCommentID != nil {
		parent, err := svc.commentRepo.Find(ctx, *input.ParentCommentID)
		if err != nil {
			return nil, fmt.Errorf("failed to find parent comment: %w", err)
		}

		if parent.ContentID != input.ContentID || parent.ContentType != input.ContentType {
			validationErr := &discuss.ValidationError{}
			validationErr.Append("parentCommentId", "belongs to another content")

			return nil, validationErr
		}
	}

	now := time.Now().UTC()

	comment := &discuss.Comment{
		ID:              uuid.NewString(),
		Content:         content,
		AuthorID:        authorID,
		ContentID:       input.ContentID,
		ContentType:     input.ContentType,
		ParentCommentID: input.ParentCommentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = svc.commentRepo.Insert(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) Update(ctx context.Context, id string, input discuss.UpdateCommentInput) (*discuss.Comment, error) {
	comment, err := svc.update(ctx, id, input)
	if err != nil {
		return nil, transportError(ctx, discuss.OpUpdate, err)
	}

	return comment, nil
}

func (svc *Service) update(ctx context.Context, id string, input discuss.UpdateCommentInput) (*discuss.Comment, error) {
	content := strings.TrimSpace(input.Content)

	err := discuss.ValidateFields(svc.validate, discuss.ValidationMap{
		"content": discuss.WithTag(content, svc.contentTag()),
	})
	if err != nil {
		return nil, err
	}

	_, err = svc.findOwned(ctx, id)
	if err != nil {
		return nil, err
	}

	err = svc.commentRepo.UpdateContent(ctx, id, content, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	comment, err := svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find updated comment: %w", err)
	}

	return comment, nil
}

// Delete removes the comment together with every reply below it.
func (svc *Service) Delete(ctx context.Context, id string) error {
	_, err := svc.findOwned(ctx, id)
	if err != nil {
		return transportError(ctx, discuss.OpDelete, err)
	}

	_, err = svc.commentRepo.DeleteTree(ctx, id)
	if err != nil {
		return transportError(ctx, discuss.OpDelete, fmt.Errorf("failed to delete comment tree: %w", err))
	}

	return nil
}

func (svc *Service) React(ctx context.Context, id string, input discuss.ReactInput) (*discuss.ReactResult, error) {
	result, err := svc.react(ctx, id, input)
	if err != nil {
		return nil, transportError(ctx, discuss.OpReact, err)
	}

	return result, nil
}

func (svc *Service) react(ctx context.Context, id string, input discuss.ReactInput) (*discuss.ReactResult, error) {
	userID, err := subject(ctx)
	if err != nil {
		return nil, err
	}

	err = discuss.ValidateFields(svc.validate, discuss.ValidationMap{
		"type": discuss.WithTag(string(input.Type), "required,oneof=like dislike"),
	})
	if err != nil {
		return nil, err
	}

	_, err = svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	err = svc.userReactionRepo.Upsert(ctx, &reactions.UserReaction{
		CommentID: id,
		UserID:    userID,
		Type:      input.Type,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set reaction: %w", err)
	}

	comment, err := svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find reacted comment: %w", err)
	}

	return &discuss.ReactResult{Comment: comment, UserReaction: input.Type}, nil
}

func (svc *Service) Unreact(ctx context.Context, id string) (*discuss.Comment, error) {
	comment, err := svc.unreact(ctx, id)
	if err != nil {
		return nil, transportError(ctx, discuss.OpUnreact, err)
	}

	return comment, nil
}

func (svc *Service) unreact(ctx context.Context, id string) (*discuss.Comment, error) {
	userID, err := subject(ctx)
	if err != nil {
		return nil, err
	}

	comment, err := svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	_, err = svc.userReactionRepo.FindByUserComment(ctx, id, userID)
	if err != nil {
		var notFoundErr reactions.UserReactionNotFoundError
		if errors.As(err, &notFoundErr) {
			return comment, nil
		}

		return nil, fmt.Errorf("failed to get existing reaction: %w", err)
	}

	err = svc.userReactionRepo.DeleteByUserComment(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove reaction: %w", err)
	}

	comment, err = svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find unreacted comment: %w", err)
	}

	return comment, nil
}

// List returns one page of the scope, oldest first, with the acting user's
// reactions on that page.
func (svc *Service) List(
	ctx context.Context,
	contentID, contentType string,
	page, limit int,
) (*discuss.CommentPage, error) {
	commentPage, err := svc.list(ctx, contentID, contentType, page, limit)
	if err != nil {
		return nil, transportError(ctx, discuss.OpList, err)
	}

	return commentPage, nil
}

func (svc *Service) list(
	ctx context.Context,
	contentID, contentType string,
	page, limit int,
) (*discuss.CommentPage, error) {
	err := discuss.ValidateFields(svc.validate, discuss.ValidationMap{
		"contentId":   discuss.WithTag(contentID, "required"),
		"contentType": discuss.WithTag(contentType, "required"),
		"page":        discuss.WithTag(page, "gte=1"),
		"limit":       discuss.WithTag(limit, fmt.Sprintf("gte=1,lte=%d", MaxPageSize)),
	})
	if err != nil {
		return nil, err
	}

	scope := discuss.Scope{ContentID: contentID, ContentType: contentType}

	total, err := svc.commentRepo.Count(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}

	comments, err := svc.commentRepo.List(ctx, &ListCommentsParams{
		Scope:  scope,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	userReactions := make(map[string]reactions.Reaction)

	if userID := authcontext.GetSubject(ctx); userID != authcontext.Anonymous && len(comments) > 0 {
		commentIDs := make([]string, 0, len(comments))
		for _, comment := range comments {
			commentIDs = append(commentIDs, comment.ID)
		}

		userReactions, err = svc.userReactionRepo.ListByUser(ctx, userID, commentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list user reactions: %w", err)
		}
	}

	return &discuss.CommentPage{
		Comments: comments,
		Pagination: discuss.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
			HasMore:    page*limit < total,
		},
		UserReactions: userReactions,
	}, nil
}

func (svc *Service) Stats(ctx context.Context, contentID, contentType string) (*discuss.CommentStats, error) {
	err := discuss.ValidateFields(svc.validate, discuss.ValidationMap{
		"contentId":   discuss.WithTag(contentID, "required"),
		"contentType": discuss.WithTag(contentType, "required"),
	})
	if err != nil {
		return nil, transportError(ctx, discuss.OpStats, err)
	}

	stats, err := svc.commentRepo.Stats(ctx, discuss.Scope{ContentID: contentID, ContentType: contentType})
	if err != nil {
		return nil, transportError(ctx, discuss.OpStats, fmt.Errorf("failed to get comment stats: %w", err))
	}

	return stats, nil
}

// findOwned returns the comment when the acting user wrote it.
func (svc *Service) findOwned(ctx context.Context, id string) (*discuss.Comment, error) {
	userID, err := subject(ctx)
	if err != nil {
		return nil, err
	}

	comment, err := svc.commentRepo.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	if comment.AuthorID != userID {
		return nil, ForbiddenError{CommentID: id, UserID: userID}
	}

	return comment, nil
}

func (svc *Service) contentTag() string {
	return fmt.Sprintf("required,max=%d", svc.maxContentLength)
}

func subject(ctx context.Context) (string, error) {
	userID := authcontext.GetSubject(ctx)
	if userID == authcontext.Anonymous {
		return "", UnauthenticatedError{}
	}

	return userID, nil
}
