package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nasermirzaei89/threads/discuss"
)

type UnauthenticatedError struct{}

func (err UnauthenticatedError) Error() string {
	return "authentication required"
}

type ForbiddenError struct {
	CommentID string
	UserID    string
}

func (err ForbiddenError) Error() string {
	return fmt.Sprintf("user %q may not modify comment %q", err.UserID, err.CommentID)
}

// transportError maps a service failure to the error the API reports for op.
// Unexpected failures are logged and hidden behind a generic message.
func transportError(ctx context.Context, op string, err error) *discuss.TransportError {
	var (
		validationErr      *discuss.ValidationError
		notFoundErr        *discuss.CommentNotFoundError
		unauthenticatedErr UnauthenticatedError
		forbiddenErr       ForbiddenError
	)

	switch {
	case errors.As(err, &validationErr):
		return &discuss.TransportError{
			Op:      op,
			Status:  http.StatusBadRequest,
			Code:    discuss.CodeValidation,
			Message: validationErr.Error(),
			Err:     err,
		}
	case errors.As(err, &notFoundErr):
		return &discuss.TransportError{
			Op:      op,
			Status:  http.StatusNotFound,
			Code:    discuss.CodeNotFound,
			Message: notFoundErr.Error(),
			Err:     err,
		}
	case errors.As(err, &unauthenticatedErr):
		return &discuss.TransportError{
			Op:      op,
			Status:  http.StatusUnauthorized,
			Code:    discuss.CodeUnauthorized,
			Message: unauthenticatedErr.Error(),
			Err:     err,
		}
	case errors.As(err, &forbiddenErr):
		return &discuss.TransportError{
			Op:      op,
			Status:  http.StatusForbidden,
			Code:    discuss.CodeForbidden,
			Message: forbiddenErr.Error(),
			Err:     err,
		}
	default:
		slog.ErrorContext(ctx, "comments backend failed", "op", op, "error", err)

		return &discuss.TransportError{
			Op:      op,
			Status:  http.StatusInternalServerError,
			Code:    discuss.CodeInternal,
			Message: "internal error occurred",
			Err:     err,
		}
	}
}
