package discuss

import (
	"context"
	"errors"
)

// Transport is the remote comments API. It is the only network boundary the
// store calls through; implementations return *TransportError on failure.
type Transport interface {
	Create(ctx context.Context, input CreateCommentInput) (comment *Comment, err error)
	Update(ctx context.Context, id string, input UpdateCommentInput) (comment *Comment, err error)
	Delete(ctx context.Context, id string) (err error)
	React(ctx context.Context, id string, input ReactInput) (result *ReactResult, err error)
	Unreact(ctx context.Context, id string) (comment *Comment, err error)
	List(ctx context.Context, contentID, contentType string, page, limit int) (commentPage *CommentPage, err error)
	Stats(ctx context.Context, contentID, contentType string) (stats *CommentStats, err error)
}

const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpReact   = "react"
	OpUnreact = "unreact"
	OpList    = "list"
	OpStats   = "stats"
)

// Error codes carried by TransportError.Code.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "COMMENT_NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
	CodeNetwork      = "NETWORK_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeRateLimited  = "RATE_LIMITED"
)

// AsTransportError returns err as a *TransportError, wrapping it for op when
// it is not one already.
func AsTransportError(op string, err error) *TransportError {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}

	return &TransportError{Op: op, Err: err}
}

var errEmptyResponse = errors.New("empty response")
