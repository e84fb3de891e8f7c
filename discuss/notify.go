package discuss

import (
	"context"
	"log/slog"
	"time"
)

const (
	MessageCreateFailed   = "Failed to post comment"
	MessageUpdateFailed   = "Failed to update comment"
	MessageDeleteFailed   = "Failed to delete comment"
	MessageReactionFailed = "Failed to update reaction"
)

// Notification is a user-facing failure report, the toast of a mutation that
// did not go through.
type Notification struct {
	Scope     Scope
	Op        string
	CommentID string
	Message   string
	Err       error
	At        time.Time
}

type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

type NotifierFunc func(ctx context.Context, notification Notification)

func (f NotifierFunc) Notify(ctx context.Context, notification Notification) {
	f(ctx, notification)
}

// LogNotifier writes notifications to the default slog logger.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) Notify(ctx context.Context, notification Notification) {
	slog.WarnContext(
		ctx,
		notification.Message,
		"scope", notification.Scope.String(),
		"op", notification.Op,
		"commentId", notification.CommentID,
		"error", notification.Err,
	)
}

// Notifiers fans a notification out to every notifier in order.
type Notifiers []Notifier

var _ Notifier = Notifiers{}

func (notifiers Notifiers) Notify(ctx context.Context, notification Notification) {
	for _, notifier := range notifiers {
		notifier.Notify(ctx, notification)
	}
}
