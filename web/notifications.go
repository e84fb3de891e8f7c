package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nasermirzaei89/threads/discuss"
)

const DefaultFeedCapacity = 100

// FeedEntry is a notification as shown to the user.
type FeedEntry struct {
	Seq         uint64    `json:"seq"`
	ContentID   string    `json:"contentId"`
	ContentType string    `json:"contentType"`
	Op          string    `json:"op"`
	CommentID   string    `json:"commentId,omitempty"`
	Message     string    `json:"message"`
	Code        string    `json:"code,omitempty"`
	At          time.Time `json:"at"`
}

// NotificationFeed keeps the latest failure notifications in a ring buffer.
// Older entries are overwritten once capacity is reached.
type NotificationFeed struct {
	mu      sync.Mutex
	entries []FeedEntry
	next    uint64
}

var _ discuss.Notifier = (*NotificationFeed)(nil)

func NewNotificationFeed(capacity int) *NotificationFeed {
	if capacity < 1 {
		capacity = DefaultFeedCapacity
	}

	return &NotificationFeed{
		entries: make([]FeedEntry, capacity),
		next:    1,
	}
}

func (f *NotificationFeed) Notify(_ context.Context, notification discuss.Notification) {
	entry := FeedEntry{
		ContentID:   notification.Scope.ContentID,
		ContentType: notification.Scope.ContentType,
		Op:          notification.Op,
		CommentID:   notification.CommentID,
		Message:     notification.Message,
		Code:        errorCode(notification.Err),
		At:          notification.At,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry.Seq = f.next
	f.entries[int(entry.Seq%uint64(len(f.entries)))] = entry
	f.next++
}

// Since returns the retained entries with a sequence of at least seq, oldest
// first, and the cursor to pass on the next call.
func (f *NotificationFeed) Since(seq uint64) ([]FeedEntry, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	capacity := uint64(len(f.entries))

	oldest := uint64(1)
	if f.next > capacity {
		oldest = f.next - capacity
	}

	// A cursor ahead of the feed comes from an earlier process.
	if seq < oldest || seq > f.next {
		seq = oldest
	}

	entries := make([]FeedEntry, 0, f.next-seq)
	for i := seq; i < f.next; i++ {
		entries = append(entries, f.entries[int(i%capacity)])
	}

	return entries, f.next
}

func errorCode(err error) string {
	var transportErr *discuss.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Code
	}

	var validationErr *discuss.ValidationError
	if errors.As(err, &validationErr) {
		return discuss.CodeValidation
	}

	var notFoundErr *discuss.CommentNotFoundError
	if errors.As(err, &notFoundErr) {
		return discuss.CodeNotFound
	}

	return ""
}
