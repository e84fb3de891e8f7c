package discuss_test

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/reactions"
)

var errNetwork = &discuss.TransportError{Op: "test", Code: "NETWORK_ERROR", Message: "connection reset"}

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeTransport behaves like the comments API for a single scope-agnostic
// backend. Calls block on their op's gate, or on gate when it is set, and
// fail with the error registered for their op.
type fakeTransport struct {
	mu        sync.Mutex
	comments  map[string]*discuss.Comment
	reactions map[string]map[string]reactions.Reaction
	seq       int
	failures  map[string]error
	gate      chan struct{}
	gates     map[string]chan struct{}
	calls     []string
}

var _ discuss.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		comments:  make(map[string]*discuss.Comment),
		reactions: make(map[string]map[string]reactions.Reaction),
		failures:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeTransport) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[op] = err
}

func (f *fakeTransport) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gate = make(chan struct{})

	return f.gate
}

func (f *fakeTransport) blockOn(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	gate := make(chan struct{})
	f.gates[op] = gate

	return gate
}

func (f *fakeTransport) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.calls)
}

func (f *fakeTransport) seed(comments ...*discuss.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, comment := range comments {
		f.comments[comment.ID] = comment.Clone()
	}
}

func (f *fakeTransport) enter(op string) error {
	f.mu.Lock()
	gate := f.gate
	if opGate, ok := f.gates[op]; ok {
		gate = opGate
	}

	f.calls = append(f.calls, op)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.failures[op]
}

func (f *fakeTransport) Create(ctx context.Context, input discuss.CreateCommentInput) (*discuss.Comment, error) {
	err := f.enter(discuss.OpCreate)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if input.ParentCommentID != nil {
		parent, ok := f.comments[*input.ParentCommentID]
		if !ok {
			return nil, &discuss.TransportError{Op: discuss.OpCreate, Status: http.StatusBadRequest, Code: "PARENT_NOT_FOUND"}
		}

		parent.ReplyCount++
	}

	f.seq++

	createdAt := baseTime.Add(time.Duration(f.seq) * time.Second)

	comment := &discuss.Comment{
		ID:              fmt.Sprintf("c-%d", f.seq),
		Content:         input.Content,
		AuthorID:        authcontext.GetSubject(ctx),
		ContentID:       input.ContentID,
		ContentType:     input.ContentType,
		ParentCommentID: input.ParentCommentID,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	f.comments[comment.ID] = comment

	return comment.Clone(), nil
}

func (f *fakeTransport) Update(_ context.Context, id string, input discuss.UpdateCommentInput) (*discuss.Comment, error) {
	err := f.enter(discuss.OpUpdate)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	comment, ok := f.comments[id]
	if !ok {
		return nil, &discuss.TransportError{Op: discuss.OpUpdate, Status: http.StatusNotFound, Code: "NOT_FOUND"}
	}

	comment.Content = input.Content
	comment.IsEdited = true
	comment.UpdatedAt = comment.UpdatedAt.Add(time.Minute)

	return comment.Clone(), nil
}

func (f *fakeTransport) Delete(_ context.Context, id string) error {
	err := f.enter(discuss.OpDelete)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	comment, ok := f.comments[id]
	if !ok {
		return &discuss.TransportError{Op: discuss.OpDelete, Status: http.StatusNotFound, Code: "NOT_FOUND"}
	}

	if comment.ParentCommentID != nil {
		if parent, ok := f.comments[*comment.ParentCommentID]; ok {
			parent.ReplyCount--
		}
	}

	doomed := []string{id}

	for i := 0; i < len(doomed); i++ {
		for childID, child := range f.comments {
			if child.ParentCommentID != nil && *child.ParentCommentID == doomed[i] {
				doomed = append(doomed, childID)
			}
		}
	}

	for _, doomedID := range doomed {
		delete(f.comments, doomedID)
		delete(f.reactions, doomedID)
	}

	return nil
}

func (f *fakeTransport) React(ctx context.Context, id string, input discuss.ReactInput) (*discuss.ReactResult, error) {
	err := f.enter(discuss.OpReact)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	comment, ok := f.comments[id]
	if !ok {
		return nil, &discuss.TransportError{Op: discuss.OpReact, Status: http.StatusNotFound, Code: "NOT_FOUND"}
	}

	f.setReaction(comment, authcontext.GetSubject(ctx), input.Type)

	return &discuss.ReactResult{Comment: comment.Clone(), UserReaction: input.Type}, nil
}

func (f *fakeTransport) Unreact(ctx context.Context, id string) (*discuss.Comment, error) {
	err := f.enter(discuss.OpUnreact)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	comment, ok := f.comments[id]
	if !ok {
		return nil, &discuss.TransportError{Op: discuss.OpUnreact, Status: http.StatusNotFound, Code: "NOT_FOUND"}
	}

	f.setReaction(comment, authcontext.GetSubject(ctx), reactions.None)

	return comment.Clone(), nil
}

func (f *fakeTransport) setReaction(comment *discuss.Comment, userID string, next reactions.Reaction) {
	byUser, ok := f.reactions[comment.ID]
	if !ok {
		byUser = make(map[string]reactions.Reaction)
		f.reactions[comment.ID] = byUser
	}

	prev, ok := byUser[userID]
	if !ok {
		prev = reactions.None
	}

	likes, dislikes := reactions.CounterDelta(prev, next)
	comment.LikeCount += likes
	comment.DislikeCount += dislikes

	if next == reactions.None {
		delete(byUser, userID)

		return
	}

	byUser[userID] = next
}

func (f *fakeTransport) List(
	ctx context.Context,
	contentID, contentType string,
	page, limit int,
) (*discuss.CommentPage, error) {
	err := f.enter(discuss.OpList)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.scoped(contentID, contentType)

	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))

	userID := authcontext.GetSubject(ctx)
	userReactions := make(map[string]reactions.Reaction)

	comments := make([]*discuss.Comment, 0, end-start)

	for _, comment := range all[start:end] {
		comments = append(comments, comment.Clone())

		if reaction, ok := f.reactions[comment.ID][userID]; ok {
			userReactions[comment.ID] = reaction
		}
	}

	return &discuss.CommentPage{
		Comments: comments,
		Pagination: discuss.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      len(all),
			TotalPages: (len(all) + limit - 1) / limit,
			HasMore:    end < len(all),
		},
		UserReactions: userReactions,
	}, nil
}

func (f *fakeTransport) Stats(_ context.Context, contentID, contentType string) (*discuss.CommentStats, error) {
	err := f.enter(discuss.OpStats)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &discuss.CommentStats{}
	authors := make(map[string]struct{})

	for _, comment := range f.scoped(contentID, contentType) {
		stats.Total++

		if comment.IsReply() {
			stats.Replies++
		} else {
			stats.TopLevel++
		}

		authors[comment.AuthorID] = struct{}{}
	}

	stats.Participants = len(authors)

	return stats, nil
}

func (f *fakeTransport) scoped(contentID, contentType string) []*discuss.Comment {
	scoped := make([]*discuss.Comment, 0)

	for _, comment := range f.comments {
		if comment.ContentID == contentID && comment.ContentType == contentType {
			scoped = append(scoped, comment)
		}
	}

	slices.SortFunc(scoped, func(a, b *discuss.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		if a.ID < b.ID {
			return -1
		}

		return 1
	})

	return scoped
}

// recordingNotifier collects notifications.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []discuss.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification discuss.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notifications = append(n.notifications, notification)
}

func (n *recordingNotifier) all() []discuss.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.notifications)
}

// testClock returns strictly increasing times.
func testClock() func() time.Time {
	var mu sync.Mutex

	current := baseTime.Add(time.Hour)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		current = current.Add(time.Second)

		return current
	}
}

func ptr[T any](v T) *T {
	return &v
}
