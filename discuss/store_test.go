package discuss_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/reactions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = discuss.Scope{ContentID: "post-1", ContentType: "article"}

func userContext(t *testing.T, userID string) context.Context {
	t.Helper()

	return authcontext.WithSubject(t.Context(), userID)
}

// seededTransport holds a root by user-2 liked by both users and a reply
// by user-1.
func seededTransport() *fakeTransport {
	transport := newFakeTransport()

	root := newComment("c1", "", 0)
	root.AuthorID = "user-2"
	root.ReplyCount = 1
	root.LikeCount = 2

	reply := newComment("c2", "c1", 1)

	transport.seed(root, reply)
	transport.reactions["c1"] = map[string]reactions.Reaction{
		"user-1": reactions.Like,
		"user-2": reactions.Like,
	}

	return transport
}

func newLoadedStore(
	t *testing.T,
	transport *fakeTransport,
	notifier discuss.Notifier,
	cfg discuss.Config,
) *discuss.CommentStore {
	t.Helper()

	if cfg.Now == nil {
		cfg.Now = testClock()
	}

	store := discuss.NewCommentStore(testScope, transport, notifier, cfg)

	err := store.Load(userContext(t, "user-1"))
	require.NoError(t, err)

	return store
}

func waitSettled(t *testing.T, m *discuss.Mutation) (*discuss.Comment, error) {
	t.Helper()

	comment, err := m.Wait(t.Context())
	if err != nil && errors.Is(err, context.Canceled) {
		t.Fatalf("mutation did not settle: %v", err)
	}

	return comment, err
}

func TestCommentStore_Load(t *testing.T) {
	t.Parallel()

	t.Run("fetches every page and the stats", func(t *testing.T) {
		t.Parallel()

		transport := seededTransport()
		transport.seed(newComment("c3", "", 2), newComment("c4", "c3", 3), newComment("c5", "", 4))

		store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{PageSize: 2})

		assert.True(t, store.Loaded())
		assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, ids(store.Comments()))
		assert.Equal(t, discuss.CommentStats{Total: 5, TopLevel: 3, Replies: 2, Participants: 2}, store.GetStats())
		assert.Equal(t, map[string]reactions.Reaction{"c1": reactions.Like}, store.Reactions())

		lists := 0

		for _, op := range transport.called() {
			if op == discuss.OpList {
				lists++
			}
		}

		assert.Equal(t, 3, lists)
	})

	t.Run("failure leaves the store unloaded", func(t *testing.T) {
		t.Parallel()

		transport := seededTransport()
		transport.failOn(discuss.OpStats, errNetwork)

		store := discuss.NewCommentStore(testScope, transport, &recordingNotifier{}, discuss.Config{})

		err := store.Load(userContext(t, "user-1"))
		require.Error(t, err)

		var transportErr *discuss.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "NETWORK_ERROR", transportErr.Code)

		assert.False(t, store.Loaded())
		assert.Empty(t, store.Comments())
	})
}

func TestCommentStore_Scenario(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	gate := transport.block()

	created := store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "  Hello  "})
	require.Equal(t, discuss.MutationPending, created.State())
	assert.True(t, discuss.IsTemporaryID(created.CommentID()))
	assert.Equal(t, "Hello", created.Comment().Content)
	assert.Equal(t, discuss.CommentStats{Total: 1, TopLevel: 1, Participants: 1}, store.GetStats())

	close(gate)

	root, err := waitSettled(t, created)
	require.NoError(t, err)
	assert.Equal(t, discuss.MutationCommitted, created.State())
	assert.Equal(t, "c-1", root.ID)
	assert.Equal(t, "c-1", created.CommentID())
	assert.Equal(t, "user-1", root.AuthorID)

	reply, err := waitSettled(t, store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "Hi!", ReplyTo: root.ID}))
	require.NoError(t, err)

	forest := store.GetThreaded(ctx)
	require.Len(t, forest, 1)
	assert.Equal(t, root.ID, forest[0].ID)
	assert.Equal(t, 1, forest[0].ReplyCount)
	assert.Equal(t, []string{reply.ID}, threadIDs(forest[0].Replies))
	assert.Equal(t, discuss.CommentStats{Total: 2, TopLevel: 1, Replies: 1, Participants: 1}, store.GetStats())

	_, err = waitSettled(t, store.RemoveComment(ctx, root.ID))
	require.NoError(t, err)

	assert.Empty(t, store.GetThreaded(ctx))
	assert.Equal(t, discuss.CommentStats{}, store.GetStats())
}

func TestCommentStore_SpeculativeWriteBeforeTransport(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	gate := transport.block()

	m := store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "pending reply", ReplyTo: "c1"})

	assert.Equal(t, discuss.MutationPending, m.State())

	speculative, ok := store.Get(m.CommentID())
	require.True(t, ok)
	assert.Equal(t, "pending reply", speculative.Content)

	parent, _ := store.Get("c1")
	assert.Equal(t, 2, parent.ReplyCount)
	assert.Equal(t, discuss.CommentStats{Total: 3, TopLevel: 1, Replies: 2, Participants: 2}, store.GetStats())

	select {
	case <-m.Done():
		t.Fatal("mutation settled before the transport answered")
	default:
	}

	close(gate)

	confirmed, err := waitSettled(t, m)
	require.NoError(t, err)

	_, ok = store.Get(speculative.ID)
	assert.False(t, ok)

	stored, ok := store.Get(confirmed.ID)
	require.True(t, ok)
	assert.Equal(t, "pending reply", stored.Content)
}

func TestCommentStore_FailedLike(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	notifier := &recordingNotifier{}
	store := newLoadedStore(t, transport, notifier, discuss.Config{})
	ctx := userContext(t, "user-1")

	transport.failOn(discuss.OpReact, errNetwork)
	gate := transport.block()

	m := store.ToggleLike(ctx, "c2")

	speculative, _ := store.Get("c2")
	assert.Equal(t, 1, speculative.LikeCount)
	assert.Equal(t, reactions.Like, store.GetReaction("c2"))

	close(gate)

	_, err := waitSettled(t, m)
	require.Error(t, err)
	assert.Equal(t, discuss.MutationRolledBack, m.State())

	var transportErr *discuss.TransportError
	require.ErrorAs(t, err, &transportErr)

	restored, _ := store.Get("c2")
	assert.Equal(t, 0, restored.LikeCount)
	assert.Equal(t, reactions.None, store.GetReaction("c2"))

	notifications := notifier.all()
	require.Len(t, notifications, 1)
	assert.Equal(t, discuss.MessageReactionFailed, notifications[0].Message)
	assert.Equal(t, discuss.OpReact, notifications[0].Op)
	assert.Equal(t, "c2", notifications[0].CommentID)
	assert.Equal(t, testScope, notifications[0].Scope)
}

func TestCommentStore_RollbackIsExact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		mutate  func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation
	}{
		{
			name:    "create root",
			message: discuss.MessageCreateFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "new"})
			},
		},
		{
			name:    "create reply",
			message: discuss.MessageCreateFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "new", ReplyTo: "c1"})
			},
		},
		{
			name:    "edit",
			message: discuss.MessageUpdateFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.EditComment(ctx, "c2", "edited")
			},
		},
		{
			name:    "delete reply",
			message: discuss.MessageDeleteFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.RemoveComment(ctx, "c2")
			},
		},
		{
			name:    "delete root",
			message: discuss.MessageDeleteFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.RemoveComment(ctx, "c1")
			},
		},
		{
			name:    "remove like",
			message: discuss.MessageReactionFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.ToggleLike(ctx, "c1")
			},
		},
		{
			name:    "switch to dislike",
			message: discuss.MessageReactionFailed,
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.ToggleDislike(ctx, "c1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := seededTransport()
			notifier := &recordingNotifier{}
			store := newLoadedStore(t, transport, notifier, discuss.Config{})
			ctx := userContext(t, "user-1")

			for _, op := range []string{
				discuss.OpCreate,
				discuss.OpUpdate,
				discuss.OpDelete,
				discuss.OpReact,
				discuss.OpUnreact,
			} {
				transport.failOn(op, errNetwork)
			}

			comments := store.Comments()
			userReactions := store.Reactions()
			stats := store.GetStats()

			m := tt.mutate(ctx, store)
			require.NotEqual(t, discuss.MutationIdle, m.State())

			_, err := waitSettled(t, m)
			require.Error(t, err)
			assert.Equal(t, discuss.MutationRolledBack, m.State())

			assert.Equal(t, comments, store.Comments())
			assert.Equal(t, userReactions, store.Reactions())
			assert.Equal(t, stats, store.GetStats())

			notifications := notifier.all()
			require.Len(t, notifications, 1)
			assert.Equal(t, tt.message, notifications[0].Message)
		})
	}
}

func TestCommentStore_ConcurrentRollbacks(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-3")

	transport.failOn(discuss.OpCreate, errNetwork)

	stats := store.GetStats()
	gate := transport.block()

	first := store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "first"})
	second := store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "second", ReplyTo: "c2"})

	assert.Equal(t, stats.Total+2, store.GetStats().Total)
	assert.Equal(t, stats.Participants+1, store.GetStats().Participants)

	close(gate)

	_, err := waitSettled(t, first)
	require.Error(t, err)

	_, err = waitSettled(t, second)
	require.Error(t, err)

	assert.Equal(t, stats, store.GetStats())
	assert.Len(t, store.Comments(), 2)
}

func TestCommentStore_RollbackAfterReconcile(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	transport.failOn(discuss.OpCreate, errNetwork)

	gate := transport.blockOn(discuss.OpCreate)

	create := store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "held"})
	require.Equal(t, discuss.MutationPending, create.State())

	_, err := waitSettled(t, store.RemoveComment(ctx, "c2"))
	require.NoError(t, err)

	close(gate)

	_, err = waitSettled(t, create)
	require.Error(t, err)

	server, err := transport.Stats(ctx, testScope.ContentID, testScope.ContentType)
	require.NoError(t, err)

	assert.Equal(t, discuss.CommentStats{Total: 1, TopLevel: 1, Replies: 0, Participants: 1}, *server)
	assert.Equal(t, *server, store.GetStats())
	assert.Len(t, store.Comments(), 1)
}

func TestCommentStore_ToggleReaction(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	counts := func() (int, int) {
		comment, ok := store.Get("c1")
		require.True(t, ok)

		return comment.LikeCount, comment.DislikeCount
	}

	_, err := waitSettled(t, store.ToggleLike(ctx, "c1"))
	require.NoError(t, err)

	likes, dislikes := counts()
	assert.Equal(t, reactions.None, store.GetReaction("c1"))
	assert.Equal(t, 1, likes)
	assert.Equal(t, 0, dislikes)

	_, err = waitSettled(t, store.ToggleDislike(ctx, "c1"))
	require.NoError(t, err)

	likes, dislikes = counts()
	assert.Equal(t, reactions.Dislike, store.GetReaction("c1"))
	assert.Equal(t, 1, likes)
	assert.Equal(t, 1, dislikes)

	_, err = waitSettled(t, store.ToggleLike(ctx, "c1"))
	require.NoError(t, err)

	likes, dislikes = counts()
	assert.Equal(t, reactions.Like, store.GetReaction("c1"))
	assert.Equal(t, 2, likes)
	assert.Equal(t, 0, dislikes)

	_, err = waitSettled(t, store.ToggleLike(ctx, "c1"))
	require.NoError(t, err)

	assert.Equal(t, reactions.None, store.GetReaction("c1"))
	assert.Contains(t, transport.called(), discuss.OpUnreact)
}

func TestCommentStore_ToggleLikeTwiceFromNone(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	before, ok := store.Get("c2")
	require.True(t, ok)
	require.Equal(t, reactions.None, store.GetReaction("c2"))

	_, err := waitSettled(t, store.ToggleLike(ctx, "c2"))
	require.NoError(t, err)

	liked, ok := store.Get("c2")
	require.True(t, ok)
	assert.Equal(t, reactions.Like, store.GetReaction("c2"))
	assert.Equal(t, before.LikeCount+1, liked.LikeCount)

	_, err = waitSettled(t, store.ToggleLike(ctx, "c2"))
	require.NoError(t, err)

	after, ok := store.Get("c2")
	require.True(t, ok)
	assert.Equal(t, reactions.None, store.GetReaction("c2"))
	assert.Equal(t, before.LikeCount, after.LikeCount)
	assert.Equal(t, before.DislikeCount, after.DislikeCount)

	calls := transport.called()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, []string{discuss.OpReact, discuss.OpUnreact}, calls[len(calls)-2:])
}

func TestCommentStore_Edit(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	store := newLoadedStore(t, transport, &recordingNotifier{}, discuss.Config{})
	ctx := userContext(t, "user-1")

	gate := transport.block()

	m := store.EditComment(ctx, "c2", " edited ")

	speculative, _ := store.Get("c2")
	assert.Equal(t, "edited", speculative.Content)
	assert.True(t, speculative.IsEdited)

	close(gate)

	confirmed, err := waitSettled(t, m)
	require.NoError(t, err)

	stored, _ := store.Get("c2")
	assert.Equal(t, "edited", stored.Content)
	assert.Equal(t, confirmed.UpdatedAt, stored.UpdatedAt)
}

func TestCommentStore_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation
		parameter string
		notFound  bool
	}{
		{
			name: "blank content",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "   "})
			},
			parameter: "content",
		},
		{
			name: "content too long",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.CreateComment(ctx, discuss.CreateCommentRequest{Content: strings.Repeat("x", 11)})
			},
			parameter: "content",
		},
		{
			name: "reply to speculative comment",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.CreateComment(ctx, discuss.CreateCommentRequest{Content: "x", ReplyTo: "temp-abc"})
			},
			parameter: "replyTo",
		},
		{
			name: "edit speculative comment",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.EditComment(ctx, "temp-abc", "x")
			},
			parameter: "commentId",
		},
		{
			name: "like without id",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.ToggleLike(ctx, "")
			},
			parameter: "commentId",
		},
		{
			name: "delete unknown comment",
			mutate: func(ctx context.Context, store *discuss.CommentStore) *discuss.Mutation {
				return store.RemoveComment(ctx, "missing")
			},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := seededTransport()
			notifier := &recordingNotifier{}
			store := newLoadedStore(t, transport, notifier, discuss.Config{MaxContentLength: 10})
			ctx := userContext(t, "user-1")

			comments := store.Comments()
			stats := store.GetStats()
			calls := len(transport.called())

			m := tt.mutate(ctx, store)

			assert.Equal(t, discuss.MutationIdle, m.State())

			select {
			case <-m.Done():
			default:
				t.Fatal("rejected mutation is not done")
			}

			if tt.notFound {
				var notFoundErr *discuss.CommentNotFoundError
				require.ErrorAs(t, m.Err(), &notFoundErr)
			} else {
				var validationErr *discuss.ValidationError
				require.ErrorAs(t, m.Err(), &validationErr)
				assert.Equal(t, []string{tt.parameter}, validationErr.Parameters)
			}

			assert.Equal(t, comments, store.Comments())
			assert.Equal(t, stats, store.GetStats())
			assert.Len(t, transport.called(), calls)
			assert.Len(t, notifier.all(), 1)
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	transport := seededTransport()
	registry := discuss.NewRegistry(transport, &recordingNotifier{}, discuss.Config{})

	store := registry.Store("post-1", "article")

	assert.Same(t, store, registry.Store("post-1", "article"))
	assert.NotSame(t, store, registry.Store("post-1", "video"))

	require.NoError(t, store.Load(userContext(t, "user-1")))

	ctx := userContext(t, "user-1")

	_, err := waitSettled(t, store.EditComment(ctx, "c2", "shared"))
	require.NoError(t, err)

	forest := registry.GetThreaded(ctx, "post-1", "article")
	require.Len(t, forest, 1)
	assert.Equal(t, "shared", forest[0].Replies[0].Content)

	assert.Equal(t, 2, registry.GetStats("post-1", "article").Total)
	assert.Equal(t, discuss.CommentStats{}, registry.GetStats("post-1", "video"))

	registry.Wait()
}
