package discuss

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/reactions"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxDepth         = 3
	DefaultMaxContentLength = 2000
	DefaultPageSize         = 50
)

type Config struct {
	MaxDepth         int
	MaxContentLength int
	PageSize         int
	Now              func() time.Time
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	if cfg.MaxContentLength < 1 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}

	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}

// CommentStore is the optimistic cache of one scope: the entity store, the
// acting user's reactions and the derived stats, plus the mutations that keep
// them in sync with the Transport.
//
// Every mutation validates its input, snapshots what it touches and writes
// its speculative result before returning; the transport call runs on its own
// goroutine and ends in either a commit or an exact rollback. Mutations on
// the same comment are not queued: the last write wins.
type CommentStore struct {
	scope     Scope
	transport Transport
	notifier  Notifier
	validate  *validator.Validate
	cfg       Config

	mu        sync.RWMutex
	entities  *EntityStore
	stats     *StatsAggregator
	reactions *reactions.Cache
	loaded    bool

	loads    singleflight.Group
	inflight sync.WaitGroup
}

func NewCommentStore(scope Scope, transport Transport, notifier Notifier, cfg Config) *CommentStore {
	if notifier == nil {
		notifier = LogNotifier{}
	}

	return &CommentStore{
		scope:     scope,
		transport: transport,
		notifier:  notifier,
		validate:  validator.New(),
		cfg:       cfg.withDefaults(),
		entities:  NewEntityStore(),
		stats:     NewStatsAggregator(),
		reactions: reactions.NewCache(),
	}
}

func (s *CommentStore) Scope() Scope {
	return s.scope
}

// GetThreaded returns the current reply forest, speculative writes included.
func (s *CommentStore) GetThreaded(ctx context.Context) []*ThreadedComment {
	s.mu.RLock()
	entities := s.entities.All()
	s.mu.RUnlock()

	forest, err := BuildThreaded(entities, s.cfg.MaxDepth)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build consistent thread", "scope", s.scope.String(), "error", err)
	}

	return forest
}

func (s *CommentStore) GetStats() CommentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats.Get()
}

func (s *CommentStore) GetReaction(commentID string) reactions.Reaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reactions.Get(commentID)
}

// Reactions returns a copy of every non-None reaction of the acting user.
func (s *CommentStore) Reactions() map[string]reactions.Reaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reactions.All()
}

func (s *CommentStore) Get(commentID string) (*Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entities.Get(commentID)
}

// Comments returns every cached comment ordered by creation time.
func (s *CommentStore) Comments() []*Comment {
	s.mu.RLock()
	comments := s.entities.All()
	s.mu.RUnlock()

	slices.SortFunc(comments, compareComments)

	return comments
}

func (s *CommentStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loaded
}

// Wait blocks until every dispatched transport call has settled.
func (s *CommentStore) Wait() {
	s.inflight.Wait()
}

// Load fetches every page and the stats of the scope and replaces the
// confirmed part of the cache. Concurrent calls share one fetch.
func (s *CommentStore) Load(ctx context.Context) error {
	_, err, _ := s.loads.Do(s.scope.String(), func() (any, error) {
		return nil, s.load(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to load comments of %s: %w", s.scope, err)
	}

	return nil
}

func (s *CommentStore) load(ctx context.Context) error {
	var (
		comments      []*Comment
		userReactions map[string]reactions.Reaction
		stats         *CommentStats
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		comments, userReactions, err = s.fetchAll(gctx)

		return err
	})

	g.Go(func() error {
		var err error

		stats, err = s.transport.Stats(gctx, s.scope.ContentID, s.scope.ContentType)
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", AsTransportError(OpStats, err))
		}

		if stats == nil {
			return fmt.Errorf("failed to fetch stats: %w", AsTransportError(OpStats, errEmptyResponse))
		}

		return nil
	})

	err := g.Wait()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities.ReplaceConfirmed(comments)

	if userReactions != nil {
		s.reactions.Merge(userReactions)
	}

	err = s.stats.Reconcile(*stats)
	if err != nil {
		slog.ErrorContext(ctx, "inconsistent comment stats", "scope", s.scope.String(), "error", err)
	}

	s.loaded = true

	return nil
}

func (s *CommentStore) fetchAll(ctx context.Context) ([]*Comment, map[string]reactions.Reaction, error) {
	comments := make([]*Comment, 0)

	var userReactions map[string]reactions.Reaction

	for page := 1; ; page++ {
		commentPage, err := s.transport.List(ctx, s.scope.ContentID, s.scope.ContentType, page, s.cfg.PageSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch page %d: %w", page, AsTransportError(OpList, err))
		}

		if commentPage == nil {
			return nil, nil, fmt.Errorf("failed to fetch page %d: %w", page, AsTransportError(OpList, errEmptyResponse))
		}

		comments = append(comments, commentPage.Comments...)

		if commentPage.UserReactions != nil {
			if userReactions == nil {
				userReactions = make(map[string]reactions.Reaction)
			}

			for _, comment := range commentPage.Comments {
				reaction, ok := commentPage.UserReactions[comment.ID]
				if !ok {
					reaction = reactions.None
				}

				userReactions[comment.ID] = reaction
			}
		}

		if !commentPage.Pagination.HasMore || len(commentPage.Comments) == 0 {
			break
		}
	}

	return comments, userReactions, nil
}

type CreateCommentRequest struct {
	Content string
	ReplyTo string
}

// CreateComment inserts a speculative comment authored by the subject of ctx
// and posts it.
func (s *CommentStore) CreateComment(ctx context.Context, req CreateCommentRequest) *Mutation {
	content, err := s.validateContent(req.Content)
	if err == nil && req.ReplyTo != "" {
		err = validateTarget("replyTo", req.ReplyTo)
	}

	if err != nil {
		m := newMutation(OpCreate, "")
		s.reject(ctx, m, MessageCreateFailed, err)

		return m
	}

	var parentID *string
	if req.ReplyTo != "" {
		parentID = &req.ReplyTo
	}

	now := s.cfg.Now()

	speculative := &Comment{
		ID:              NewTemporaryID(),
		Content:         content,
		AuthorID:        authcontext.GetSubject(ctx),
		ContentID:       s.scope.ContentID,
		ContentType:     s.scope.ContentType,
		ParentCommentID: parentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	m := newMutation(OpCreate, speculative.ID)

	s.mu.Lock()

	ids := []string{speculative.ID}
	if parentID != nil {
		ids = append(ids, *parentID)
	}

	snapshot := s.takeSnapshot(ids...)

	delta := StatsDelta{Total: 1}
	if parentID != nil {
		delta.Replies = 1
	} else {
		delta.TopLevel = 1
	}

	if !s.entities.hasAuthor(speculative.AuthorID, "") {
		delta.Participants = 1
	}

	s.entities.Upsert(speculative)

	if parentID != nil {
		s.adjustReplyCount(*parentID, 1)
	}

	s.applyStats(snapshot, delta)
	m.begin(speculative)

	s.mu.Unlock()

	input := CreateCommentInput{
		ContentID:       s.scope.ContentID,
		ContentType:     s.scope.ContentType,
		Content:         content,
		ParentCommentID: parentID,
	}

	s.settle(ctx, m, snapshot, MessageCreateFailed, func(ctx context.Context) (*Comment, error) {
		created, err := s.transport.Create(ctx, input)
		if err != nil {
			return nil, err
		}

		if created == nil {
			return nil, errEmptyResponse
		}

		s.mu.Lock()
		s.entities.Remove(speculative.ID)
		s.entities.Upsert(created)
		s.mu.Unlock()

		s.reconcileStats(ctx)

		return created, nil
	})

	return m
}

// EditComment replaces the content of a confirmed comment.
func (s *CommentStore) EditComment(ctx context.Context, commentID, content string) *Mutation {
	m := newMutation(OpUpdate, commentID)

	err := validateTarget("commentId", commentID)
	if err == nil {
		content, err = s.validateContent(content)
	}

	if err != nil {
		s.reject(ctx, m, MessageUpdateFailed, err)

		return m
	}

	s.mu.Lock()

	if _, ok := s.entities.Get(commentID); !ok {
		s.mu.Unlock()
		s.reject(ctx, m, MessageUpdateFailed, &CommentNotFoundError{ID: commentID})

		return m
	}

	snapshot := s.takeSnapshot(commentID)

	now := s.cfg.Now()
	edited := true

	s.entities.Patch(commentID, CommentPatch{Content: &content, IsEdited: &edited, UpdatedAt: &now})

	speculative, _ := s.entities.Get(commentID)
	m.begin(speculative)

	s.mu.Unlock()

	s.settle(ctx, m, snapshot, MessageUpdateFailed, func(ctx context.Context) (*Comment, error) {
		updated, err := s.transport.Update(ctx, commentID, UpdateCommentInput{Content: content})
		if err != nil {
			return nil, err
		}

		if updated == nil {
			return nil, errEmptyResponse
		}

		s.mu.Lock()
		s.entities.Patch(commentID, CommentPatch{
			Content:   &updated.Content,
			IsEdited:  &updated.IsEdited,
			UpdatedAt: &updated.UpdatedAt,
		})
		s.mu.Unlock()

		return updated, nil
	})

	return m
}

// RemoveComment drops a confirmed comment from the view. Its replies stay in
// the entity store and fall out of the forest as orphans.
func (s *CommentStore) RemoveComment(ctx context.Context, commentID string) *Mutation {
	m := newMutation(OpDelete, commentID)

	err := validateTarget("commentId", commentID)
	if err != nil {
		s.reject(ctx, m, MessageDeleteFailed, err)

		return m
	}

	s.mu.Lock()

	existing, ok := s.entities.Get(commentID)
	if !ok {
		s.mu.Unlock()
		s.reject(ctx, m, MessageDeleteFailed, &CommentNotFoundError{ID: commentID})

		return m
	}

	ids := []string{commentID}
	if existing.IsReply() {
		ids = append(ids, *existing.ParentCommentID)
	}

	snapshot := s.takeSnapshot(ids...)

	delta := StatsDelta{Total: -1}
	if existing.IsReply() {
		delta.Replies = -1
	} else {
		delta.TopLevel = -1
	}

	if !s.entities.hasAuthor(existing.AuthorID, commentID) {
		delta.Participants = -1
	}

	s.entities.Remove(commentID)

	if existing.IsReply() {
		s.adjustReplyCount(*existing.ParentCommentID, -1)
	}

	s.applyStats(snapshot, delta)
	m.begin(existing)

	s.mu.Unlock()

	s.settle(ctx, m, snapshot, MessageDeleteFailed, func(ctx context.Context) (*Comment, error) {
		err := s.transport.Delete(ctx, commentID)
		if err != nil {
			return nil, err
		}

		s.reconcileStats(ctx)

		return existing, nil
	})

	return m
}

// ToggleLike likes the comment, or removes the like when it is already active.
func (s *CommentStore) ToggleLike(ctx context.Context, commentID string) *Mutation {
	return s.toggleReaction(ctx, commentID, reactions.Like)
}

// ToggleDislike dislikes the comment, or removes the dislike when it is already active.
func (s *CommentStore) ToggleDislike(ctx context.Context, commentID string) *Mutation {
	return s.toggleReaction(ctx, commentID, reactions.Dislike)
}

func (s *CommentStore) toggleReaction(ctx context.Context, commentID string, requested reactions.Reaction) *Mutation {
	m := newMutation(OpReact, commentID)

	err := validateTarget("commentId", commentID)
	if err != nil {
		s.reject(ctx, m, MessageReactionFailed, err)

		return m
	}

	s.mu.Lock()

	existing, ok := s.entities.Get(commentID)
	if !ok {
		s.mu.Unlock()
		s.reject(ctx, m, MessageReactionFailed, &CommentNotFoundError{ID: commentID})

		return m
	}

	snapshot := s.takeSnapshot(commentID)

	current := s.reactions.Get(commentID)
	next := reactions.Toggle(current, requested)

	likes, dislikes := reactions.CounterDelta(current, next)
	likeCount := max(existing.LikeCount+likes, 0)
	dislikeCount := max(existing.DislikeCount+dislikes, 0)

	s.entities.Patch(commentID, CommentPatch{LikeCount: &likeCount, DislikeCount: &dislikeCount})
	s.reactions.Set(commentID, next)

	speculative, _ := s.entities.Get(commentID)
	m.begin(speculative)

	s.mu.Unlock()

	s.settle(ctx, m, snapshot, MessageReactionFailed, func(ctx context.Context) (*Comment, error) {
		if next == reactions.None {
			comment, err := s.transport.Unreact(ctx, commentID)
			if err != nil {
				return nil, AsTransportError(OpUnreact, err)
			}

			if comment == nil {
				return nil, AsTransportError(OpUnreact, errEmptyResponse)
			}

			s.mu.Lock()
			s.entities.Refresh(comment)
			s.reactions.Set(commentID, reactions.None)
			s.mu.Unlock()

			return comment, nil
		}

		result, err := s.transport.React(ctx, commentID, ReactInput{Type: next})
		if err != nil {
			return nil, err
		}

		if result == nil || result.Comment == nil {
			return nil, errEmptyResponse
		}

		s.mu.Lock()
		s.entities.Refresh(result.Comment)
		s.reactions.Set(commentID, result.UserReaction)
		s.mu.Unlock()

		return result.Comment, nil
	})

	return m
}

// adjustReplyCount moves the reply count of id by delta. The caller holds the
// store lock.
func (s *CommentStore) adjustReplyCount(id string, delta int) {
	parent, ok := s.entities.Get(id)
	if !ok {
		return
	}

	replyCount := max(parent.ReplyCount+delta, 0)
	s.entities.Patch(id, CommentPatch{ReplyCount: &replyCount})
}

// settle runs call on its own goroutine, detached from the caller's
// cancellation, and commits or rolls back m with its outcome.
func (s *CommentStore) settle(
	ctx context.Context,
	m *Mutation,
	snapshot *MutationSnapshot,
	message string,
	call func(ctx context.Context) (*Comment, error),
) {
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)

	go func() {
		defer s.inflight.Done()

		confirmed, err := call(ctx)
		if err != nil {
			transportErr := AsTransportError(m.Op(), err)

			s.mu.Lock()
			stale := s.restoreSnapshot(snapshot)
			s.mu.Unlock()

			if stale {
				s.reconcileStats(ctx)
			}

			s.notify(ctx, m, message, transportErr)
			m.rollback(transportErr)

			return
		}

		m.commit(confirmed)
	}()
}

func (s *CommentStore) reject(ctx context.Context, m *Mutation, message string, err error) {
	s.notify(ctx, m, message, err)
	m.reject(err)
}

func (s *CommentStore) notify(ctx context.Context, m *Mutation, message string, err error) {
	s.notifier.Notify(ctx, Notification{
		Scope:     s.scope,
		Op:        m.Op(),
		CommentID: m.CommentID(),
		Message:   message,
		Err:       err,
		At:        s.cfg.Now(),
	})
}

// reconcileStats replaces the stats with the server's. A failure leaves the
// optimistic values in place until the next successful reconcile.
func (s *CommentStore) reconcileStats(ctx context.Context) {
	stats, err := s.transport.Stats(ctx, s.scope.ContentID, s.scope.ContentType)
	if err != nil {
		slog.WarnContext(ctx, "failed to reconcile comment stats", "scope", s.scope.String(), "error", err)

		return
	}

	if stats == nil {
		return
	}

	s.mu.Lock()
	err = s.stats.Reconcile(*stats)
	s.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "inconsistent comment stats", "scope", s.scope.String(), "error", err)
	}
}
