package web

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/httpapi"
	"github.com/nasermirzaei89/threads/reactions"
)

// Handler is the discussion API consumed by the UI. Every mutation answers
// from the optimistic cache right away; pass wait=true to answer once the
// backend has settled it.
type Handler struct {
	mux          *http.ServeMux
	handler      http.Handler
	registry     *discuss.Registry
	feed         *NotificationFeed
	cookieStore  *sessions.CookieStore
	sessionName  string
	actingUserID string
	renderer     *contentRenderer
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	registry *discuss.Registry,
	feed *NotificationFeed,
	cookieStore *sessions.CookieStore,
	sessionName string,
	actingUserID string,
) *Handler {
	h := &Handler{
		mux:          nil,
		handler:      nil,
		registry:     registry,
		feed:         feed,
		cookieStore:  cookieStore,
		sessionName:  sessionName,
		actingUserID: actingUserID,
		renderer:     newContentRenderer(),
	}

	{
		h.mux = &http.ServeMux{}
		h.handler = h.mux

		h.registerRoutes()
	}

	{
		h.handler = h.authMiddleware(h.handler)
		h.handler = httpapi.RecoverMiddleware(h.handler)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.Handle("GET /healthz", h.HandleHealthz())

	h.mux.Handle("GET /api/{contentType}/{contentId}/comments", h.HandleThread())
	h.mux.Handle("POST /api/{contentType}/{contentId}/comments", h.AuthenticatedOnly(h.HandleCreateComment()))
	h.mux.Handle(
		"PATCH /api/{contentType}/{contentId}/comments/{commentId}",
		h.AuthenticatedOnly(h.HandleEditComment()),
	)
	h.mux.Handle(
		"DELETE /api/{contentType}/{contentId}/comments/{commentId}",
		h.AuthenticatedOnly(h.HandleRemoveComment()),
	)
	h.mux.Handle(
		"POST /api/{contentType}/{contentId}/comments/{commentId}/like",
		h.AuthenticatedOnly(h.HandleToggleReaction(reactions.Like)),
	)
	h.mux.Handle(
		"POST /api/{contentType}/{contentId}/comments/{commentId}/dislike",
		h.AuthenticatedOnly(h.HandleToggleReaction(reactions.Dislike)),
	)

	h.mux.Handle("GET /api/notifications", h.HandleNotifications())
}

func (h *Handler) store(r *http.Request) *discuss.CommentStore {
	return h.registry.Store(r.PathValue("contentId"), r.PathValue("contentType"))
}

func (h *Handler) HandleHealthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteData(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type threadResponse struct {
	Comments []*commentView       `json:"comments"`
	Stats    discuss.CommentStats `json:"stats"`
}

// HandleThread loads the scope on first use, or again with refresh=true, and
// returns its threaded view including pending speculative comments.
func (h *Handler) HandleThread() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := h.store(r)

		if !store.Loaded() || r.URL.Query().Get("refresh") == "true" {
			err := store.Load(r.Context())
			if err != nil {
				writeFailure(w, r, err)

				return
			}
		}

		forest := store.GetThreaded(r.Context())
		userReactions := store.Reactions()

		comments := make([]*commentView, 0, len(forest))
		for _, threaded := range forest {
			comments = append(comments, h.threadedView(r.Context(), threaded, userReactions))
		}

		httpapi.WriteData(w, r, http.StatusOK, threadResponse{Comments: comments, Stats: store.GetStats()})
	})
}

type createCommentRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"replyTo"`
}

func (h *Handler) HandleCreateComment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createCommentRequest

		if !httpapi.DecodeBody(w, r, &req) {
			return
		}

		store := h.store(r)
		m := store.CreateComment(r.Context(), discuss.CreateCommentRequest{Content: req.Content, ReplyTo: req.ReplyTo})

		h.writeMutation(w, r, store, m, http.StatusCreated)
	})
}

type editCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) HandleEditComment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req editCommentRequest

		if !httpapi.DecodeBody(w, r, &req) {
			return
		}

		store := h.store(r)
		m := store.EditComment(r.Context(), r.PathValue("commentId"), req.Content)

		h.writeMutation(w, r, store, m, http.StatusOK)
	})
}

func (h *Handler) HandleRemoveComment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := h.store(r)
		m := store.RemoveComment(r.Context(), r.PathValue("commentId"))

		h.writeMutation(w, r, store, m, http.StatusOK)
	})
}

func (h *Handler) HandleToggleReaction(reaction reactions.Reaction) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := h.store(r)

		var m *discuss.Mutation
		if reaction == reactions.Dislike {
			m = store.ToggleDislike(r.Context(), r.PathValue("commentId"))
		} else {
			m = store.ToggleLike(r.Context(), r.PathValue("commentId"))
		}

		h.writeMutation(w, r, store, m, http.StatusOK)
	})
}

type notificationsResponse struct {
	Notifications []FeedEntry `json:"notifications"`
	Cursor        uint64      `json:"cursor"`
}

// HandleNotifications returns the failures reported since the session last
// asked and moves the session cursor past them.
func (h *Handler) HandleNotifications() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cursor uint64

		value, err := h.getSessionValue(r, notificationCursorKey)
		if err != nil {
			var sessionValueNotFoundError SessionValueNotFoundError
			if !errors.As(err, &sessionValueNotFoundError) {
				slog.ErrorContext(
					r.Context(),
					"error on getting session value",
					"key",
					notificationCursorKey,
					"error",
					err,
				)
				httpapi.WriteError(w, r, http.StatusInternalServerError, discuss.CodeInternal, "error on getting session value")

				return
			}
		} else if stored, ok := value.(uint64); ok {
			cursor = stored
		}

		entries, next := h.feed.Since(cursor)

		err = h.setSessionValue(w, r, notificationCursorKey, next)
		if err != nil {
			slog.ErrorContext(
				r.Context(),
				"error on setting session value",
				"key",
				notificationCursorKey,
				"error",
				err,
			)
			httpapi.WriteError(w, r, http.StatusInternalServerError, discuss.CodeInternal, "error on setting session value")

			return
		}

		httpapi.WriteData(w, r, http.StatusOK, notificationsResponse{Notifications: entries, Cursor: next})
	})
}

type commentView struct {
	discuss.Comment

	ContentHTML  string             `json:"contentHtml"`
	Depth        int                `json:"depth"`
	IsReply      bool               `json:"isReply"`
	IsPending    bool               `json:"isPending"`
	UserReaction reactions.Reaction `json:"userReaction"`
	Replies      []*commentView     `json:"replies,omitempty"`
}

func (h *Handler) commentView(
	ctx context.Context,
	comment *discuss.Comment,
	depth int,
	reaction reactions.Reaction,
) *commentView {
	contentHTML, err := h.renderer.Render(comment.Content)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render comment content", "commentId", comment.ID, "error", err)

		contentHTML = html.EscapeString(comment.Content)
	}

	if reaction == "" {
		reaction = reactions.None
	}

	return &commentView{
		Comment:      *comment,
		ContentHTML:  contentHTML,
		Depth:        depth,
		IsReply:      comment.IsReply(),
		IsPending:    discuss.IsTemporaryID(comment.ID),
		UserReaction: reaction,
		Replies:      nil,
	}
}

func (h *Handler) threadedView(
	ctx context.Context,
	threaded *discuss.ThreadedComment,
	userReactions map[string]reactions.Reaction,
) *commentView {
	view := h.commentView(ctx, &threaded.Comment, threaded.Depth, userReactions[threaded.ID])

	for _, reply := range threaded.Replies {
		view.Replies = append(view.Replies, h.threadedView(ctx, reply, userReactions))
	}

	return view
}

type mutationResponse struct {
	Op        string       `json:"op"`
	State     string       `json:"state"`
	CommentID string       `json:"commentId,omitempty"`
	Comment   *commentView `json:"comment,omitempty"`
}

// writeMutation answers with the speculative state of m, or with its settled
// state when wait=true. committedStatus is used once the backend confirmed it.
func (h *Handler) writeMutation(
	w http.ResponseWriter,
	r *http.Request,
	store *discuss.CommentStore,
	m *discuss.Mutation,
	committedStatus int,
) {
	if r.URL.Query().Get("wait") == "true" {
		_, err := m.Wait(r.Context())
		if err != nil && r.Context().Err() != nil {
			slog.WarnContext(r.Context(), "stopped waiting for comment mutation", "op", m.Op(), "error", err)
		}
	}

	state := m.State()

	if err := m.Err(); err != nil {
		writeFailure(w, r, err)

		return
	}

	status := http.StatusAccepted
	if state == discuss.MutationCommitted {
		status = committedStatus
	}

	resp := mutationResponse{
		Op:        m.Op(),
		State:     state.String(),
		CommentID: m.CommentID(),
		Comment:   nil,
	}

	if comment := m.Comment(); comment != nil && m.Op() != discuss.OpDelete {
		if current, ok := store.Get(comment.ID); ok {
			comment = current
		}

		resp.Comment = h.commentView(r.Context(), comment, 0, store.GetReaction(comment.ID))
	}

	httpapi.WriteData(w, r, status, resp)
}

// writeFailure maps store and backend errors to API errors. Backend client
// errors keep their status, anything else from the backend is a bad gateway.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *discuss.ValidationError
	if errors.As(err, &validationErr) {
		httpapi.WriteError(w, r, http.StatusBadRequest, discuss.CodeValidation, validationErr.Error())

		return
	}

	var notFoundErr *discuss.CommentNotFoundError
	if errors.As(err, &notFoundErr) {
		httpapi.WriteError(w, r, http.StatusNotFound, discuss.CodeNotFound, notFoundErr.Error())

		return
	}

	var transportErr *discuss.TransportError
	if errors.As(err, &transportErr) {
		status := http.StatusBadGateway
		if transportErr.Status >= http.StatusBadRequest && transportErr.Status < http.StatusInternalServerError {
			status = transportErr.Status
		}

		code := transportErr.Code
		if code == "" {
			code = discuss.CodeInternal
		}

		message := transportErr.Message
		if message == "" {
			message = "comments backend failed"
		}

		httpapi.WriteError(w, r, status, code, message)

		return
	}

	slog.ErrorContext(r.Context(), "failed to serve discussion request", "error", err)
	httpapi.WriteError(w, r, http.StatusInternalServerError, discuss.CodeInternal, "internal error occurred")
}
