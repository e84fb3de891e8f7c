package httpapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
)

// Handler serves a Transport over the comments API, so one process can act
// as the remote backend of another.
type Handler struct {
	mux       *http.ServeMux
	handler   http.Handler
	transport discuss.Transport
	token     string
}

var _ http.Handler = (*Handler)(nil)

// NewHandler serves transport. A non-empty token is required as bearer token
// on every request.
func NewHandler(transport discuss.Transport, token string) *Handler {
	h := &Handler{
		mux:       &http.ServeMux{},
		transport: transport,
		token:     token,
	}

	h.registerRoutes()

	h.handler = h.authMiddleware(h.mux)
	h.handler = RecoverMiddleware(h.handler)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.Handle("POST /comments", h.HandleCreate())
	h.mux.Handle("GET /comments", h.HandleList())
	h.mux.Handle("GET /comments/stats", h.HandleStats())
	h.mux.Handle("PUT /comments/{id}", h.HandleUpdate())
	h.mux.Handle("DELETE /comments/{id}", h.HandleDelete())
	h.mux.Handle("POST /comments/{id}/reactions", h.HandleReact())
	h.mux.Handle("DELETE /comments/{id}/reactions", h.HandleUnreact())
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
				WriteError(w, r, http.StatusUnauthorized, discuss.CodeUnauthorized, "invalid api token")

				return
			}
		}

		ctx := r.Context()

		if userID := r.Header.Get(HeaderActingUser); userID != "" {
			ctx = authcontext.WithSubject(ctx, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) HandleCreate() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input discuss.CreateCommentInput

		if !DecodeBody(w, r, &input) {
			return
		}

		comment, err := h.transport.Create(r.Context(), input)
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusCreated, comment)
	})
}

func (h *Handler) HandleUpdate() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input discuss.UpdateCommentInput

		if !DecodeBody(w, r, &input) {
			return
		}

		comment, err := h.transport.Update(r.Context(), r.PathValue("id"), input)
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusOK, comment)
	})
}

func (h *Handler) HandleDelete() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.transport.Delete(r.Context(), r.PathValue("id"))
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handler) HandleReact() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input discuss.ReactInput

		if !DecodeBody(w, r, &input) {
			return
		}

		result, err := h.transport.React(r.Context(), r.PathValue("id"), input)
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusOK, result)
	})
}

func (h *Handler) HandleUnreact() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		comment, err := h.transport.Unreact(r.Context(), r.PathValue("id"))
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusOK, comment)
	})
}

func (h *Handler) HandleList() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		page, ok := intParam(w, r, "page", 1)
		if !ok {
			return
		}

		limit, ok := intParam(w, r, "limit", discuss.DefaultPageSize)
		if !ok {
			return
		}

		commentPage, err := h.transport.List(r.Context(), query.Get("contentId"), query.Get("contentType"), page, limit)
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusOK, commentPage)
	})
}

func (h *Handler) HandleStats() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		stats, err := h.transport.Stats(r.Context(), query.Get("contentId"), query.Get("contentType"))
		if err != nil {
			writeTransportError(w, r, err)

			return
		}

		WriteData(w, r, http.StatusOK, stats)
	})
}

func intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, true
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, discuss.CodeValidation, name+": must be an integer")

		return 0, false
	}

	return n, true
}

func writeTransportError(w http.ResponseWriter, r *http.Request, err error) {
	var transportErr *discuss.TransportError
	if !errors.As(err, &transportErr) || transportErr.Status == 0 {
		slog.ErrorContext(r.Context(), "failed to serve comments api request", "error", err)
		WriteError(w, r, http.StatusInternalServerError, discuss.CodeInternal, "internal error occurred")

		return
	}

	code := transportErr.Code
	if code == "" {
		code = discuss.CodeInternal
	}

	WriteError(w, r, transportErr.Status, code, transportErr.Message)
}
