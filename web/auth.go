package web

import (
	"net/http"

	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/httpapi"
)

// authMiddleware acts as the configured user. Identity is resolved outside
// this service, so an empty acting user leaves requests anonymous.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.actingUserID != "" {
			r = r.WithContext(authcontext.WithSubject(r.Context(), h.actingUserID))
		}

		next.ServeHTTP(w, r)
	})
}

func isAuthenticated(r *http.Request) bool {
	return authcontext.GetSubject(r.Context()) != authcontext.Anonymous
}

func (h *Handler) AuthenticatedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(r) {
			httpapi.WriteError(w, r, http.StatusUnauthorized, discuss.CodeUnauthorized, "sign in to take part in the discussion")

			return
		}

		next.ServeHTTP(w, r)
	})
}
