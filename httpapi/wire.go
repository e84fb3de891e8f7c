package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/nasermirzaei89/threads/discuss"
)

const (
	// HeaderActingUser carries the id of the user a request is made for.
	HeaderActingUser = "X-Acting-User"

	pathComments = "/comments"
)

type dataEnvelope struct {
	Data any `json:"data"`
}

type rawDataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes body as the JSON response with status.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// WriteData wraps data in the {"data": ...} envelope.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, r, status, dataEnvelope{Data: data})
}

// WriteError answers with the {"error": {"code", "message"}} envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, r, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// DecodeBody decodes a JSON body of at most 1 MiB into dst. On failure it
// answers 400 and returns false.
func DecodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, discuss.CodeValidation, "invalid request body")

		return false
	}

	return true
}

// RecoverMiddleware turns a panic in next into a logged 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(ctx context.Context) {
			if err := recover(); err != nil {
				slog.ErrorContext(
					ctx,
					"recovered from panic",
					"error",
					err,
					"stack",
					string(debug.Stack()),
				)

				WriteError(w, r, http.StatusInternalServerError, discuss.CodeInternal, "internal error occurred")
			}
		}(r.Context())

		next.ServeHTTP(w, r)
	})
}
