// Package api provides HTTP handlers for the botkit API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/render"
)

// PasswordHeader carries the model password on requests without a JSON body.
const PasswordHeader = "X-Model-Password"

// envelope is the shape of every error response.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, envelope{Success: false, Error: message})
}

// writeServiceError maps an error to its HTTP status:
// validation 400, missing resources 404, everything else 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	var maxBytes *http.MaxBytesError
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, render.ErrUnknownAction),
		errors.As(err, &syntax),
		errors.As(err, &typeErr),
		errors.Is(err, io.ErrUnexpectedEOF):
		Error(w, http.StatusBadRequest, "invalid input: "+err.Error())
	case errors.As(err, &maxBytes):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrSessionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes the request body into v. Unknown fields are ignored.
// An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
