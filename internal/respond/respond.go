// Package respond writes JSON responses and coded JSON errors.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/solverhub/backend/internal/apperror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err to its status code and writes an ErrorBody. Errors without
// a code are logged on log (if non-nil) and reported as a bare internal error.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	code := apperror.CodeOf(err)
	switch {
	case code == apperror.CodeInternal && log != nil:
		log.Error("request failed", "error", err)
	case code == apperror.CodeExternalFailure && log != nil:
		log.Warn("external dependency failed", "error", err)
	}
	JSON(w, code.HTTPStatus(), ErrorBody{
		Error:     apperror.MessageOf(err),
		Code:      string(code),
		Retryable: code.Retryable(),
	})
}
