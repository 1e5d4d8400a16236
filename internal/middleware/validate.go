package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/respond"
)

const ctxBodyKey contextKey = "validated_body"

// BodyValidator checks a JSON request body against a named schema.
type BodyValidator interface {
	Validate(kind string, body []byte) error
}

// ValidateBody reads at most maxBytes of the request body, validates it
// against the schema for kind and replaces r.Body so the handler can decode it.
func ValidateBody(v BodyValidator, kind string, maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					respond.Error(w, nil, apperror.Validation("request body too large"))
					return
				}
				respond.Error(w, nil, apperror.Validation("failed to read body"))
				return
			}
			if err := v.Validate(kind, body); err != nil {
				respond.Error(w, nil, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxBodyKey, body)))
		})
	}
}

// BodyFromCtx returns the body validated by ValidateBody, or nil.
func BodyFromCtx(ctx context.Context) []byte {
	b, _ := ctx.Value(ctxBodyKey).([]byte)
	return b
}
