package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
	"github.com/solverhub/backend/internal/respond"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// TokenValidator resolves a bearer token to the caller.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
}

// BearerAuth authenticates requests with a JWT bearer token and stores the
// resolved actor in the request context.
func BearerAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				respond.Error(w, nil, apperror.Unauthorized("missing or malformed Authorization header"))
				return
			}
			actor, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				if apperror.CodeOf(err) == apperror.CodeInternal {
					err = apperror.Unauthorized("invalid token")
				}
				respond.Error(w, nil, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole lets through only actors holding one of the given roles.
// It must run after BearerAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromCtx(r.Context())
			if actor == nil {
				respond.Error(w, nil, apperror.Unauthorized("authentication required"))
				return
			}
			for _, role := range roles {
				if actor.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.Error(w, nil, apperror.Forbidden("insufficient role"))
		})
	}
}

// ActorFromCtx returns the authenticated actor or nil.
func ActorFromCtx(ctx context.Context) models.Actor {
	a, _ := ctx.Value(ctxActorKey).(models.Actor)
	return a
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
