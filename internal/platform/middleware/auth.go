package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"medihub/pkg/domain"
	"medihub/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the claims needed to
// build the actor identity.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*AccessClaims, error)
}

// AccessClaims carries the authenticated identity extracted from a token.
type AccessClaims struct {
	UserID string
	Role   string
	JTI    string
}

// SessionChecker reports whether a user's sessions have been revoked (e.g.
// after account deletion).
type SessionChecker interface {
	IsRevoked(ctx context.Context, userID domain.UserID) (bool, error)
}

type contextKeyActor struct{}

// ContextKeyActor is exported for handler tests that inject an actor without
// running the middleware chain.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context. The zero
// actor (nil user ID) means the request was not authenticated.
func GetActor(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(ContextKeyActor).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{}
}

// WithActor injects an actor into a context. For tests.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequireAuth validates the bearer token, rejects revoked sessions, and puts
// the actor identity into the request context. The core services never look
// at the session themselves; they receive the actor as an argument.
func RequireAuth(validator TokenValidator, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			userID, err := domain.ParseUserID(claims.UserID)
			if err != nil {
				writeUnauthorized(w, "Invalid token subject")
				return
			}
			role, err := domain.ParseRole(claims.Role)
			if err != nil {
				writeUnauthorized(w, "Invalid token role")
				return
			}

			if sessions != nil {
				revoked, err := sessions.IsRevoked(ctx, userID)
				if err != nil {
					logger.ErrorContext(ctx, "session revocation check failed",
						"error", err,
						"request_id", requestID,
					)
				} else if revoked {
					writeUnauthorized(w, "Session has been revoked")
					return
				}
			}

			ctx = WithActor(ctx, domain.Actor{UserID: userID, Role: role})
			ctx = requestcontext.WithSessionJTI(ctx, claims.JTI)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
