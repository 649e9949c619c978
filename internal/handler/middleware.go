package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/cache"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/boddenberg/mazebank-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

const actorCacheName = "actor"

// JWTAuthMiddleware validates Bearer tokens and injects the acting user into
// the context. The user record is re-read (through a short-lived cache) so a
// block or role change applies to tokens that were already issued.
func JWTAuthMiddleware(authSvc *service.AuthService, users port.UserStore, actors *cache.InMemory[domain.Actor], metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := authSvc.ValidateAccessToken(strings.TrimSpace(tokenString))
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			userID, _ := claims.UserID()

			actor, hit, err := actors.GetOrLoad(r.Context(), service.ActorCacheKey(userID), func(ctx context.Context) (domain.Actor, error) {
				user, err := users.FindByID(ctx, userID)
				if err != nil {
					return domain.Actor{}, err
				}
				return domain.ActorFor(user), nil
			})
			if hit {
				metrics.IncrCacheHit(actorCacheName)
			} else {
				metrics.IncrCacheMiss(actorCacheName)
			}
			if err != nil {
				var notFound *domain.ErrNotFound
				if errors.As(err, &notFound) {
					logger.Warn("auth: token for unknown user", zap.Int64("user_id", userID))
					writeError(w, http.StatusUnauthorized, "user no longer exists")
					return
				}
				handleServiceError(w, err, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireEmployee rejects requests whose actor is not an active employee.
func RequireEmployee(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !actor.IsEmployee() || actor.Blocked {
				logger.Warn("auth: employee role required",
					zap.String("path", r.URL.Path),
					zap.Int64("user_id", actor.UserID),
				)
				writeError(w, http.StatusForbidden, "employee role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext extracts the authenticated actor from context.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	v, ok := ctx.Value(actorKey).(domain.Actor)
	return v, ok
}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}
