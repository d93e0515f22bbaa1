package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"blackhub/internal/auth"
	"blackhub/internal/types"
)

// authPublicPaths bypass user authentication. The webhook authenticates by
// signature, cron routes by the scheduler secret, and payment verification
// is reached by the gateway redirect before the client has a token in hand.
var authPublicPaths = map[string]bool{
	"/health":                   true,
	"/v1/webhooks/paystack":     true,
	"/v1/checkout/verify":       true,
	"/v1/push/vapid-public-key": true,
}

var authPublicPrefixes = []string{
	"/v1/cron/",
}

func isPublicPath(path string) bool {
	if authPublicPaths[path] {
		return true
	}
	for _, p := range authPublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AuthMiddleware resolves the bearer token to an Actor and stores it in the
// context. Missing tokens yield auth_token_missing, expired tokens
// auth_token_expired and everything else auth_token_invalid, all 401.
//
// A nil Authenticator passes every request through, which tests rely on.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header value.
// The scheme is case-insensitive per RFC 7235.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.WarnContext(r.Context(), "authentication failed: token invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireUser rejects requests without an authenticated user Actor.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type != types.ActorTypeUser {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScheduler authenticates the cron caller with the shared secret and
// stores the scheduler Actor in the context. Failures are logged at WARN.
func (s *Server) RequireScheduler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Scheduler == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Unauthorized")
			return
		}
		actor, err := s.Scheduler.ResolveToken(r.Context(), extractBearerToken(r.Header.Get("Authorization")))
		if err != nil || actor == nil {
			s.Logger.WarnContext(r.Context(), "scheduler authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_ip", extractClientIP(r)),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// RequireAdmin allows only the configured administrator (CEO_EMAIL,
// compared case-insensitively).
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}
		if !auth.IsAdmin(actor, s.adminEmail()) {
			s.Logger.WarnContext(r.Context(), "admin route rejected",
				slog.String("actor_id", actor.ID),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdmin, "Admin access required.", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminEmail() string {
	if s.Config == nil {
		return ""
	}
	return s.Config.Auth.CEOEmail
}

type subscriptionKey struct{}

// SubscriptionFromContext returns the subscription that RequireSellerAccess
// admitted the request with.
func SubscriptionFromContext(ctx context.Context) (*types.Subscription, bool) {
	sub, ok := ctx.Value(subscriptionKey{}).(*types.Subscription)
	return sub, ok && sub != nil
}

// RequireSellerAccess runs the access gate for the authenticated user.
// Denials are 403 with permission_account_suspended or
// permission_subscription_required so clients can show the right prompt.
func (s *Server) RequireSellerAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type != types.ActorTypeUser {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}
		if s.Gate == nil {
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "access gate not configured", nil))
			return
		}

		sub, err := s.Gate.Check(r.Context(), actor.ID, time.Now())
		if err != nil {
			Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subscriptionKey{}, sub)))
	})
}
