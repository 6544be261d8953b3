package middleware

import (
	"context"
	"net/http"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/logger"
	"smartpark/pkg/model"
	"strings"
)

const principalKey contextKey = "principal"

// TokenVerifier resolves an opaque bearer token into a principal. The
// production implementation calls the external identity service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Principal, error)
}

// Authentication verifies the Authorization header on every request and
// stores the resolved principal in the request context. Handlers downstream
// can assume a principal is always present.
func Authentication(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" {
				writeAuthError(w, apperrors.Unauthorized("Missing bearer token"))
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				requestID := ""
				if rid := r.Context().Value(RequestIDKey); rid != nil {
					if id, ok := rid.(string); ok {
						requestID = id
					}
				}
				log.Warn("Token verification failed",
					"request_id", requestID,
					"path", r.URL.Path,
					"error", err,
				)
				writeAuthError(w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	// WebSocket handshakes from browsers cannot set headers; accept the
	// token as a query parameter there.
	return r.URL.Query().Get("token")
}

func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*model.Principal)
	return p, ok
}

func writeAuthError(w http.ResponseWriter, err error) {
	appErr := apperrors.AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())
	_, _ = w.Write(appErr.ToJSON())
}
