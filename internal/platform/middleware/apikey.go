package middleware

import (
	"context"
	"log/slog"
	"net/http"

	id "github.com/doobee46/idswyft-sub005/pkg/domain"
)

// APIKeyValidator resolves a raw API key into its claims. Implemented by the
// developer service; middleware stays free of storage concerns.
type APIKeyValidator interface {
	ValidateKey(ctx context.Context, rawKey string) (*APIKeyClaims, error)
}

// APIKeyClaims carries the identity resolved from a validated API key.
type APIKeyClaims struct {
	KeyID          id.APIKeyID
	OrganizationID id.OrganizationID
	Sandbox        bool
}

type contextKeyAPIKey struct{}
type contextKeyOrganization struct{}
type contextKeySandbox struct{}

var (
	ContextKeyAPIKey       = contextKeyAPIKey{}
	ContextKeyOrganization = contextKeyOrganization{}
	ContextKeySandbox      = contextKeySandbox{}
)

// GetAPIKeyID retrieves the authenticated API key ID from the context.
func GetAPIKeyID(ctx context.Context) id.APIKeyID {
	keyID, ok := ctx.Value(ContextKeyAPIKey).(id.APIKeyID)
	if !ok {
		return id.APIKeyID{}
	}
	return keyID
}

// GetOrganizationID retrieves the authenticated organization from the context.
func GetOrganizationID(ctx context.Context) id.OrganizationID {
	orgID, ok := ctx.Value(ContextKeyOrganization).(id.OrganizationID)
	if !ok {
		return id.OrganizationID{}
	}
	return orgID
}

// IsSandbox reports whether the request was authenticated with a sandbox key.
func IsSandbox(ctx context.Context) bool {
	sandbox, ok := ctx.Value(ContextKeySandbox).(bool)
	return ok && sandbox
}

// RequireAPIKey authenticates requests via the X-API-Key header and stamps the
// resolved claims into the request context.
func RequireAPIKey(validator APIKeyValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				logger.WarnContext(ctx, "unauthorized access - missing API key",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing X-API-Key header")
				return
			}

			claims, err := validator.ValidateKey(ctx, rawKey)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid API key",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or revoked API key")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAPIKey, claims.KeyID)
			ctx = context.WithValue(ctx, ContextKeyOrganization, claims.OrganizationID)
			ctx = context.WithValue(ctx, ContextKeySandbox, claims.Sandbox)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
