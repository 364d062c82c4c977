// Package auth verifies bearer tokens on the operator API using OpenID
// Connect. The browser login flow lives in the dashboard application, not
// here; this service only validates access tokens it is handed.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"github.com/innovareai/sam-funnel-engine/internal/config"
	"github.com/innovareai/sam-funnel-engine/internal/logging"
)

type contextKey string

// ClaimsContextKey carries the verified token claims in the request context.
const ClaimsContextKey contextKey = "auth_claims"

// Auth verifies bearer tokens against the configured OIDC issuer.
type Auth struct {
	verifier   *oidc.IDTokenVerifier
	logger     *logging.Logger
	authBypass bool
}

// New prepares a token verifier from the application configuration. In a DEV
// environment with the bypass flag set, verification is skipped entirely.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.Auth.DevModeBypass

	var verifier *oidc.IDTokenVerifier
	if !shouldBypass {
		if cfg.Auth.Issuer == "" {
			return nil, errors.New("auth.issuer is required outside dev bypass mode")
		}
		provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
		// Access tokens often carry an API audience rather than a client id,
		// so the audience check is skipped here.
		verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		verifier:   verifier,
		logger:     logger,
		authBypass: shouldBypass,
	}, nil
}

// RequireAuth is middleware that rejects requests without a valid bearer
// token. Verified claims are stored in the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := a.verifier.Verify(r.Context(), raw)
		if err != nil {
			a.logger.Warn("Rejected bearer token", "error", err)
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		var claims map[string]interface{}
		if err := token.Claims(&claims); err != nil {
			http.Error(w, "unreadable token claims", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
