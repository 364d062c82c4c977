package auth

import "strings"

// Scopes recognized on operator API tokens.
const (
	// ScopeFunnelExecute permits deploying and executing funnels.
	ScopeFunnelExecute = "funnel:execute"
	// ScopeFunnelRead permits reading execution status and campaign metrics.
	ScopeFunnelRead = "funnel:read"
)

// HasScope reports whether the verified claims grant a scope. Scopes arrive
// either as a space-separated string ("scope") or a string array ("scp").
func HasScope(claims map[string]interface{}, scope string) bool {
	if raw, ok := claims["scope"].(string); ok {
		for _, s := range strings.Fields(raw) {
			if s == scope {
				return true
			}
		}
	}
	if raw, ok := claims["scp"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok && str == scope {
				return true
			}
		}
	}
	return false
}
