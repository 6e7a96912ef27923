// ABOUTME: HTTP middleware for bearer authentication and role checks
// ABOUTME: Rejections are audited before the 401/403 response is written

package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/store"
)

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeDetail writes {"detail": msg} with the given status.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// HTTPAuthMiddleware creates an HTTP middleware that validates bearer tokens
// and adds the Identity to the request context. A rejected request records
// AUTH.TOKEN.FAIL with no actor and gets a 401.
func HTTPAuthMiddleware(authn Authenticator, recorder *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			var id Identity
			var err error
			if errMsg == "" {
				id, err = authn.Authenticate(token)
			}
			if errMsg != "" || err != nil {
				recorder.Record(r.Context(), "", audit.OpToken.Fail(), store.AuditFail)
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRoleHTTP creates an HTTP middleware that requires exactly role.
// Must be used after HTTPAuthMiddleware.
func RequireRoleHTTP(role store.Role, recorder *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}

			if _, err := RequireRole(id, role); err != nil {
				recorder.Record(r.Context(), id.Email, audit.OpRoleCheck.Fail(), store.AuditFail)
				writeDetail(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
