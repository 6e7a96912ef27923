// Package auth provides authentication and authorization for bankd.
//
// # Credentials
//
// Users register with an email and password. Passwords are hashed with
// bcrypt; the configured admin address is the only way to obtain RoleAdmin.
// Register and Login both return a Credential holding an HS256 JWT:
//
//	{"sub": "alice@x.com", "role": "user", "iat": ..., "exp": ...}
//
// Tokens are self-contained. There is no revocation; a token is valid until
// it expires (auth.token_ttl, 30 minutes by default).
//
// # HTTP Guards
//
//	HTTPAuthMiddleware(service, recorder) // 401 unless a valid bearer token is present
//	RequireRoleHTTP(store.RoleAdmin, recorder) // 403 unless the caller's role matches exactly
//
// The authenticated Identity is available to handlers via FromContext.
// Both guards write their audit record (AUTH.TOKEN.FAIL, ACCESS.ROLE.FAIL)
// before the error response.
package auth
