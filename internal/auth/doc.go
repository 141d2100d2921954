// Package auth guards gateway routes with HS256 bearer tokens.
//
// Tokens are minted by the `strategic-faas token` subcommand and signed with
// gateway.jwt_secret, which must be at least MinSecretLength bytes. Verify
// checks the signature, the issuer and the expiry, and returns the "sub"
// claim.
//
// BearerMiddleware wraps the gateway router when a secret is configured.
// Rejected requests get a 401 with a small JSON error body:
//
//	{"error":"token expired"}
//
// Accepted requests carry the subject in their context (SubjectFromContext).
package auth
