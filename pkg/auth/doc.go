// Package auth provides credential handling and caller identity for the task service.
//
// # Overview
//
// This package covers the three pieces every protected request depends on:
// the closed set of roles, password digests, and signed bearer tokens.
//
// # Roles
//
// Roles are a closed set validated at the boundary:
//
//	role, err := auth.ParseRole("admin") // auth.RoleAdmin
//
// # Passwords
//
// New digests use argon2id. Digests written by earlier deployments (unsalted
// base64 SHA-256) still verify and are reported as needing a re-hash:
//
//	hasher := auth.NewPasswordHasher(auth.SchemeArgon2id)
//	digest, err := hasher.Hash(ctx, "pw1")
//	ok, rehash := hasher.Verify(ctx, "pw1", digest)
//
// Digests are memory-hard, so the hasher bounds how many run at once
// (WithMaxConcurrent). VerifyMissing spends the cost of a failed Verify when
// the account does not exist.
//
// # Tokens
//
// Tokens are HS256 JWTs carrying the user id (as a string) and role, valid
// for seven days:
//
//	issuer, err := auth.NewTokenIssuer(secret, auth.DefaultTokenTTL)
//	token, err := issuer.Issue(user)
//	principal, err := issuer.Validate(token)
//
// # Related Packages
//
//   - pkg/middleware: Bearer token gate and role checks
package auth
