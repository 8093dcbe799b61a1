package model

import "time"

// User represents an account record as stored in the `users` table.
// Accounts sign in with a 10-digit mobile number and a password; the
// optional hint is returned verbatim by the forgot-password flow.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Name         – display name.
//  Mobile       – unique 10-digit mobile number used to sign in.
//  PasswordHash – bcrypt hashed password.
//  Hint         – optional password hint (cleartext).
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Mobile       string    // users.mobile
	PasswordHash string    // users.password_hash
	Hint         string    // users.hint
	CreatedAt    time.Time // users.created_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and to one login session.  The plain
// token is not stored; only its SHA‑256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  SessionID – login session the token was issued for.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	SessionID string     // refresh_tokens.session_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
}
