package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
// Every token is bound to the login session it was issued for.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, sessionID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at) VALUES (?,?,?,?)",
		userID, sessionID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the user and session of a non-revoked, non-expired token.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, string, error) {
	var (
		userID    uint64
		sessionID string
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, session_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &sessionID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, "", err
	}
	if revokedAt.Valid {
		return 0, "", sql.ErrNoRows
	}
	if time.Now().UTC().After(expiresAt) {
		return 0, "", sql.ErrNoRows
	}
	return userID, sessionID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeSession revokes every active token of one login session.
func (r *TokenRepo) RevokeSession(ctx context.Context, userID uint64, sessionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND session_id=? AND revoked_at IS NULL",
		userID, sessionID)
	return err
}
