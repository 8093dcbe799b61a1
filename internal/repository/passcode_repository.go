package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/imagelock/internal/model"
)

// PasscodeRepo stores one image passcode row per app. Writes are single
// statements so a concurrent read sees either the old or the new row.
type PasscodeRepo struct{ db *sql.DB }

func NewPasscodeRepo(db *sql.DB) *PasscodeRepo { return &PasscodeRepo{db: db} }

// Upsert inserts the passcode or replaces category, digest and hint of the
// existing row for the same app.
func (r *PasscodeRepo) Upsert(ctx context.Context, p model.Passcode) error {
	const q = `INSERT INTO image_passcodes (app_id, category, sequence_hash, hint) VALUES (?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE category = VALUES(category), sequence_hash = VALUES(sequence_hash),
	           hint = VALUES(hint), updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, q, p.AppID, p.Category, p.Digest, p.Hint)
	return err
}

// Get returns the passcode of appID or ErrNotFound.
func (r *PasscodeRepo) Get(ctx context.Context, appID uint64) (*model.Passcode, error) {
	const q = `SELECT app_id, category, sequence_hash, hint, updated_at FROM image_passcodes WHERE app_id = ?`
	var p model.Passcode
	var hint sql.NullString
	if err := r.db.QueryRowContext(ctx, q, appID).Scan(&p.AppID, &p.Category, &p.Digest, &hint, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Hint = hint.String
	return &p, nil
}

// Delete removes the passcode of appID. Deleting a missing row is not an error.
func (r *PasscodeRepo) Delete(ctx context.Context, appID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM image_passcodes WHERE app_id = ?`, appID)
	return err
}
