// Package repository contains data access logic separated from HTTP handlers.
// This file holds the web app queries. A web app belongs to a single owner
// and may carry one image passcode; deleting the app removes the passcode in
// the same transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/imagelock/internal/model"
)

// WebAppRepo encapsulates all database queries related to uploaded apps.
type WebAppRepo struct {
	db *sql.DB
}

// NewWebAppRepo constructs a WebAppRepo with the provided DB handle.
func NewWebAppRepo(db *sql.DB) *WebAppRepo {
	return &WebAppRepo{db: db}
}

// Create inserts a new app row and populates its ID and CreatedAt.
func (r *WebAppRepo) Create(ctx context.Context, a *model.WebApp) error {
	const qInsert = "INSERT INTO webapps (owner_id, filename, storage_key) VALUES (?, ?, ?)"
	res, err := r.db.ExecContext(ctx, qInsert, a.OwnerID, a.Filename, a.StorageKey)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)

	const qSelect = "SELECT created_at FROM webapps WHERE id = ?"
	return r.db.QueryRowContext(ctx, qSelect, a.ID).Scan(&a.CreatedAt)
}

// GetByID fetches an app regardless of owner. It returns ErrNotFound if no
// row is found; ownership is left to the caller.
func (r *WebAppRepo) GetByID(ctx context.Context, id uint64) (*model.WebApp, error) {
	const q = "SELECT id, owner_id, filename, storage_key, created_at FROM webapps WHERE id = ?"
	var a model.WebApp
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.OwnerID, &a.Filename, &a.StorageKey, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListByOwner returns all apps of one owner ordered by id, flagging the ones
// that have a passcode.
func (r *WebAppRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]*model.WebApp, error) {
	const q = `SELECT w.id, w.owner_id, w.filename, w.storage_key, w.created_at, p.app_id IS NOT NULL
	           FROM webapps w LEFT JOIN image_passcodes p ON p.app_id = w.id
	           WHERE w.owner_id = ? ORDER BY w.id`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.WebApp{}
	for rows.Next() {
		a := new(model.WebApp)
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Filename, &a.StorageKey, &a.CreatedAt, &a.Locked); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByIDAndOwner removes an app and its passcode provided it belongs to
// ownerID, returning the deleted row so the caller can drop the payload.
// ErrNotFound is returned for a missing app and ErrForbidden for an app
// owned by someone else.
func (r *WebAppRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) (deleted *model.WebApp, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var a model.WebApp
	if err = tx.QueryRowContext(ctx,
		`SELECT id, owner_id, filename, storage_key, created_at FROM webapps WHERE id = ? FOR UPDATE`, id).
		Scan(&a.ID, &a.OwnerID, &a.Filename, &a.StorageKey, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, err
	}
	if a.OwnerID != ownerID {
		err = ErrForbidden
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM image_passcodes WHERE app_id = ?`, id); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM webapps WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &a, nil
}
