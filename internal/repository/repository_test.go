package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/imagelock/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestPasscodeRepo_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPasscodeRepo(db)

	mock.ExpectExec(`(?s)^INSERT INTO image_passcodes .* ON DUPLICATE KEY UPDATE`).
		WithArgs(uint64(7), "animals", "$2a$digest", "pets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), model.Passcode{AppID: 7, Category: "animals", Digest: "$2a$digest", Hint: "pets"})
	require.NoError(t, err)
}

func TestPasscodeRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPasscodeRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT app_id, category, sequence_hash, hint, updated_at FROM image_passcodes WHERE app_id = ?`)).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "category", "sequence_hash", "hint", "updated_at"}).
			AddRow(uint64(7), "animals", "$2a$digest", nil, now))

	p, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.AppID)
	assert.Equal(t, "animals", p.Category)
	assert.Equal(t, "", p.Hint)
}

func TestPasscodeRepo_Get_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPasscodeRepo(db)

	mock.ExpectQuery(`FROM image_passcodes`).WithArgs(uint64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasscodeRepo_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPasscodeRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM image_passcodes WHERE app_id = ?`)).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 3))
}

func TestWebAppRepo_DeleteByIDAndOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebAppRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT id, owner_id, filename, storage_key, created_at FROM webapps WHERE id = \? FOR UPDATE`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "filename", "storage_key", "created_at"}).
			AddRow(uint64(5), uint64(1), "game.html", "apps/k.html", now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM image_passcodes WHERE app_id = ?`)).
		WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM webapps WHERE id = ?`)).
		WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := repo.DeleteByIDAndOwner(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.Equal(t, "apps/k.html", a.StorageKey)
}

func TestWebAppRepo_DeleteByIDAndOwner_Forbidden(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebAppRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM webapps WHERE id = \? FOR UPDATE`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "filename", "storage_key", "created_at"}).
			AddRow(uint64(5), uint64(2), "game.html", "apps/k.html", time.Now()))
	mock.ExpectRollback()

	_, err := repo.DeleteByIDAndOwner(context.Background(), 5, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestWebAppRepo_DeleteByIDAndOwner_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebAppRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM webapps WHERE id = \? FOR UPDATE`).WithArgs(uint64(5)).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.DeleteByIDAndOwner(context.Background(), 5, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWebAppRepo_ListByOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebAppRepo(db)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM webapps w LEFT JOIN image_passcodes p`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "filename", "storage_key", "created_at", "locked"}).
			AddRow(uint64(1), uint64(1), "a.html", "k1", now, true).
			AddRow(uint64(2), uint64(1), "b.html", "k2", now, false))

	apps, err := repo.ListByOwner(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.True(t, apps[0].Locked)
	assert.False(t, apps[1].Locked)
}

func TestWebAppRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebAppRepo(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO webapps (owner_id, filename, storage_key) VALUES (?, ?, ?)`)).
		WithArgs(uint64(1), "a.html", "apps/x.html").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT created_at FROM webapps WHERE id = ?`)).
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	a := &model.WebApp{OwnerID: 1, Filename: "a.html", StorageKey: "apps/x.html"}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.Equal(t, uint64(11), a.ID)
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("Ann", "0123456789", sqlmock.AnyArg(), "").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.Create(context.Background(), "Ann", "0123456789", "secret", "", 4)
	assert.ErrorIs(t, err, ErrMobileExists)
}

func TestUserRepo_GetByMobile_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE mobile=\?`).WithArgs("0123456789").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByMobile(context.Background(), "0123456789")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepo_ValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	cols := []string{"user_id", "session_id", "expires_at", "revoked_at"}

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("live").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(uint64(4), "sid-1", time.Now().UTC().Add(time.Hour), nil))
	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("expired").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(uint64(4), "sid-1", time.Now().UTC().Add(-time.Hour), nil))

	uid, sid, err := repo.ValidateRefresh(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), uid)
	assert.Equal(t, "sid-1", sid)

	_, _, err = repo.ValidateRefresh(context.Background(), "expired")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
