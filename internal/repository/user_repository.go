package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrMobileExists = errors.New("mobile already registered")

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, mobile, password, hint string, cost int) (uint64, error) {
	mobile = strings.TrimSpace(mobile)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, mobile, password_hash, hint) VALUES (?,?,?,?)",
		name, mobile, hash, hint)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrMobileExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByMobile fetches a user by mobile number. Missing rows yield ErrNotFound.
func (r *UserRepo) GetByMobile(ctx context.Context, mobile string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,mobile,password_hash,hint,created_at FROM users WHERE mobile=? LIMIT 1",
		strings.TrimSpace(mobile)).Scan(&u.ID, &u.Name, &u.Mobile, &u.PasswordHash, &u.Hint, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id. Missing rows yield ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,mobile,password_hash,hint,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Name, &u.Mobile, &u.PasswordHash, &u.Hint, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}
