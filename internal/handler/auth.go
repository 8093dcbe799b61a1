package handler

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/config"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/session"
	"github.com/iliyamo/imagelock/internal/unlock"
	"github.com/iliyamo/imagelock/internal/utils"
)

// UserStore is satisfied by *repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, name, mobile, password, hint string, cost int) (uint64, error)
	GetByMobile(ctx context.Context, mobile string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is satisfied by *repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, sessionID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeSession(ctx context.Context, userID uint64, sessionID string) error
}

// AuthHandler bundles dependencies for auth endpoints. Each login opens a
// session (sid) that scopes refresh tokens and unlock records.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Tokens   TokenStore
	Unlocked unlock.Cache
	Ended    session.Revocations
	Log      logging.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, cache unlock.Cache, ended session.Revocations, log logging.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Unlocked: cache, Ended: ended, Log: log}
}

var mobileRe = regexp.MustCompile(`^\d{10}$`)

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	Hint     string `json:"hint"`
}
type loginReq struct {
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type forgotReq struct {
	Mobile string `json:"mobile"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}
type meResp struct {
	userPart
	SessionID string `json:"session_id"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register creates an account. The client logs in afterwards.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.Hint = strings.TrimSpace(req.Hint)
	if req.Name == "" || req.Mobile == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, mobile and password are required"})
	}
	if !mobileRe.MatchString(req.Mobile) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mobile number must be exactly 10 digits"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Mobile, req.Password, req.Hint, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrMobileExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "mobile number already registered"})
		}
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "password is too long"})
		}
		h.Log.Error(ctx, "create user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return c.JSON(http.StatusCreated, userPart{ID: uid, Name: req.Name, Mobile: req.Mobile})
}

// Login verifies credentials and opens a new session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Mobile == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mobile/password required"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByMobile(ctx, req.Mobile)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid mobile or password"})
		}
		h.Log.Error(ctx, "load user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid mobile or password"})
	}
	return h.issue(ctx, c, u, utils.NewSessionID(), http.StatusOK)
}

// Refresh rotates the refresh token within the same session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	uid, sid, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Error(ctx, "revoke refresh failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke refresh failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return h.issue(ctx, c, u, sid, http.StatusOK)
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, u model.User, sid string, status int) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, sid, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, sid, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error(ctx, "save refresh failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Name: u.Name, Mobile: u.Mobile},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}

// Logout ends the current session: its refresh tokens are revoked and its
// unlock record is cleared. Other sessions of the account stay logged in.
func (h *AuthHandler) Logout(c echo.Context) error {
	sess := sessionOf(c)
	ctx, cancel := requestCtx(c)
	defer cancel()

	// access tokens of the sid stay signed until they expire
	ttl := time.Duration(h.Cfg.AccessTTLMin) * time.Minute
	if err := h.Ended.Revoke(ctx, sess.ID, ttl); err != nil {
		h.Log.Error(ctx, "end session failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	if err := h.Tokens.RevokeSession(ctx, sess.AccountID, sess.ID); err != nil {
		h.Log.Error(ctx, "revoke session failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	if err := h.Unlocked.Clear(ctx, sess.ID); err != nil {
		h.Log.Warn(ctx, "unlock cache clear failed", "err", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword returns the stored account hint for a mobile number.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Mobile = strings.TrimSpace(req.Mobile)
	if !mobileRe.MatchString(req.Mobile) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "enter a valid 10-digit mobile number"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByMobile(ctx, req.Mobile)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no account found with that mobile number"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"hint": u.Hint})
}

// Me returns the current account.
func (h *AuthHandler) Me(c echo.Context) error {
	sess := sessionOf(c)
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, meResp{
		userPart:  userPart{ID: u.ID, Name: u.Name, Mobile: u.Mobile},
		SessionID: sess.ID,
	})
}
