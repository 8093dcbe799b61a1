package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/lockgate"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/storage"
)

// AppStore is satisfied by *repository.WebAppRepo.
type AppStore interface {
	Create(ctx context.Context, a *model.WebApp) error
	ListByOwner(ctx context.Context, ownerID uint64) ([]*model.WebApp, error)
	DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.WebApp, error)
}

// WebAppHandler serves upload, listing, deletion and gated content of apps.
type WebAppHandler struct {
	Apps     AppStore
	Store    storage.Store
	Gate     *lockgate.Gate
	MaxBytes int64
	Log      logging.Logger
}

func NewWebAppHandler(apps AppStore, st storage.Store, gate *lockgate.Gate, maxBytes int64, log logging.Logger) *WebAppHandler {
	return &WebAppHandler{Apps: apps, Store: st, Gate: gate, MaxBytes: maxBytes, Log: log}
}

// Upload stores a single .html file sent as the multipart field "file".
func (h *WebAppHandler) Upload(c echo.Context) error {
	sess := sessionOf(c)
	if h.MaxBytes > 0 {
		// room for the multipart envelope around the file
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.MaxBytes+64<<10)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "please choose an HTML file"})
	}
	name, ok := sanitizeFilename(fh.Filename)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "only .html files allowed"})
	}
	if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}
	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable file"})
	}
	defer src.Close()

	ctx, cancel := requestCtx(c)
	defer cancel()

	key := storage.NewKey(time.Now().UTC())
	if err := h.Store.Save(ctx, key, src); err != nil {
		h.Log.Error(ctx, "store upload failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}
	app := &model.WebApp{OwnerID: sess.AccountID, Filename: name, StorageKey: key}
	if err := h.Apps.Create(ctx, app); err != nil {
		_ = h.Store.Delete(ctx, key)
		h.Log.Error(ctx, "create app failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}
	return c.JSON(http.StatusCreated, app)
}

// List returns the caller's apps with their locked flag.
func (h *WebAppHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	apps, err := h.Apps.ListByOwner(ctx, sessionOf(c).AccountID)
	if err != nil {
		h.Log.Error(ctx, "list apps failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, apps)
}

// Delete removes the app, its passcode, its payload and every unlock record.
func (h *WebAppHandler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	sess := sessionOf(c)
	ctx, cancel := requestCtx(c)
	defer cancel()

	app, err := h.Apps.DeleteByIDAndOwner(ctx, id, sess.AccountID)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case err != nil:
		h.Log.Error(ctx, "delete app failed", "app_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := h.Store.Delete(ctx, app.StorageKey); err != nil {
		h.Log.Warn(ctx, "delete payload failed", "app_id", id, "err", err)
	}
	h.Gate.ResourceDeleted(ctx, sess, id)
	return c.NoContent(http.StatusNoContent)
}

// Content serves the app's HTML when the gate lets the session through and
// redirects to the lock board otherwise.
func (h *WebAppHandler) Content(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	app, err := h.Gate.Content(ctx, sessionOf(c), id)
	switch {
	case errors.Is(err, lockgate.ErrLocked):
		return c.Redirect(http.StatusSeeOther, "/lock/"+strconv.FormatUint(id, 10))
	case errors.Is(err, lockgate.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	case errors.Is(err, lockgate.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case err != nil:
		h.Log.Error(ctx, "content gate failed", "app_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	rc, err := h.Store.Open(ctx, app.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if err != nil {
		h.Log.Error(ctx, "open payload failed", "app_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	defer rc.Close()
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Stream(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, rc)
}

// sanitizeFilename keeps the base name, maps whitespace to "_", drops
// anything outside [A-Za-z0-9._-] and requires an .html extension.
func sanitizeFilename(name string) (string, bool) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if !strings.HasSuffix(strings.ToLower(out), ".html") || len(out) <= len(".html") {
		return "", false
	}
	return out, true
}
