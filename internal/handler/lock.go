package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/lockgate"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/sequence"
)

// LockHandler exposes the lock gate. Every denial is answered with
// {"ok": false, "msg": ...} and a status derived from the gate's error.
type LockHandler struct {
	Gate *lockgate.Gate
	Log  logging.Logger
}

func NewLockHandler(g *lockgate.Gate, log logging.Logger) *LockHandler {
	return &LockHandler{Gate: g, Log: log}
}

type passcodeReq struct {
	Category string          `json:"category" form:"category"`
	Sequence json.RawMessage `json:"sequence"`
	Hint     string          `json:"hint" form:"hint"`
}

type unlockReq struct {
	Sequence json.RawMessage `json:"sequence"`
}

func deny(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"ok": false, "msg": msg})
}

// fail maps a gate error to its response. Unexpected errors are logged and
// reported without detail.
func (h *LockHandler) fail(c echo.Context, err error) error {
	var lockedOut *lockgate.LockedOutError
	switch {
	case errors.Is(err, lockgate.ErrUnauthenticated):
		return deny(c, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, lockgate.ErrUnauthorized):
		return deny(c, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, lockgate.ErrVerificationFailed):
		return deny(c, http.StatusForbidden, "Incorrect sequence")
	case errors.As(err, &lockedOut):
		secs := int(math.Ceil(lockedOut.RetryAfter.Seconds()))
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return deny(c, http.StatusTooManyRequests, "Too many attempts, try again later")
	case errors.Is(err, lockgate.ErrNoPasscodeSet):
		return deny(c, http.StatusBadRequest, "No image password set")
	case errors.Is(err, lockgate.ErrInvalidSequence):
		return deny(c, http.StatusBadRequest, "Invalid sequence")
	case errors.Is(err, lockgate.ErrInvalidCategory):
		return deny(c, http.StatusBadRequest, "Invalid category")
	}
	h.Log.Error(c.Request().Context(), "lock gate failed", "path", c.Path(), "err", err)
	return deny(c, http.StatusInternalServerError, "Internal error")
}

// resourceID rejects malformed ids the same way as foreign ones.
func (h *LockHandler) resourceID(c echo.Context) (uint64, error) {
	if !sessionOf(c).Valid() {
		return 0, lockgate.ErrUnauthenticated
	}
	id, ok := parseID(c)
	if !ok {
		return 0, lockgate.ErrUnauthorized
	}
	return id, nil
}

// Images answers GET /images?category=C. Invalid or unknown categories
// yield an empty array, never an error status.
func (h *LockHandler) Images(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	imgs, err := h.Gate.Images(ctx, c.QueryParam("category"))
	if err != nil {
		h.Log.Warn(ctx, "list images failed", "err", err)
		imgs = []string{}
	}
	return c.JSON(http.StatusOK, imgs)
}

// Categories answers GET /categories.
func (h *LockHandler) Categories(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	cats, err := h.Gate.Categories(ctx)
	if err != nil {
		h.Log.Warn(ctx, "list categories failed", "err", err)
		cats = []string{}
	}
	return c.JSON(http.StatusOK, cats)
}

// Open answers GET /lock/:id with the board, or redirects to the content
// when there is nothing to unlock.
func (h *LockHandler) Open(c echo.Context) error {
	id, err := h.resourceID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	ch, err := h.Gate.Open(ctx, sessionOf(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	if ch.State != lockgate.Locked {
		return c.Redirect(http.StatusSeeOther, ch.URL)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, ch.Board)
}

// SetPasscode answers POST /passcode/:id. The sequence is a JSON array; a
// delimited string is still accepted, also as a form value.
func (h *LockHandler) SetPasscode(c echo.Context) error {
	id, err := h.resourceID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req passcodeReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, lockgate.ErrInvalidSequence)
	}
	seq, err := submittedSequence(c, req.Sequence)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	category := strings.TrimSpace(req.Category)
	if err := h.Gate.SetPasscode(ctx, sessionOf(c), id, category, seq, strings.TrimSpace(req.Hint)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "msg": "Image password updated"})
}

// Unlock answers POST /unlock/:id.
func (h *LockHandler) Unlock(c echo.Context) error {
	id, err := h.resourceID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req unlockReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, lockgate.ErrInvalidSequence)
	}
	seq, err := sequence.ParseSubmission(req.Sequence)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	url, err := h.Gate.Unlock(ctx, sessionOf(c), id, seq)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "msg": "Unlocked", "url": url})
}

// Hint answers POST /passcode/:id/hint with the passcode's recovery hint.
func (h *LockHandler) Hint(c echo.Context) error {
	id, err := h.resourceID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	hint, err := h.Gate.Hint(ctx, sessionOf(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "hint": hint})
}

// submittedSequence reads the sequence from the JSON body, falling back to
// the "sequence" form value for form posts.
func submittedSequence(c echo.Context, raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		if v := c.FormValue("sequence"); v != "" {
			return sequence.ParseDelimited(v)
		}
	}
	return sequence.ParseSubmission(raw)
}
