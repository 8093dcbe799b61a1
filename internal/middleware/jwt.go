package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/session"
	"github.com/iliyamo/imagelock/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the resulting session in the context (see SessionFrom). Requests
// without a valid token, or whose session was ended by logout, are rejected
// with 401. revoked may be nil.
func JWTAuth(secret string, revoked session.Revocations) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			sess, ok := resolve(c, secret, raw, revoked)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			setSession(c, sess)
			return next(c)
		}
	}
}

// Session resolves the session like JWTAuth but never rejects: requests
// without a live token continue anonymously and the handler decides.
// The lock endpoints use it so every denial shares one response shape.
func Session(secret string, revoked session.Revocations) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearer(c); ok {
				if sess, ok := resolve(c, secret, raw, revoked); ok {
					setSession(c, sess)
				}
			}
			return next(c)
		}
	}
}

// resolve parses raw and checks that its session has not ended. A failed
// revocation lookup counts as ended.
func resolve(c echo.Context, secret, raw string, revoked session.Revocations) (model.Session, bool) {
	sess, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return model.Session{}, false
	}
	if revoked != nil {
		gone, err := revoked.IsRevoked(c.Request().Context(), sess.ID)
		if err != nil || gone {
			return model.Session{}, false
		}
	}
	return sess, true
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}
