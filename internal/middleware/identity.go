package middleware

// identity.go keeps the authenticated session in the Echo context and
// exposes the identifiers other middleware key on.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/model"
)

const sessionKey = "session"

func setSession(c echo.Context, s model.Session) {
	c.Set(sessionKey, s)
	c.Set("user_id", strconv.FormatUint(s.AccountID, 10))
}

// SessionFrom returns the session stored by JWTAuth or Session. The zero
// session (Valid() == false) is returned for anonymous requests.
func SessionFrom(c echo.Context) model.Session {
	if s, ok := c.Get(sessionKey).(model.Session); ok {
		return s
	}
	return model.Session{}
}

// userID returns the authenticated user id, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
