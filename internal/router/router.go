// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/imagelock/internal/handler"
	"github.com/iliyamo/imagelock/internal/middleware"
	"github.com/iliyamo/imagelock/internal/session"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers account routes. Register, login, refresh and
// forgot-password are open; logout and /me need a valid access token of a
// session that has not ended.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, ended session.Revocations) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/logout", a.Logout, middleware.JWTAuth(jwtSecret, ended))

	e.GET("/me", a.Me, middleware.JWTAuth(jwtSecret, ended))
}

// RegisterApps registers the uploaded app routes; all need a valid token.
func RegisterApps(e *echo.Echo, w *handler.WebAppHandler, jwtSecret string, ended session.Revocations) {
	g := e.Group("/apps", middleware.JWTAuth(jwtSecret, ended))
	g.POST("", w.Upload)
	g.GET("", w.List)
	g.DELETE("/:id", w.Delete)
	g.GET("/:id/content", w.Content)
}

// RegisterLock registers the image catalog and lock gate routes. The
// catalog listings are public and may be cached; the gate routes resolve
// the session without rejecting so denials share the {ok, msg} shape.
// limit is applied to the attempt endpoints.
func RegisterLock(e *echo.Echo, l *handler.LockHandler, jwtSecret string, ended session.Revocations, cache, limit echo.MiddlewareFunc) {
	e.GET("/images", l.Images, cache)
	e.GET("/categories", l.Categories, cache)

	sess := middleware.Session(jwtSecret, ended)
	e.GET("/lock/:id", l.Open, sess)
	e.POST("/passcode/:id", l.SetPasscode, sess)
	e.POST("/passcode/:id/hint", l.Hint, sess, limit)
	e.POST("/unlock/:id", l.Unlock, sess, limit)
}
