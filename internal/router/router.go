package router // package router defines how HTTP routes are registered for the API

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/blogger-platform/internal/handler"
	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/middleware"
)

// Deps is everything the HTTP surface needs from the composition root.
type Deps struct {
	Auth     *handler.AuthHandler
	Security *handler.SecurityHandler
	Likes    *handler.LikesHandler
	Admin    *handler.AdminHandler

	Access   middleware.AccessVerifier
	Sessions middleware.SessionResolver

	// AuthLimiter guards /auth; nil means no limiting.
	AuthLimiter echo.MiddlewareFunc

	SALogin    string
	SAPassword string
}

// New builds the Echo instance with request logging, panic recovery, the
// body validator and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(logger.EchoRecovery())
	e.Use(logger.EchoLogger())

	RegisterRoutes(e)
	RegisterAuth(e, d)
	RegisterSecurity(e, d)
	RegisterLikes(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers routes that need no authentication at all.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers /auth. Login, recovery and new-password take no
// credentials; refresh-token needs the refresh cookie; me needs a bearer
// access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/auth")
	if d.AuthLimiter != nil {
		g.Use(d.AuthLimiter)
	}
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh-token", d.Auth.RefreshToken, middleware.RefreshSession(d.Sessions))
	g.POST("/logout", d.Auth.Logout)
	g.POST("/password-recovery", d.Auth.PasswordRecovery)
	g.POST("/new-password", d.Auth.NewPassword)
	g.GET("/me", d.Auth.Me, middleware.JWTAuth(d.Access))
}

// RegisterSecurity registers the device-management routes, all behind the
// refresh cookie.
func RegisterSecurity(e *echo.Echo, d Deps) {
	g := e.Group("/security", middleware.RefreshSession(d.Sessions))
	g.GET("/devices", d.Security.Devices)
	g.DELETE("/devices", d.Security.DeleteOthers)
	g.DELETE("/devices/:deviceId", d.Security.DeleteDevice)
}

// RegisterLikes registers like-status writes (bearer required) and the
// likes summary (bearer optional) for posts and comments.
func RegisterLikes(e *echo.Echo, d Deps) {
	auth := middleware.JWTAuth(d.Access)
	optional := middleware.OptionalJWT(d.Access)

	e.PUT("/posts/:postId/like-status", d.Likes.SetPostStatus, auth)
	e.PUT("/comments/:commentId/like-status", d.Likes.SetCommentStatus, auth)
	e.GET("/posts/:postId/likes", d.Likes.PostLikes, optional)
	e.GET("/comments/:commentId/likes", d.Likes.CommentLikes, optional)
}

// RegisterAdmin registers /sa behind HTTP basic auth.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/sa", echomw.BasicAuth(func(user, pass string, _ echo.Context) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(d.SALogin)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(d.SAPassword)) == 1
		return userOK && passOK && d.SALogin != "", nil
	}))
	g.PUT("/users/:id/ban", d.Admin.BanUser)
}
