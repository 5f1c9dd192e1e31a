package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/service"
)

// SessionResolver turns a raw refresh token into a live session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, raw string) (service.SessionContext, error)
}

// RefreshSession guards routes authenticated by the refreshToken cookie.
// The cookie must hold a refresh token that verifies, has not been
// rotated away, and still maps to a device row of its user. The resolved
// session is available through Session.
func RefreshSession(r SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(RefreshCookie)
			if err != nil || cookie.Value == "" {
				return c.NoContent(http.StatusUnauthorized)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			sc, err := r.ResolveSession(ctx, cookie.Value)
			if errors.Is(err, service.ErrUnauthorized) {
				return c.NoContent(http.StatusUnauthorized)
			}
			if err != nil {
				logger.Error().Err(err).Str("path", c.Path()).Msg("resolve session")
				return c.NoContent(http.StatusInternalServerError)
			}
			c.Set(sessionKey, sc)
			return next(c)
		}
	}
}
