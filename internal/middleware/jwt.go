package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	AccessUserID(raw string) (uint64, bool)
}

func bearerToken(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

// JWTAuth requires a valid Bearer access token and stores its user id in
// the context (read it with UserID). Failures are a bare 401.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return c.NoContent(http.StatusUnauthorized)
			}
			uid, ok := v.AccessUserID(raw)
			if !ok {
				return c.NoContent(http.StatusUnauthorized)
			}
			c.Set(userIDKey, uid)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for public routes: a valid token identifies the
// caller, a missing or invalid one leaves the request anonymous.
func OptionalJWT(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearerToken(c); ok {
				if uid, ok := v.AccessUserID(raw); ok {
					c.Set(userIDKey, uid)
				}
			}
			return next(c)
		}
	}
}
