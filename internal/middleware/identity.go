package middleware

// identity.go holds the context keys the auth middleware fills in and the
// accessors handlers use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/blogger-platform/internal/service"
)

const (
	// RefreshCookie is the name of the cookie carrying the refresh token.
	RefreshCookie = "refreshToken"

	userIDKey  = "user_id"
	sessionKey = "session"
)

// UserID returns the user authenticated by a bearer access token.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(userIDKey).(uint64)
	return id, ok && id != 0
}

// Session returns the session resolved from the refresh cookie.
func Session(c echo.Context) (service.SessionContext, bool) {
	sc, ok := c.Get(sessionKey).(service.SessionContext)
	return sc, ok
}

// currentUserID names the caller for rate-limit keys: the bearer user,
// else the session user, else "anon".
func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	if sc, ok := Session(c); ok {
		return strconv.FormatUint(sc.UserID, 10)
	}
	return "anon"
}
