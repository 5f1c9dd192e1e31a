package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/middleware"
	"github.com/iliyamo/blogger-platform/internal/service"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

// AuthHandler bundles dependencies for /auth endpoints.
type AuthHandler struct {
	Auth         *service.AuthService
	CookieSecure bool
}

func NewAuthHandler(auth *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Auth: auth, CookieSecure: cookieSecure}
}

// ----- DTOs -----

type loginReq struct {
	LoginOrEmail string `json:"loginOrEmail" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

type recoveryReq struct {
	Email string `json:"email" validate:"required,email"`
}

type newPasswordReq struct {
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=20"`
	RecoveryCode string `json:"recoveryCode" validate:"required"`
}

type accessResp struct {
	AccessToken string `json:"accessToken"`
}

type meResp struct {
	Email  string `json:"email"`
	Login  string `json:"login"`
	UserID string `json:"userId"`
}

// Login: verify credentials, open a device session, return the pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Auth.Login(ctx, service.LoginInput{
		LoginOrEmail: req.LoginOrEmail,
		Password:     req.Password,
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	})
	if errors.Is(err, service.ErrUnauthorized) || errors.Is(err, service.ErrEmailNotConfirmed) {
		return c.NoContent(http.StatusUnauthorized)
	}
	if err != nil {
		logger.Error().Err(err).Msg("login failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(http.StatusOK, accessResp{AccessToken: pair.AccessToken})
}

// RefreshToken: rotate the cookie's refresh token. The route runs behind
// middleware.RefreshSession.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	sc, ok := middleware.Session(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, sc, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(http.StatusOK, accessResp{AccessToken: pair.AccessToken})
}

// Logout: end the cookie's device session and clear the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie, err := c.Cookie(middleware.RefreshCookie)
	if err != nil || cookie.Value == "" {
		return c.NoContent(http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err = h.Auth.Logout(ctx, cookie.Value)
	if errors.Is(err, service.ErrUnauthorized) {
		return c.NoContent(http.StatusUnauthorized)
	}
	if err != nil {
		logger.Error().Err(err).Msg("logout failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// PasswordRecovery: queue a recovery mail. The answer is 204 whether or
// not the address is registered.
func (h *AuthHandler) PasswordRecovery(c echo.Context) error {
	var req recoveryReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.RequestPasswordRecovery(ctx, req.Email); err != nil {
		logger.Error().Err(err).Msg("password recovery failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// NewPassword: set a new password using a recovery code.
func (h *AuthHandler) NewPassword(c echo.Context) error {
	var req newPasswordReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Auth.ConfirmNewPassword(ctx, req.RecoveryCode, req.NewPassword)
	if errors.Is(err, service.ErrInvalidRecoveryCode) {
		return badRequest(c, FieldError{Message: "recovery code is incorrect or expired", Field: "recoveryCode"})
	}
	if err != nil {
		logger.Error().Err(err).Msg("new password failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me: the account behind the bearer token.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Me(ctx, uid)
	if errors.Is(err, service.ErrUnauthorized) {
		return c.NoContent(http.StatusUnauthorized)
	}
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, meResp{Email: u.Email, Login: u.Login, UserID: strconv.FormatUint(u.ID, 10)})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, tok utils.Token) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.RefreshCookie,
		Value:    tok.Raw,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
