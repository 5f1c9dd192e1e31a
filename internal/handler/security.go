package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/middleware"
	"github.com/iliyamo/blogger-platform/internal/service"
)

// SecurityHandler serves /security/devices. Every route runs behind
// middleware.RefreshSession.
type SecurityHandler struct {
	Auth *service.AuthService
}

func NewSecurityHandler(auth *service.AuthService) *SecurityHandler {
	return &SecurityHandler{Auth: auth}
}

type deviceView struct {
	IP             string    `json:"ip"`
	Title          string    `json:"title"`
	LastActiveDate time.Time `json:"lastActiveDate"`
	DeviceID       string    `json:"deviceId"`
}

// Devices lists the caller's active sessions.
func (h *SecurityHandler) Devices(c echo.Context) error {
	sc, ok := middleware.Session(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Auth.ListDevices(ctx, sc.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("list devices failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	out := make([]deviceView, 0, len(list))
	for _, s := range list {
		out = append(out, deviceView{IP: s.IP, Title: s.Title, LastActiveDate: s.LastActiveAt, DeviceID: s.DeviceID})
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteOthers terminates every session except the caller's.
func (h *SecurityHandler) DeleteOthers(c echo.Context) error {
	sc, ok := middleware.Session(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.DeleteOtherDevices(ctx, sc); err != nil {
		logger.Error().Err(err).Msg("delete other devices failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteDevice terminates one of the caller's other sessions.
func (h *SecurityHandler) DeleteDevice(c echo.Context) error {
	sc, ok := middleware.Session(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Auth.DeleteDevice(ctx, sc, c.Param("deviceId"))
	switch {
	case errors.Is(err, service.ErrForbidden):
		return c.NoContent(http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		return c.NoContent(http.StatusNotFound)
	case err != nil:
		logger.Error().Err(err).Msg("delete device failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
