package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/service"
)

// AdminHandler serves super-admin endpoints under /sa.
type AdminHandler struct {
	Auth *service.AuthService
}

func NewAdminHandler(auth *service.AuthService) *AdminHandler {
	return &AdminHandler{Auth: auth}
}

type banReq struct {
	IsBanned  *bool  `json:"isBanned" validate:"required"`
	BanReason string `json:"banReason" validate:"required,min=20"`
}

// BanUser bans or unbans an account. Banning revokes all its sessions.
func (h *AdminHandler) BanUser(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.NoContent(http.StatusNotFound)
	}
	var req banReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err = h.Auth.SetBan(ctx, id, *req.IsBanned, req.BanReason)
	if errors.Is(err, service.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		logger.Error().Err(err).Uint64("user_id", id).Msg("ban user failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
