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
	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/service"
)

// LikesHandler serves like-status writes and reads for posts and comments.
type LikesHandler struct {
	Likes *service.LikeService
}

func NewLikesHandler(likes *service.LikeService) *LikesHandler {
	return &LikesHandler{Likes: likes}
}

type likeStatusReq struct {
	LikeStatus string `json:"likeStatus" validate:"required,oneof=None Like Dislike"`
}

func (h *LikesHandler) SetPostStatus(c echo.Context) error {
	return h.setStatus(c, model.SubjectPost, "postId")
}

func (h *LikesHandler) SetCommentStatus(c echo.Context) error {
	return h.setStatus(c, model.SubjectComment, "commentId")
}

func (h *LikesHandler) PostLikes(c echo.Context) error {
	return h.info(c, model.SubjectPost, "postId")
}

func (h *LikesHandler) CommentLikes(c echo.Context) error {
	return h.info(c, model.SubjectComment, "commentId")
}

// subjectFrom reads the subject id path parameter. A non-numeric id
// cannot name an existing subject.
func subjectFrom(c echo.Context, kind model.SubjectKind, param string) (model.Subject, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		return model.Subject{}, false
	}
	return model.Subject{Kind: kind, ID: id}, true
}

func (h *LikesHandler) setStatus(c echo.Context, kind model.SubjectKind, param string) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	subject, ok := subjectFrom(c, kind, param)
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	var req likeStatusReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	status, _ := model.ParseLikeStatus(req.LikeStatus)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Likes.SetStatus(ctx, subject, uid, status)
	if errors.Is(err, service.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		logger.Error().Err(err).Str("kind", string(kind)).Uint64("subject_id", subject.ID).Msg("set like status failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LikesHandler) info(c echo.Context, kind model.SubjectKind, param string) error {
	subject, ok := subjectFrom(c, kind, param)
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	viewer, _ := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info, err := h.Likes.Info(ctx, subject, viewer)
	if errors.Is(err, service.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		logger.Error().Err(err).Msg("likes info failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, info)
}
