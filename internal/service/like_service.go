package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/repository"
)

// ReactionWriter runs the locked read-reduce-write of one reaction.
type ReactionWriter interface {
	ApplyReaction(ctx context.Context, subject model.Subject, userID uint64, at time.Time, decide repository.ReactionDecider) (bool, model.LikeStatus, error)
}

// ReactionReader serves the read side of reactions.
type ReactionReader interface {
	Counters(ctx context.Context, subject model.Subject) (model.Counters, error)
	Status(ctx context.Context, subject model.Subject, userID uint64) (*model.LikeStatus, error)
}

// LikeService sets and reports like statuses of posts and comments.
type LikeService struct {
	writer ReactionWriter
	reader ReactionReader
	feed   LikeFeed
	limit  int
	now    func() time.Time
}

func NewLikeService(w ReactionWriter, r ReactionReader, feed LikeFeed, newestLimit int) *LikeService {
	return &LikeService{writer: w, reader: r, feed: feed, limit: newestLimit, now: time.Now}
}

// SetStatus records userID's requested status on subject. Repeating the
// current status is accepted and writes nothing. An unknown subject yields
// ErrNotFound.
func (s *LikeService) SetStatus(ctx context.Context, subject model.Subject, userID uint64, requested model.LikeStatus) error {
	if _, ok := model.ParseLikeStatus(string(requested)); !ok {
		return fmt.Errorf("invalid like status %q", requested)
	}
	var prev model.LikeStatus
	written, status, err := s.writer.ApplyReaction(ctx, subject, userID, s.now().UTC(), reactionDecider(requested, &prev))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("apply reaction: %w", err)
	}
	if !written {
		return nil
	}
	if prev == model.LikeStatusLike || status == model.LikeStatusLike {
		if err := s.feed.Invalidate(ctx, subject); err != nil {
			logger.Warn().Err(err).Str("kind", string(subject.Kind)).Uint64("subject_id", subject.ID).Msg("newest likes invalidation failed")
		}
	}
	return nil
}

// Info returns the counters, the viewer's own status (None for anonymous
// viewers, viewerID 0) and the newest likers of subject.
func (s *LikeService) Info(ctx context.Context, subject model.Subject, viewerID uint64) (model.LikesInfo, error) {
	c, err := s.reader.Counters(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		return model.LikesInfo{}, ErrNotFound
	}
	if err != nil {
		return model.LikesInfo{}, fmt.Errorf("counters: %w", err)
	}
	info := model.LikesInfo{
		LikesCount:    c.Likes,
		DislikesCount: c.Dislikes,
		MyStatus:      model.LikeStatusNone,
		NewestLikes:   []model.LikeDetails{},
	}
	if viewerID != 0 {
		st, err := s.reader.Status(ctx, subject, viewerID)
		if err != nil {
			return model.LikesInfo{}, fmt.Errorf("status: %w", err)
		}
		if st != nil {
			info.MyStatus = *st
		}
	}
	newest, err := s.feed.Newest(ctx, subject, s.limit)
	if err != nil {
		return model.LikesInfo{}, fmt.Errorf("newest likes: %w", err)
	}
	if newest != nil {
		info.NewestLikes = newest
	}
	return info, nil
}
