package service

import (
	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/repository"
)

// Reduce applies one user's like-status change to the subject's counters.
// current is nil when the user has never reacted, which counts as None.
// The user's previous status is taken out of the counters and the
// requested one is put in, so requesting the current status changes
// nothing.
func Reduce(requested model.LikeStatus, current *model.LikeStatus, c model.Counters) (model.Counters, model.LikeStatus) {
	prev := model.LikeStatusNone
	if current != nil {
		prev = *current
	}
	if prev == requested {
		return c, requested
	}
	switch prev {
	case model.LikeStatusLike:
		c.Likes--
	case model.LikeStatusDislike:
		c.Dislikes--
	}
	switch requested {
	case model.LikeStatusLike:
		c.Likes++
	case model.LikeStatusDislike:
		c.Dislikes++
	}
	return c, requested
}

// reactionDecider adapts Reduce to the store's locked read-modify-write.
// Requests that would not change the stored status skip the write; prev
// receives the status found under the lock.
func reactionDecider(requested model.LikeStatus, prev *model.LikeStatus) repository.ReactionDecider {
	return func(current *model.LikeStatus, counters model.Counters) (model.Counters, model.LikeStatus, bool) {
		*prev = model.LikeStatusNone
		if current != nil {
			*prev = *current
		}
		if *prev == requested {
			return counters, requested, false
		}
		next, status := Reduce(requested, current, counters)
		return next, status, true
	}
}
