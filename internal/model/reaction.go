package model

import "time"

// LikeStatus is a user's reaction to a post or comment.
type LikeStatus string

const (
	LikeStatusNone    LikeStatus = "None"
	LikeStatusLike    LikeStatus = "Like"
	LikeStatusDislike LikeStatus = "Dislike"
)

// ParseLikeStatus returns the status named by s. The match is exact:
// "like" or "LIKE" are rejected the same as any other unknown value.
func ParseLikeStatus(s string) (LikeStatus, bool) {
	switch LikeStatus(s) {
	case LikeStatusNone, LikeStatusLike, LikeStatusDislike:
		return LikeStatus(s), true
	}
	return "", false
}

// SubjectKind distinguishes the two reactable entities.
type SubjectKind string

const (
	SubjectPost    SubjectKind = "post"
	SubjectComment SubjectKind = "comment"
)

// Subject identifies the post or comment a reaction belongs to.
type Subject struct {
	Kind SubjectKind
	ID   uint64
}

// Counters are the aggregate like/dislike totals stored on the subject row.
type Counters struct {
	Likes    int64
	Dislikes int64
}

// Reaction mirrors a row of `post_likes` or `comment_likes`. At most one
// row exists per (subject, user).
type Reaction struct {
	Subject Subject
	UserID  uint64
	Status  LikeStatus
	AddedAt time.Time
}

// LikeDetails is one entry of the newest-likers display list.
type LikeDetails struct {
	AddedAt time.Time `json:"addedAt"`
	UserID  string    `json:"userId"`
	Login   string    `json:"login"`
}

// LikesInfo is the reaction summary returned to clients.
type LikesInfo struct {
	LikesCount    int64         `json:"likesCount"`
	DislikesCount int64         `json:"dislikesCount"`
	MyStatus      LikeStatus    `json:"myStatus"`
	NewestLikes   []LikeDetails `json:"newestLikes"`
}
