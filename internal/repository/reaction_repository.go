package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/blogger-platform/internal/model"
)

// ReactionRepo stores per-user like statuses in `post_likes` and
// `comment_likes` and the aggregate counters on `posts` and `comments`.
// Both subject kinds share one schema shape, so every query is built from
// the table pair of the subject kind.
type ReactionRepo struct{ DB *sql.DB }

func NewReactionRepo(db *sql.DB) *ReactionRepo { return &ReactionRepo{DB: db} }

type reactionTables struct {
	subject string // posts | comments
	likes   string // post_likes | comment_likes
	fk      string // post_id | comment_id
}

func tablesFor(kind model.SubjectKind) (reactionTables, error) {
	switch kind {
	case model.SubjectPost:
		return reactionTables{subject: "posts", likes: "post_likes", fk: "post_id"}, nil
	case model.SubjectComment:
		return reactionTables{subject: "comments", likes: "comment_likes", fk: "comment_id"}, nil
	}
	return reactionTables{}, fmt.Errorf("unknown subject kind %q", kind)
}

// ReactionDecider receives the caller's prior status (nil when no row
// exists) and the locked counters, and returns the counters and status to
// persist. write == false leaves both untouched.
type ReactionDecider func(current *model.LikeStatus, counters model.Counters) (next model.Counters, status model.LikeStatus, write bool)

// ApplyReaction locks the subject's counter row, lets decide compute the
// transition and persists it, all in one transaction. It returns whether
// anything was written and the status that is now in effect.
func (s *Store) ApplyReaction(ctx context.Context, subject model.Subject, userID uint64, at time.Time, decide ReactionDecider) (bool, model.LikeStatus, error) {
	var (
		written bool
		status  model.LikeStatus
	)
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		counters, err := s.Reactions.LockCountersTx(ctx, tx, subject)
		if err != nil {
			return err
		}
		current, err := s.Reactions.status(ctx, tx, subject, userID)
		if err != nil {
			return err
		}
		next, st, write := decide(current, counters)
		status = st
		if !write {
			return nil
		}
		if err := s.Reactions.UpsertTx(ctx, tx, model.Reaction{Subject: subject, UserID: userID, Status: st, AddedAt: at}); err != nil {
			return err
		}
		if err := s.Reactions.SetCountersTx(ctx, tx, subject, next); err != nil {
			return err
		}
		written = true
		return nil
	})
	return written, status, err
}

// LockCountersTx reads the subject's counters with a row lock. A missing
// subject yields ErrNotFound.
func (r *ReactionRepo) LockCountersTx(ctx context.Context, tx *sql.Tx, subject model.Subject) (model.Counters, error) {
	t, err := tablesFor(subject.Kind)
	if err != nil {
		return model.Counters{}, err
	}
	return scanCounters(tx.QueryRowContext(ctx,
		"SELECT likes_count, dislikes_count FROM "+t.subject+" WHERE id=? FOR UPDATE", subject.ID))
}

// Counters reads the subject's counters without locking.
func (r *ReactionRepo) Counters(ctx context.Context, subject model.Subject) (model.Counters, error) {
	t, err := tablesFor(subject.Kind)
	if err != nil {
		return model.Counters{}, err
	}
	return scanCounters(r.DB.QueryRowContext(ctx,
		"SELECT likes_count, dislikes_count FROM "+t.subject+" WHERE id=?", subject.ID))
}

// Status returns the user's stored status, or nil when no row exists.
func (r *ReactionRepo) Status(ctx context.Context, subject model.Subject, userID uint64) (*model.LikeStatus, error) {
	return r.status(ctx, r.DB, subject, userID)
}

func (r *ReactionRepo) status(ctx context.Context, q dbtx, subject model.Subject, userID uint64) (*model.LikeStatus, error) {
	t, err := tablesFor(subject.Kind)
	if err != nil {
		return nil, err
	}
	var raw string
	err = q.QueryRowContext(ctx,
		"SELECT status FROM "+t.likes+" WHERE "+t.fk+"=? AND user_id=?", subject.ID, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st, ok := model.ParseLikeStatus(raw)
	if !ok {
		return nil, fmt.Errorf("stored like status %q is invalid", raw)
	}
	return &st, nil
}

// UpsertTx writes the user's status, creating the row on first reaction.
func (r *ReactionRepo) UpsertTx(ctx context.Context, tx *sql.Tx, re model.Reaction) error {
	t, err := tablesFor(re.Subject.Kind)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+t.likes+" ("+t.fk+", user_id, status, added_at) VALUES (?,?,?,?) "+
			"ON DUPLICATE KEY UPDATE status=VALUES(status), added_at=VALUES(added_at)",
		re.Subject.ID, re.UserID, string(re.Status), re.AddedAt.UTC())
	return err
}

// SetCountersTx overwrites the subject's counters.
func (r *ReactionRepo) SetCountersTx(ctx context.Context, tx *sql.Tx, subject model.Subject, c model.Counters) error {
	t, err := tablesFor(subject.Kind)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE "+t.subject+" SET likes_count=?, dislikes_count=? WHERE id=?", c.Likes, c.Dislikes, subject.ID)
	return err
}

// NewestLikes returns up to limit users whose current status is Like,
// newest first.
func (r *ReactionRepo) NewestLikes(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error) {
	t, err := tablesFor(subject.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT l.added_at, u.id, u.login FROM "+t.likes+" l JOIN users u ON u.id = l.user_id "+
			"WHERE l."+t.fk+"=? AND l.status='Like' ORDER BY l.added_at DESC LIMIT ?",
		subject.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.LikeDetails{}
	for rows.Next() {
		var (
			d   model.LikeDetails
			uid uint64
		)
		if err := rows.Scan(&d.AddedAt, &uid, &d.Login); err != nil {
			return nil, err
		}
		d.UserID = strconv.FormatUint(uid, 10)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanCounters(row *sql.Row) (model.Counters, error) {
	var c model.Counters
	if err := row.Scan(&c.Likes, &c.Dislikes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Counters{}, ErrNotFound
		}
		return model.Counters{}, err
	}
	return c, nil
}
