package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/blogger-platform/internal/model"
)

// LikeFeed serves the newest-likers display list of a subject.
type LikeFeed interface {
	Newest(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error)
	// Invalidate is called after a transition into or out of Like.
	Invalidate(ctx context.Context, subject model.Subject) error
}

// NewestLikesSource is the authoritative query behind every feed.
type NewestLikesSource interface {
	NewestLikes(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error)
}

// SQLLikeFeed reads the list straight from the reactions table.
type SQLLikeFeed struct {
	Source NewestLikesSource
}

func (f SQLLikeFeed) Newest(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error) {
	return f.Source.NewestLikes(ctx, subject, limit)
}

func (SQLLikeFeed) Invalidate(context.Context, model.Subject) error { return nil }

// RedisLikeFeed keeps each subject's list in a Redis list of JSON entries,
// newest first, filled from the fallback feed on a miss and dropped on
// every transition that touches Like. TTL bounds how long a list can
// outlive a missed invalidation.
type RedisLikeFeed struct {
	RDB      *redis.Client
	Fallback LikeFeed
	Prefix   string
	TTL      time.Duration
}

// NewLikeFeed picks the Redis-backed feed when a client is available.
func NewLikeFeed(rdb *redis.Client, source NewestLikesSource) LikeFeed {
	sqlFeed := SQLLikeFeed{Source: source}
	if rdb == nil {
		return sqlFeed
	}
	return &RedisLikeFeed{RDB: rdb, Fallback: sqlFeed, Prefix: "likes:newest", TTL: 5 * time.Minute}
}

func (f *RedisLikeFeed) key(subject model.Subject, limit int) string {
	return fmt.Sprintf("%s:%s:%d:%d", f.Prefix, subject.Kind, subject.ID, limit)
}

func (f *RedisLikeFeed) Newest(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error) {
	if limit <= 0 {
		return []model.LikeDetails{}, nil
	}
	key := f.key(subject, limit)
	raw, err := f.RDB.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err == nil && len(raw) > 0 {
		out := make([]model.LikeDetails, 0, len(raw))
		for _, s := range raw {
			var d model.LikeDetails
			if json.Unmarshal([]byte(s), &d) != nil {
				out = nil
				break
			}
			out = append(out, d)
		}
		if out != nil {
			return out, nil
		}
	}

	list, err := f.Fallback.Newest(ctx, subject, limit)
	if err != nil || len(list) == 0 {
		return list, err
	}
	entries := make([]interface{}, 0, len(list))
	for _, d := range list {
		b, _ := json.Marshal(d)
		entries = append(entries, b)
	}
	_, _ = f.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.RPush(ctx, key, entries...)
		p.LTrim(ctx, key, 0, int64(limit-1))
		p.Expire(ctx, key, f.TTL)
		return nil
	})
	return list, nil
}

// Invalidate drops the cached list for every limit it may be stored under.
func (f *RedisLikeFeed) Invalidate(ctx context.Context, subject model.Subject) error {
	pattern := fmt.Sprintf("%s:%s:%d:*", f.Prefix, subject.Kind, subject.ID)
	iter := f.RDB.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return f.RDB.Del(ctx, keys...).Err()
}
