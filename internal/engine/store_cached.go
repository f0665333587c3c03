package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	profileCacheTTL = 10 * time.Minute
	pathCacheTTL    = 10 * time.Minute
)

// CachedStore wraps a Store with a Redis read-through cache for the two hot
// lookups, profiles and current paths. Cache failures are logged and the
// backing store answers; writes invalidate before they land so a stale entry
// can only survive one TTL.
type CachedStore struct {
	Store
	client *redis.Client
}

// NewCachedStore wraps store with a Redis cache.
func NewCachedStore(store Store, client *redis.Client) *CachedStore {
	return &CachedStore{Store: store, client: client}
}

func profileCacheKey(studentID string) string {
	return "profile:" + studentID
}

func pathCacheKey(studentID, courseID string) string {
	return "path:" + studentID + ":" + courseID
}

func (s *CachedStore) LoadProfile(ctx context.Context, studentID string) (*StudentProfile, error) {
	key := profileCacheKey(studentID)
	if data, err := s.client.Get(ctx, key).Bytes(); err == nil {
		var p StudentProfile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("profile cache read failed", "student_id", studentID, "error", err)
	}

	p, err := s.Store.LoadProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, p, profileCacheTTL)
	return p, nil
}

func (s *CachedStore) SaveProfile(ctx context.Context, profile *StudentProfile) error {
	s.invalidate(ctx, profileCacheKey(profile.StudentID))
	return s.Store.SaveProfile(ctx, profile)
}

func (s *CachedStore) LoadPath(ctx context.Context, studentID, courseID string) (*PathAssignment, error) {
	key := pathCacheKey(studentID, courseID)
	if data, err := s.client.Get(ctx, key).Bytes(); err == nil {
		var a PathAssignment
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("path cache read failed", "student_id", studentID, "error", err)
	}

	a, err := s.Store.LoadPath(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, a, pathCacheTTL)
	return a, nil
}

func (s *CachedStore) SavePath(ctx context.Context, assignment *PathAssignment) error {
	s.invalidate(ctx, pathCacheKey(assignment.StudentID, assignment.CourseID))
	return s.Store.SavePath(ctx, assignment)
}

func (s *CachedStore) AdvancePath(ctx context.Context, studentID, courseID string, version, position int) error {
	s.invalidate(ctx, pathCacheKey(studentID, courseID))
	return s.Store.AdvancePath(ctx, studentID, courseID, version, position)
}

func (s *CachedStore) fill(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Warn("cache fill failed", "key", key, "error", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache invalidation failed", "key", key, "error", err)
	}
}
