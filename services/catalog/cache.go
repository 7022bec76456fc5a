package catalog

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// CourseCacheTTL bounds how stale a cached course price may be
const CourseCacheTTL = 5 * time.Minute

// Cache is the subset of the redis cache used for course lookups
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CachedService decorates a Service with a read-through course cache.
// Cache errors fall through to the catalog so a Redis outage only costs
// latency, never correctness.
type CachedService struct {
	inner Service
	cache Cache
	ttl   time.Duration
}

// NewCachedService wraps a catalog service with course caching
func NewCachedService(inner Service, cache Cache) *CachedService {
	return &CachedService{inner: inner, cache: cache, ttl: CourseCacheTTL}
}

func courseCacheKey(courseID uuid.UUID) string {
	return "catalog:course:" + courseID.String()
}

// GetCourse serves the course from cache when present, fetching and
// caching it otherwise
func (s *CachedService) GetCourse(ctx context.Context, courseID uuid.UUID) (*Course, error) {
	var cached Course
	if err := s.cache.GetJSON(ctx, courseCacheKey(courseID), &cached); err == nil {
		return &cached, nil
	}

	course, err := s.inner.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, courseCacheKey(courseID), course, s.ttl); err != nil {
		log.Printf("[CATALOG] Failed to cache course %s: %v", courseID, err)
	}
	return course, nil
}

// GetCourses resolves cached courses locally and fetches only the misses
func (s *CachedService) GetCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID]*Course, error) {
	courses := make(map[uuid.UUID]*Course, len(courseIDs))
	missing := make([]uuid.UUID, 0, len(courseIDs))
	for _, id := range courseIDs {
		if _, ok := courses[id]; ok {
			continue
		}
		var cached Course
		if err := s.cache.GetJSON(ctx, courseCacheKey(id), &cached); err == nil {
			courses[id] = &cached
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return courses, nil
	}

	fetched, err := s.inner.GetCourses(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, course := range fetched {
		courses[id] = course
		if err := s.cache.SetJSON(ctx, courseCacheKey(id), course, s.ttl); err != nil {
			log.Printf("[CATALOG] Failed to cache course %s: %v", id, err)
		}
	}
	return courses, nil
}
