package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	entries map[string][]byte
	broken  bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.broken {
		return errors.New("connection refused")
	}
	raw, ok := m.entries[key]
	if !ok {
		return errors.New("key not found in cache")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.broken {
		return errors.New("connection refused")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

type countingCatalog struct {
	courses     map[uuid.UUID]*Course
	singleCalls int
	batchCalls  int
}

func (c *countingCatalog) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	c.singleCalls++
	course, ok := c.courses[id]
	if !ok {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

func (c *countingCatalog) GetCourses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Course, error) {
	c.batchCalls++
	out := make(map[uuid.UUID]*Course, len(ids))
	for _, id := range ids {
		if course, ok := c.courses[id]; ok {
			out[id] = course
		}
	}
	return out, nil
}

func TestCachedServiceServesRepeatLookupsFromCache(t *testing.T) {
	courseID := uuid.New()
	inner := &countingCatalog{courses: map[uuid.UUID]*Course{
		courseID: {ID: courseID, Title: "Cached Course", FinalPrice: 250000, IsPublished: true},
	}}
	svc := NewCachedService(inner, newMemoryCache())
	ctx := context.Background()

	first, err := svc.GetCourse(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.singleCalls)

	second, err := svc.GetCourse(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.singleCalls, "second lookup must not reach the catalog")
	assert.Equal(t, first.FinalPrice, second.FinalPrice)
	assert.Equal(t, first.Title, second.Title)
}

func TestCachedServiceFetchesOnlyMisses(t *testing.T) {
	cachedID := uuid.New()
	freshID := uuid.New()
	inner := &countingCatalog{courses: map[uuid.UUID]*Course{
		cachedID: {ID: cachedID, Title: "Warm", FinalPrice: 100000, IsPublished: true},
		freshID:  {ID: freshID, Title: "Cold", FinalPrice: 200000, IsPublished: true},
	}}
	svc := NewCachedService(inner, newMemoryCache())
	ctx := context.Background()

	_, err := svc.GetCourse(ctx, cachedID)
	require.NoError(t, err)

	courses, err := svc.GetCourses(ctx, []uuid.UUID{cachedID, freshID})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, 1, inner.batchCalls)
	assert.Equal(t, "Warm", courses[cachedID].Title)
	assert.Equal(t, "Cold", courses[freshID].Title)

	// Fully warm batch never leaves the cache
	_, err = svc.GetCourses(ctx, []uuid.UUID{cachedID, freshID})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachedServiceDegradesWhenCacheIsDown(t *testing.T) {
	courseID := uuid.New()
	inner := &countingCatalog{courses: map[uuid.UUID]*Course{
		courseID: {ID: courseID, Title: "Direct", FinalPrice: 300000, IsPublished: true},
	}}
	svc := NewCachedService(inner, &memoryCache{broken: true})
	ctx := context.Background()

	course, err := svc.GetCourse(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, "Direct", course.Title)
	assert.Equal(t, 1, inner.singleCalls)

	// Misses are not cached and errors still surface
	_, err = svc.GetCourse(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrCourseNotFound)
}
