package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

type countingDirectory struct {
	*MemoryDirectory
	profileReads int
}

func (c *countingDirectory) ScheduleProfile(ctx context.Context, userID uuid.UUID) (*ScheduleProfile, error) {
	c.profileReads++
	return c.MemoryDirectory.ScheduleProfile(ctx, userID)
}

func TestProfileCacheServesRepeatReadsFromRedis(t *testing.T) {
	client, mr := setupTestRedis(t)
	backing := &countingDirectory{MemoryDirectory: NewMemoryDirectory()}
	userID := uuid.New()
	require.NoError(t, backing.UpsertScheduleProfile(context.Background(), ScheduleProfile{
		UserID:   userID,
		WorkDays: []time.Weekday{time.Monday},
		Start:    calendar.MustClock("10:00"),
		End:      calendar.MustClock("18:00"),
	}))

	cache := NewProfileCache(backing, client, time.Minute, nil)
	ctx := context.Background()

	first, err := cache.ScheduleProfile(ctx, userID)
	require.NoError(t, err)
	second, err := cache.ScheduleProfile(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.profileReads)
	assert.Equal(t, first.WorkDays, second.WorkDays)
	assert.Equal(t, first.End, second.End)
	assert.True(t, mr.Exists("schedule_profile:"+userID.String()))
	assert.Equal(t, time.Minute, mr.TTL("schedule_profile:"+userID.String()))
}

func TestProfileCacheRemembersMissingProfile(t *testing.T) {
	client, _ := setupTestRedis(t)
	backing := &countingDirectory{MemoryDirectory: NewMemoryDirectory()}
	cache := NewProfileCache(backing, client, time.Minute, nil)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := cache.ScheduleProfile(context.Background(), userID)
		assert.ErrorIs(t, err, ErrProfileNotFound)
	}
	assert.Equal(t, 1, backing.profileReads)
}

func TestProfileCacheInvalidatesOnUpsert(t *testing.T) {
	client, mr := setupTestRedis(t)
	backing := &countingDirectory{MemoryDirectory: NewMemoryDirectory()}
	cache := NewProfileCache(backing, client, time.Minute, nil)
	userID := uuid.New()
	ctx := context.Background()

	_, err := cache.ScheduleProfile(ctx, userID)
	require.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, cache.UpsertScheduleProfile(ctx, ScheduleProfile{
		UserID:   userID,
		WorkDays: []time.Weekday{time.Tuesday},
		Start:    calendar.MustClock("08:00"),
		End:      calendar.MustClock("12:00"),
	}))
	assert.False(t, mr.Exists("schedule_profile:"+userID.String()))

	p, err := cache.ScheduleProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Tuesday}, p.WorkDays)
}

func TestProfileCacheWithoutRedis(t *testing.T) {
	backing := &countingDirectory{MemoryDirectory: NewMemoryDirectory()}
	cache := NewProfileCache(backing, nil, 0, nil)
	_, err := cache.ScheduleProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = cache.ScheduleProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, 2, backing.profileReads)
}
