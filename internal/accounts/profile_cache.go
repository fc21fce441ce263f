package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// missingProfile marks a cached "no profile" answer so absent profiles do
// not fall through to the database on every booking.
const missingProfile = "none"

// ProfileCache fronts a Directory with Redis for schedule profile reads.
// Every other lookup passes straight through.
type ProfileCache struct {
	Directory
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewProfileCache wraps dir. A nil client disables caching.
func NewProfileCache(dir Directory, client *redis.Client, ttl time.Duration, logger *logging.Logger) *ProfileCache {
	if dir == nil {
		panic("accounts: directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{Directory: dir, redis: client, ttl: ttl, logger: logger}
}

func (c *ProfileCache) key(userID uuid.UUID) string {
	return fmt.Sprintf("schedule_profile:%s", userID)
}

// ScheduleProfile serves from Redis when possible. Cache errors are logged
// and the directory is consulted instead.
func (c *ProfileCache) ScheduleProfile(ctx context.Context, userID uuid.UUID) (*ScheduleProfile, error) {
	if c.redis == nil {
		return c.Directory.ScheduleProfile(ctx, userID)
	}
	data, err := c.redis.Get(ctx, c.key(userID)).Bytes()
	switch {
	case err == nil:
		if string(data) == missingProfile {
			return nil, ErrProfileNotFound
		}
		var p ScheduleProfile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		c.logger.Warn("discarding corrupt cached schedule profile", "user_id", userID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("schedule profile cache read failed", "error", err, "user_id", userID)
	}

	profile, err := c.Directory.ScheduleProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		c.store(ctx, userID, []byte(missingProfile))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(profile); err == nil {
		c.store(ctx, userID, data)
	}
	return profile, nil
}

// UpsertScheduleProfile writes through and drops the cached entry.
func (c *ProfileCache) UpsertScheduleProfile(ctx context.Context, profile ScheduleProfile) error {
	if err := c.Directory.UpsertScheduleProfile(ctx, profile); err != nil {
		return err
	}
	if c.redis != nil {
		if err := c.redis.Del(ctx, c.key(profile.UserID)).Err(); err != nil {
			c.logger.Warn("schedule profile cache invalidation failed", "error", err, "user_id", profile.UserID)
		}
	}
	return nil
}

func (c *ProfileCache) store(ctx context.Context, userID uuid.UUID, data []byte) {
	if err := c.redis.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("schedule profile cache write failed", "error", err, "user_id", userID)
	}
}
