package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tutorledger:summary:"

type redisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) SummaryCache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func summaryKey(teacherID uuid.UUID) string {
	return keyPrefix + teacherID.String()
}

func (c *redisCache) Get(ctx context.Context, teacherID uuid.UUID) (*models.FinancialSummary, bool, error) {
	val, err := c.rdb.Get(ctx, summaryKey(teacherID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached summary: %w", err)
	}

	var summary models.FinancialSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return &summary, true, nil
}

func (c *redisCache) Set(ctx context.Context, summary *models.FinancialSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.rdb.Set(ctx, summaryKey(summary.TeacherID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}
	return nil
}

func (c *redisCache) Invalidate(ctx context.Context, teacherID uuid.UUID) error {
	if err := c.rdb.Del(ctx, summaryKey(teacherID)).Err(); err != nil {
		return fmt.Errorf("invalidate summary: %w", err)
	}
	return nil
}
