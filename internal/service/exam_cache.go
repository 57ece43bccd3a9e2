package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

const defaultExamCacheTTL = 30 * time.Second

// ExamRecordCache keeps stored exam records close to the student-facing
// availability check. Only persisted fields are cached; the dynamic status is
// always resolved by the caller.
type ExamRecordCache interface {
	Get(ctx context.Context, id uint) (models.Exam, bool)
	Set(ctx context.Context, exam models.Exam)
	Invalidate(ctx context.Context, id uint)
}

type redisExamRecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewExamRecordCache builds a Redis-backed record cache. A nil client yields a cache that never hits.
func NewExamRecordCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) ExamRecordCache {
	if ttl <= 0 {
		ttl = defaultExamCacheTTL
	}
	return &redisExamRecordCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "exam_record_cache").Logger(),
	}
}

func examCacheKey(id uint) string {
	return fmt.Sprintf("exams:record:v1:%d", id)
}

func (c *redisExamRecordCache) Get(ctx context.Context, id uint) (models.Exam, bool) {
	if c.client == nil {
		return models.Exam{}, false
	}

	cached, err := c.client.Get(ctx, examCacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Uint("exam_id", id).Msg("failed to read cached exam")
		}
		observability.ExamRecordCache().WithLabelValues("miss").Inc()
		return models.Exam{}, false
	}

	var exam models.Exam
	if err := json.Unmarshal([]byte(cached), &exam); err != nil {
		c.logger.Warn().Err(err).Uint("exam_id", id).Msg("discarding malformed cached exam")
		observability.ExamRecordCache().WithLabelValues("miss").Inc()
		return models.Exam{}, false
	}

	observability.ExamRecordCache().WithLabelValues("hit").Inc()
	return exam, true
}

func (c *redisExamRecordCache) Set(ctx context.Context, exam models.Exam) {
	if c.client == nil {
		return
	}

	payload, err := json.Marshal(exam)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, examCacheKey(exam.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("exam_id", exam.ID).Msg("failed to cache exam")
	}
}

func (c *redisExamRecordCache) Invalidate(ctx context.Context, id uint) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, examCacheKey(id)).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("exam_id", id).Msg("failed to invalidate cached exam")
	}
}
