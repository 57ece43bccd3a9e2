package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

func TestExamAvailabilityServiceCheckCachesRecordNotStatus(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	db := setupExamTestDB(t)
	exams := repository.NewExamRepository(db)
	exam := createExam(t, exams, models.ExamStatusPublished, 0)

	cache := NewExamRecordCache(redisClient, time.Minute, zerolog.Nop())
	now := examWindowStart.Add(-time.Minute)
	clock := lifecycle.ClockFunc(func() time.Time { return now })
	service := NewExamAvailabilityService(exams, cache, clock, zerolog.Nop())

	first, err := service.Check(context.Background(), exam.ID)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.False(t, first.Available)
	require.Equal(t, models.DynamicStatusScheduled, first.DynamicStatus)
	require.True(t, mini.Exists(examCacheKey(exam.ID)))

	now = examWindowStart
	second, err := service.Check(context.Background(), exam.ID)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.True(t, second.Available)
	require.Equal(t, models.DynamicStatusActive, second.DynamicStatus)

	now = examWindowEnd.Add(time.Second)
	third, err := service.Check(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Equal(t, models.DynamicStatusCompleted, third.DynamicStatus)
}

func TestExamAvailabilityServiceStartAttempt(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	db := setupExamTestDB(t)
	exams := repository.NewExamRepository(db)
	exam := createExam(t, exams, models.ExamStatusPublished, 0)
	cache := NewExamRecordCache(redisClient, time.Minute, zerolog.Nop())

	early := NewExamAvailabilityService(exams, cache, lifecycle.FixedClock(examWindowStart.Add(-time.Second)), zerolog.Nop())
	_, err = early.StartAttempt(context.Background(), exam.ID, 31)
	require.ErrorIs(t, err, ErrExamUnavailable)

	_, err = early.Check(context.Background(), exam.ID)
	require.NoError(t, err)
	require.True(t, mini.Exists(examCacheKey(exam.ID)))

	open := NewExamAvailabilityService(exams, cache, lifecycle.FixedClock(examWindowEnd), zerolog.Nop())
	attempt, err := open.StartAttempt(context.Background(), exam.ID, 31)
	require.NoError(t, err)
	require.Equal(t, 1, attempt.StudentsAttempted)
	require.Equal(t, models.DynamicStatusActive, attempt.DynamicStatus)
	require.False(t, mini.Exists(examCacheKey(exam.ID)))

	stored, err := exams.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Equal(t, exam.Version, stored.Version)
}

func TestExamAvailabilityServiceStartAttemptIgnoresStaleCache(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	db := setupExamTestDB(t)
	exams := repository.NewExamRepository(db)
	exam := createExam(t, exams, models.ExamStatusPublished, 0)
	cache := NewExamRecordCache(redisClient, time.Minute, zerolog.Nop())
	cache.Set(context.Background(), exam)

	closed := exam
	closed.ManualControl = true
	closed.IsCompleted = true
	_, err = exams.CompareAndSwap(context.Background(), exam.ID, repository.RevisionOf(exam), closed)
	require.NoError(t, err)

	service := NewExamAvailabilityService(exams, cache, lifecycle.FixedClock(examWindowStart.Add(time.Minute)), zerolog.Nop())
	_, err = service.StartAttempt(context.Background(), exam.ID, 31)
	require.ErrorIs(t, err, ErrExamUnavailable)
}

func TestExamAvailabilityServiceWithoutCache(t *testing.T) {
	db := setupExamTestDB(t)
	exams := repository.NewExamRepository(db)
	exam := createExam(t, exams, models.ExamStatusDraft, 0)

	service := NewExamAvailabilityService(exams, nil, lifecycle.FixedClock(examWindowStart), zerolog.Nop())
	result, err := service.Check(context.Background(), exam.ID)
	require.NoError(t, err)
	require.False(t, result.Available)
	require.Equal(t, models.DynamicStatusDraft, result.DynamicStatus)

	_, err = service.Check(context.Background(), 999)
	require.ErrorIs(t, err, ErrExamNotFound)
}
