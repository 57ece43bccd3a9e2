package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/service"
)

const testJWTSecret = "handler-test-secret"

var (
	windowStart = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(2 * time.Hour)
)

type examAPI struct {
	app    *fiber.App
	db     *gorm.DB
	exams  repository.ExamRepository
	events service.ExamEventService
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details map[string]any  `json:"details"`
}

func setupExamAPI(t *testing.T, now time.Time) examAPI {
	t.Helper()

	dsn := fmt.Sprintf("file:exam_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exam{}, &models.ExamTransition{}, &models.ActivityLog{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	logger := zerolog.Nop()
	clock := lifecycle.FixedClock(now)
	validate := validator.New(validator.WithRequiredStructEnabled())

	exams := repository.NewExamRepository(db)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	cache := service.NewExamRecordCache(redisClient, time.Minute, logger)
	events := service.NewExamEventService(nil, nil, "", logger)

	lifecycleService := service.NewExamLifecycleService(service.ExamLifecycleDependencies{
		Exams:       exams,
		Transitions: repository.NewExamTransitionRepository(db),
		Activity:    activity,
		Cache:       cache,
		Events:      events,
		Clock:       clock,
	}, logger)
	actions := service.NewExamActionService(lifecycleService, exams, validate, clock, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "exam-test"}, router.Dependencies{
		DB:                    db,
		Redis:                 redisClient,
		ExamAdminHandler:      handler.NewExamAdminHandler(actions, lifecycleService, logger),
		ExamAuthorHandler:     handler.NewExamAuthorHandler(service.NewExamAuthoringService(exams, validate, activity, clock, logger), actions, logger),
		ExamStudentHandler:    handler.NewExamStudentHandler(service.NewExamAvailabilityService(exams, cache, clock, logger), logger),
		ExamBoardHandler:      handler.NewExamBoardHandler(events, logger),
		ActivityHandler:       handler.NewActivityHandler(activity, logger),
		JWTMiddleware:         middleware.JWTProtected(testJWTSecret),
		IdempotencyMiddleware: middleware.Idempotency(redisClient, time.Hour, logger),
	})

	return examAPI{app: app, db: db, exams: exams, events: events}
}

func bearer(t *testing.T, userID uint, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       userID,
		"role":      role,
		"school_id": 3,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (api examAPI) seed(t *testing.T, status models.ExamStatus, attempts int) models.Exam {
	t.Helper()
	exam := models.Exam{
		SchoolID:          3,
		AuthorID:          4,
		Title:             "Geography Final",
		Subject:           "Geography",
		Status:            status,
		StartTime:         windowStart,
		EndTime:           windowEnd,
		StudentsAttempted: attempts,
	}
	require.NoError(t, api.exams.Create(context.Background(), &exam))
	return exam
}

func (api examAPI) do(t *testing.T, method, path, auth string, body interface{}, headers ...string) (*http.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)

	var payload envelope
	decodeResponse(t, resp, &payload)
	return resp, payload
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestExamAdminApproveAndPublish(t *testing.T) {
	api := setupExamAPI(t, windowStart.Add(10*time.Minute))
	exam := api.seed(t, models.ExamStatusPendingApproval, 0)
	admin := bearer(t, 7, "admin")

	resp, payload := api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/approve", exam.ID), admin,
		map[string]interface{}{"confirmed": true, "publish_now": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, payload.Success)

	var result dto.ExamActionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &result))
	require.Equal(t, lifecycle.ActionApproveAndPublish, result.Action)
	require.Equal(t, models.ExamStatusPublished, result.Exam.Status)
	require.Equal(t, models.DynamicStatusActive, result.Exam.DynamicStatus)

	resp, payload = api.do(t, http.MethodGet, fmt.Sprintf("/api/admin/exams/%d/history", exam.ID), admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history []dto.ExamTransitionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &history))
	require.Len(t, history, 1)
	require.Equal(t, uint(7), history[0].ActorID)
}

func TestExamAdminStaleActionReturnsConflict(t *testing.T) {
	api := setupExamAPI(t, windowStart.Add(-time.Hour))
	exam := api.seed(t, models.ExamStatusPendingApproval, 0)
	admin := bearer(t, 7, "admin")
	path := fmt.Sprintf("/api/admin/exams/%d/approve", exam.ID)

	resp, _ := api.do(t, http.MethodPost, path, admin, map[string]interface{}{"confirmed": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload := api.do(t, http.MethodPost, path, admin, map[string]interface{}{"confirmed": true})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.False(t, payload.Success)
	require.Equal(t, handler.MessageStaleExam, payload.Message)
}

func TestExamAdminIdempotentRetryReplaysSuccess(t *testing.T) {
	api := setupExamAPI(t, windowStart.Add(-time.Hour))
	exam := api.seed(t, models.ExamStatusPendingApproval, 0)
	admin := bearer(t, 7, "admin")
	path := fmt.Sprintf("/api/admin/exams/%d/approve", exam.ID)
	body := map[string]interface{}{"confirmed": true}

	first, _ := api.do(t, http.MethodPost, path, admin, body, middleware.IdempotencyKeyHeader, "approve-once")
	require.Equal(t, fiber.StatusOK, first.StatusCode)

	retry, payload := api.do(t, http.MethodPost, path, admin, body, middleware.IdempotencyKeyHeader, "approve-once")
	require.Equal(t, fiber.StatusOK, retry.StatusCode)
	require.True(t, payload.Success)
	require.Equal(t, "true", retry.Header.Get(middleware.IdempotentReplayHeader))

	stored, err := api.exams.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Equal(t, exam.Version+1, stored.Version)
}

func TestExamAdminValidationErrors(t *testing.T) {
	api := setupExamAPI(t, windowStart)
	exam := api.seed(t, models.ExamStatusPendingApproval, 0)
	admin := bearer(t, 7, "admin")

	resp, payload := api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/reject", exam.ID), admin,
		map[string]interface{}{"confirmed": true, "reason": ""})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "reason", payload.Details["field"])

	resp, payload = api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/reject", exam.ID), admin,
		map[string]interface{}{"reason": "Wrong syllabus"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "confirmed", payload.Details["field"])

	resp, _ = api.do(t, http.MethodPost, "/api/admin/exams/abc/approve", admin, map[string]interface{}{"confirmed": true})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamAdminDeleteGuardAndNotFound(t *testing.T) {
	api := setupExamAPI(t, windowStart)
	attempted := api.seed(t, models.ExamStatusRejected, 2)
	admin := bearer(t, 7, "admin")

	resp, payload := api.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/exams/%d?confirmed=true", attempted.ID), admin, nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "students have already attempted this exam", payload.Message)

	resp, _ = api.do(t, http.MethodDelete, "/api/admin/exams/999?confirmed=true", admin, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	draft := api.seed(t, models.ExamStatusDraft, 0)
	resp, payload = api.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/exams/%d?confirmed=true", draft.ID), admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "exam deleted", payload.Message)
}

func TestExamAdminManualControlFlow(t *testing.T) {
	api := setupExamAPI(t, windowStart.Add(-24*time.Hour))
	exam := api.seed(t, models.ExamStatusPublished, 0)
	admin := bearer(t, 7, "admin")
	confirmed := map[string]interface{}{"confirmed": true}

	steps := []struct {
		path    string
		dynamic models.DynamicStatus
	}{
		{"manual-control", models.DynamicStatusApproved},
		{"live", models.DynamicStatusActive},
		{"complete", models.DynamicStatusCompleted},
	}
	for _, step := range steps {
		resp, payload := api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/%s", exam.ID, step.path), admin, confirmed)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, step.path)

		var result dto.ExamActionResponse
		require.NoError(t, json.Unmarshal(payload.Data, &result))
		require.Equal(t, step.dynamic, result.Exam.DynamicStatus, step.path)
	}

	resp, _ := api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/live", exam.ID), admin, confirmed)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestExamAdminListAndRoles(t *testing.T) {
	api := setupExamAPI(t, windowStart)
	api.seed(t, models.ExamStatusPublished, 0)
	api.seed(t, models.ExamStatusDraft, 0)

	resp, payload := api.do(t, http.MethodGet, "/api/admin/exams?page_size=1", bearer(t, 7, "admin"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var items []dto.ExamResponse
	require.NoError(t, json.Unmarshal(payload.Data, &items))
	require.Len(t, items, 1)

	var meta dto.PaginationMeta
	require.NoError(t, json.Unmarshal(payload.Meta, &meta))
	require.Equal(t, int64(2), meta.TotalItems)

	resp, _ = api.do(t, http.MethodGet, "/api/admin/exams", bearer(t, 4, "teacher"), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/admin/exams", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestExamAuthorCreateSubmitAndStudentAttempt(t *testing.T) {
	api := setupExamAPI(t, windowStart.Add(5*time.Minute))
	teacher := bearer(t, 4, "teacher")
	student := bearer(t, 31, "student")

	resp, payload := api.do(t, http.MethodPost, "/api/v2/exams", teacher, map[string]interface{}{
		"school_id":  3,
		"title":      "Algebra Quiz",
		"start_time": windowStart,
		"end_time":   windowEnd,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created dto.ExamResponse
	require.NoError(t, json.Unmarshal(payload.Data, &created))
	require.Equal(t, models.ExamStatusDraft, created.Status)
	require.Equal(t, uint(4), created.AuthorID)

	resp, _ = api.do(t, http.MethodPost, "/api/v2/exams", student, map[string]interface{}{"school_id": 3, "title": "Nope"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, fmt.Sprintf("/api/v2/exams/%d/submit", created.ID), teacher, map[string]interface{}{"confirmed": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, fmt.Sprintf("/api/v2/exams/%d/attempts", created.ID), student, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/approve", created.ID), bearer(t, 7, "admin"),
		map[string]interface{}{"confirmed": true, "publish_now": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload = api.do(t, http.MethodGet, fmt.Sprintf("/api/v2/exams/%d/availability", created.ID), student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var availability dto.ExamAvailabilityResponse
	require.NoError(t, json.Unmarshal(payload.Data, &availability))
	require.True(t, availability.Available)

	resp, payload = api.do(t, http.MethodPost, fmt.Sprintf("/api/v2/exams/%d/attempts", created.ID), student, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var attempt dto.ExamAttemptResponse
	require.NoError(t, json.Unmarshal(payload.Data, &attempt))
	require.Equal(t, 1, attempt.StudentsAttempted)
}

func TestActivityHandlerListsExamActions(t *testing.T) {
	api := setupExamAPI(t, windowStart)
	exam := api.seed(t, models.ExamStatusPendingApproval, 0)
	admin := bearer(t, 7, "admin")

	resp, _ := api.do(t, http.MethodPost, fmt.Sprintf("/api/admin/exams/%d/reject", exam.ID), admin,
		map[string]interface{}{"confirmed": true, "reason": "Missing answer key"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload := api.do(t, http.MethodGet, fmt.Sprintf("/api/admin/activity?entity_type=exam&entity_id=%d", exam.ID), admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entries []dto.ActivityResponse
	require.NoError(t, json.Unmarshal(payload.Data, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "exam.reject", entries[0].Action)
	require.Equal(t, "Missing answer key", entries[0].Metadata["reason"])
}

func TestHealthCheckPingsDependencies(t *testing.T) {
	api := setupExamAPI(t, windowStart)

	resp, payload := api.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(payload.Data, &health))
	require.Equal(t, "ok", health.Checks["database"])
	require.Equal(t, "ok", health.Checks["redis"])
	require.Equal(t, "exam-test", health.Service)
}
