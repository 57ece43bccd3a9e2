package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/observability"
)

func TestObservabilityLogsExamRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(logger))
	app.Post("/api/admin/exams/:id/approve", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusConflict)
	})
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	before := testutil.ToFloat64(observability.APIErrors().WithLabelValues("admin", http.MethodPost, "/api/admin/exams/:id/approve", "409"))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/exams/12/approve", nil)
	req.Header.Set(CorrelationIDHeader, "corr-approve")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "admin", entry["surface"])
	require.Equal(t, "12", entry["exam_id"])
	require.Equal(t, "corr-approve", entry["correlation_id"])
	require.Equal(t, before+1, testutil.ToFloat64(observability.APIErrors().WithLabelValues("admin", http.MethodPost, "/api/admin/exams/:id/approve", "409")))

	buf.Reset()
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Zero(t, buf.Len())
}

func TestLatencyBucket(t *testing.T) {
	require.Equal(t, "<=25ms", latencyBucket(0))
	require.Equal(t, ">500ms", latencyBucket(time.Second))
}
