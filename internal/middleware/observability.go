package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/observability"
)

// surfaces maps instrumented path prefixes to their metric label.
var surfaces = []struct {
	prefix string
	label  string
}{
	{prefix: "/api/admin", label: "admin"},
	{prefix: "/api/v2/exams", label: "exams"},
}

// Observability records request metrics and one structured log line per
// request on the exam console and exam API surfaces. Other paths pass through.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		surface := surfaceOf(c.Path())
		if surface == "" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(surface, method, route, statusLabel).Inc()
		observability.APILatency().WithLabelValues(surface, method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(surface, method, route, statusLabel).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}

		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration))
		if examID := c.Params("id"); examID != "" {
			event = event.Str("exam_id", examID)
		}
		if userID, ok := c.Locals("user_id").(uint); ok {
			event = event.Uint("user_id", userID)
		}
		if string(c.Response().Header.Peek(IdempotentReplayHeader)) == "true" {
			event = event.Bool("idempotent_replay", true)
		}

		event.Msg("exam request completed")
		return err
	}
}

func surfaceOf(path string) string {
	for _, s := range surfaces {
		if strings.HasPrefix(path, s.prefix) {
			return s.label
		}
	}
	return ""
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 25*time.Millisecond:
		return "<=25ms"
	case duration <= 100*time.Millisecond:
		return "<=100ms"
	case duration <= 500*time.Millisecond:
		return "<=500ms"
	default:
		return ">500ms"
	}
}
