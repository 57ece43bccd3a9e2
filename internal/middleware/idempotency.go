package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/utils"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key of a retryable request.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader is set on responses served from the replay store.
	IdempotentReplayHeader = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyLockTTL    = 30 * time.Second
	maxIdempotencyKeyLen  = 128
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the first response of a mutating request for every
// retry that carries the same Idempotency-Key. Keys are scoped to the
// authenticated user, method and path. Server errors are not stored, so a
// retry after one runs again.
func Idempotency(client *redis.Client, ttl time.Duration, logger zerolog.Logger) fiber.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	log := logger.With().Str("component", "idempotency_middleware").Logger()

	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(IdempotencyKeyHeader))
		if client == nil || key == "" || !isMutating(c.Method()) {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return utils.SendError(c, fiber.StatusBadRequest, "idempotency key is too long")
		}

		ctx := c.UserContext()
		storeKey := fmt.Sprintf("exams:idempotency:v1:%v:%s:%s:%s", c.Locals("user_id"), c.Method(), c.Path(), key)

		if replayed, err := replay(c, client, storeKey); err != nil {
			log.Warn().Err(err).Str("correlation_id", GetCorrelationID(c)).Msg("failed to read idempotent response")
		} else if replayed {
			return nil
		}

		locked, err := client.SetNX(ctx, storeKey+":lock", GetCorrelationID(c), idempotencyLockTTL).Result()
		if err != nil {
			log.Warn().Err(err).Msg("idempotency store unavailable, serving request without replay")
			return c.Next()
		}
		if !locked {
			return utils.SendError(c, fiber.StatusConflict, "a request with this idempotency key is already in progress")
		}
		defer func() {
			if err := client.Del(ctx, storeKey+":lock").Err(); err != nil {
				log.Warn().Err(err).Msg("failed to release idempotency lock")
			}
		}()

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			return nil
		}

		payload, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        c.Response().Body(),
		})
		if err != nil {
			return nil
		}
		if err := client.Set(ctx, storeKey, payload, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to store idempotent response")
		}
		return nil
	}
}

func replay(c *fiber.Ctx, client *redis.Client, storeKey string) (bool, error) {
	cached, err := client.Get(c.UserContext(), storeKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	var stored storedResponse
	if err := json.Unmarshal(cached, &stored); err != nil {
		return false, err
	}

	c.Set(IdempotentReplayHeader, "true")
	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	return true, c.Status(stored.Status).Send(stored.Body)
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	default:
		return false
	}
}
