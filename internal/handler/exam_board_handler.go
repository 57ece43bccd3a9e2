package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/service"
)

const examBoardPingInterval = 30 * time.Second

// ExamBoardHandler streams applied exam transitions to admin consoles so their
// views refresh without polling.
type ExamBoardHandler struct {
	events service.ExamEventService
	logger zerolog.Logger
}

// NewExamBoardHandler constructs the handler.
func NewExamBoardHandler(events service.ExamEventService, logger zerolog.Logger) *ExamBoardHandler {
	return &ExamBoardHandler{
		events: events,
		logger: logger.With().Str("component", "exam_board_handler").Logger(),
	}
}

// Register binds the websocket endpoint. It must be registered before any
// "/:id" route on the same group.
func (h *ExamBoardHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *ExamBoardHandler) handleConnection(conn *websocket.Conn) {
	schoolID, _ := conn.Locals("school_id").(uint)
	if raw := strings.TrimSpace(conn.Query("school_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid school_id"))
			_ = conn.Close()
			return
		}
		schoolID = uint(parsed)
	}

	events, unsubscribe := h.events.Subscribe(schoolID)
	defer unsubscribe()

	logger := h.logger.With().Uint("school_id", schoolID).Interface("user_id", conn.Locals("user_id")).Logger()
	logger.Info().Msg("exam board connected")
	defer logger.Info().Msg("exam board disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(examBoardPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("exam board write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
