package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

const examEventBufferSize = 16

// ExamEventService fans applied lifecycle transitions out to exam board
// subscribers on this node and, through Redis and NATS, on its peers.
type ExamEventService interface {
	Publish(ctx context.Context, event dto.ExamEvent)
	Subscribe(schoolID uint) (<-chan dto.ExamEvent, func())
	Start(ctx context.Context)
}

type examEventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *examEventBroker
	nodeID       string
}

type examEventEnvelope struct {
	Source string        `json:"source"`
	Event  dto.ExamEvent `json:"event"`
	SentAt time.Time     `json:"sent_at"`
}

// Subscribers registered under school 0 receive events of every school.
type examEventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.ExamEvent]struct{}
}

// NewExamEventService constructs the event fan-out. Either broker may be nil.
func NewExamEventService(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) ExamEventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":exam-events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".exam-events"
	}

	return &examEventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "exam_event_service").Logger(),
		broker: &examEventBroker{
			subscribers: make(map[uint]map[chan dto.ExamEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *examEventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *examEventService) Publish(ctx context.Context, event dto.ExamEvent) {
	s.broker.broadcast(event)

	payload, err := json.Marshal(examEventEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode exam event")
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("exam_id", event.ExamID).Msg("failed to publish exam event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Uint("exam_id", event.ExamID).Msg("failed to publish exam event to nats")
		}
	}
}

func (s *examEventService) Subscribe(schoolID uint) (<-chan dto.ExamEvent, func()) {
	channel := make(chan dto.ExamEvent, examEventBufferSize)

	s.broker.subscribe(schoolID, channel)
	observability.ExamBoardClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(schoolID, channel)
			observability.ExamBoardClients().Dec()
		})
	}

	return channel, cleanup
}

func (s *examEventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("exam event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *examEventService) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats exam events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain exam events nats subscription")
		}
	}()
}

func (s *examEventService) handleEnvelope(payload []byte) {
	var envelope examEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid exam event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event)
}

func (b *examEventBroker) subscribe(schoolID uint, ch chan dto.ExamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[schoolID]; !exists {
		b.subscribers[schoolID] = make(map[chan dto.ExamEvent]struct{})
	}
	b.subscribers[schoolID][ch] = struct{}{}
}

func (b *examEventBroker) unsubscribe(schoolID uint, ch chan dto.ExamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[schoolID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, schoolID)
		}
	}
}

func (b *examEventBroker) broadcast(event dto.ExamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver := func(subscribers map[chan dto.ExamEvent]struct{}) {
		for ch := range subscribers {
			select {
			case ch <- event:
			default:
			}
		}
	}

	deliver(b.subscribers[event.SchoolID])
	if event.SchoolID != 0 {
		deliver(b.subscribers[0])
	}
}
