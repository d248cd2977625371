// Package events publishes submission outcomes to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventType doubles as the routing key
type EventType string

const (
	SubmissionGraded EventType = "submission.graded"
	SubmissionPassed EventType = "submission.passed"
)

// SubmissionEvent is the message body for both event types
type SubmissionEvent struct {
	EventType       EventType `json:"event_type"`
	SubmissionID    string    `json:"submission_id"`
	AppID           string    `json:"app_id"`
	ApplicantID     int64     `json:"applicant_id"`
	Passed          bool      `json:"passed"`
	TotalScore      float64   `json:"total_score"`
	MaxScore        float64   `json:"max_score"`
	Percent         float64   `json:"percent"`
	PromotionStatus string    `json:"promotion_status,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher sends submission events
type Publisher interface {
	PublishSubmissionEvent(ctx context.Context, event *SubmissionEvent) error
	Close() error
}

// EventPublisher publishes to a durable topic exchange. With no URL it is
// disabled and drops events.
type EventPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex // amqp channels are not safe for concurrent publishing
}

func NewEventPublisher(rabbitURL, exchange string, logger *zap.Logger) (*EventPublisher, error) {
	logger = logger.Named("events")
	if rabbitURL == "" {
		logger.Warn("RabbitMQ URL is empty, event publishing is disabled")
		return &EventPublisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("event publisher initialized", zap.String("exchange", exchange))
	return &EventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

func (p *EventPublisher) PublishSubmissionEvent(ctx context.Context, event *SubmissionEvent) error {
	if !p.enabled {
		p.logger.Debug("event publishing disabled, skipping event", zap.String("event_type", string(event.EventType)))
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,              // exchange
		string(event.EventType), // routing key
		false,                   // mandatory
		false,                   // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
			Headers: amqp091.Table{
				"event_type":    string(event.EventType),
				"app_id":        event.AppID,
				"submission_id": event.SubmissionID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event",
		zap.String("event_type", string(event.EventType)),
		zap.String("submission_id", event.SubmissionID),
	)
	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing RabbitMQ channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}

// MockPublisher records events in memory
type MockPublisher struct {
	mu     sync.Mutex
	Events []SubmissionEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Events: make([]SubmissionEvent, 0)}
}

func (m *MockPublisher) PublishSubmissionEvent(_ context.Context, event *SubmissionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *event)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Types returns the recorded event types in publish order
func (m *MockPublisher) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.EventType
	}
	return out
}
