package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FanatiquePay/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	OrderCreated  = "order.created"
	OrderPaid     = "order.paid"
	OrderSettling = "order.settling"
	OrderReleased = "order.released"
)

type OrderEvent struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	OrderID         int64     `json:"orderId"`
	UserID          int64     `json:"userId"`
	EstablishmentID int64     `json:"establishmentId"`
	MatchID         int64     `json:"matchId"`
	Status          string    `json:"status"`
	TotalReal       string    `json:"totalReal"`
	TotalFanToken   string    `json:"totalFanToken"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

func NewOrderEvent(eventType string, order *models.Order) OrderEvent {
	ev := OrderEvent{
		ID:              uuid.NewString(),
		Type:            eventType,
		OrderID:         order.ID,
		UserID:          order.UserID,
		EstablishmentID: order.EstablishmentID,
		MatchID:         order.MatchID,
		Status:          order.Status.String(),
		TotalReal:       order.TotalReal.String(),
		TotalFanToken:   order.TotalFanToken.String(),
		OccurredAt:      time.Now().UTC(),
	}
	if order.TransactionHash != nil {
		ev.TransactionHash = *order.TransactionHash
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Publish keys messages by order id so one order's events stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%d", ev.OrderID)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }

func (Nop) Close() error { return nil }

// New returns a Kafka publisher when brokers are configured and a no-op otherwise.
func New(brokers []string, topic string, logger *zap.Logger) Publisher {
	var clean []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			clean = append(clean, b)
		}
	}
	if len(clean) == 0 || topic == "" {
		logger.Info("order events disabled")
		return Nop{}
	}
	return NewKafkaPublisher(clean, topic, logger)
}
