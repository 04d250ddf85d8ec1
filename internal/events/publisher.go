package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 100 * time.Millisecond

	// Publishes run on the webhook response path.
	DefaultWriteTimeout = 2 * time.Second
	DefaultMaxAttempts  = 2
	PublishTimeout      = 3 * time.Second
)

var publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_events_published_total",
	Help: "Ledger events handed to the broker, labeled by result",
}, []string{"result"})

const (
	TypeTokensCredited   = "joy_tokens.credited"
	TypeMessageSponsored = "message.sponsored"
)

// LedgerEvent announces a mutation that was applied for a captured order.
type LedgerEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Purpose    string    `json:"purpose"`
	Amount     string    `json:"amount"`
	JoyTokens  int64     `json:"joyTokens,omitempty"`
	MessageID  string    `json:"messageId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              DefaultBatchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           DefaultBatchTimeout,
		WriteTimeout:           DefaultWriteTimeout,
		MaxAttempts:            DefaultMaxAttempts,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaPublisher(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish keys messages by order id so redeliveries land on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, e LedgerEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		publishTotal.WithLabelValues("encode_error").Inc()
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: value,
		Time:  e.OccurredAt,
	})
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		p.logger.ErrorContext(ctx, "Failed to publish ledger event", "order_id", e.OrderID, "error", err)
		return err
	}
	publishTotal.WithLabelValues("ok").Inc()
	p.logger.DebugContext(ctx, "Ledger event published", "order_id", e.OrderID)
	return nil
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, LedgerEvent) error { return nil }
