// Package events публикует доменные события чата (создание чата, сообщения, правки, удаления, прочтения)
// в Kafka для внешних потребителей: поиска, аналитики, уведомлений.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
)

// Типы событий.
const (
	ChatCreated    = "chat.created"
	MessageCreated = "message.created"
	MessageEdited  = "message.edited"
	MessageDeleted = "message.deleted"
	MessagesRead   = "messages.read"
)

type Event struct {
	Type       string    `json:"type"`
	ChatID     string    `json:"chatId"`
	MessageID  string    `json:"messageId,omitempty"`
	UserID     string    `json:"userId"`
	Count      int64     `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}

// Publisher: получатель доменных событий. Ошибка публикации не отменяет операцию.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop ничего не публикует; используется, когда брокеры не заданы.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик с ключом chatId, чтобы события одного чата шли в одну партицию по порядку.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Errorf("kafka: %d events lost: %v", len(messages), err)
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ChatID),
		Value: b,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New выбирает реализацию по списку брокеров.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		logger.Info("events: KAFKA_BROKERS not set, domain events disabled")
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic)
}
