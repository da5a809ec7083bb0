// Package kafka publishes article notices to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON payloads keyed by article id so notices for one
// article land on the same partition.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// New builds a synchronous writer for the given brokers. The topic is chosen
// per message.
func New(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ingest.Configf("notify.kafka.brokers is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newWithWriter(writer), nil
}

func newWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

// Publish writes one message and returns "<topic>/<key>".
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("kafka topic is required")
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Value: value,
		Time:  p.now(),
	}
	if notice, ok := payload.(ingest.ArticleNotice); ok {
		msg.Key = []byte(notice.ArticleID)
	}
	carrier := &headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return fmt.Sprintf("%s/%s", topic, msg.Key), nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// headerCarrier implements propagation.TextMapCarrier over Kafka headers.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if h.Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
