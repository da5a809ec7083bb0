// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type topicPublisher struct {
	publisher *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.publisher.Publish(ctx, msg)
}

// Publisher wraps a Pub/Sub publisher bound to one topic.
type Publisher struct {
	publisher messagePublisher
	closeFn   func() error
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{publisher: topicPublisher{publisher: publisher}}
}

// Dial connects to Pub/Sub using Application Default Credentials.
func Dial(ctx context.Context, projectID, topic string) (*Publisher, error) {
	if projectID == "" || topic == "" {
		return nil, ingest.Configf("notify.pubsub.project_id and notify.topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := client.Publisher(topic)
	p := New(publisher)
	p.closeFn = func() error {
		publisher.Stop()
		return client.Close()
	}
	return p, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

// Publish marshals the payload to JSON and publishes it. The topic argument is
// informational; the publisher is already bound to its topic. Trace context is
// carried in message attributes.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"topic": topic}}
	if notice, ok := payload.(ingest.ArticleNotice); ok {
		msg.Attributes["source"] = notice.Source
		msg.Attributes["article_id"] = notice.ArticleID
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
