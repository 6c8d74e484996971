// Package pubsub publishes completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gpubsub "cloud.google.com/go/pubsub"

	"linkcast/internal/cast"
)

// Publisher sends JSON events to Pub/Sub topics. Topic handles are
// cached; each carries its own publish goroutines.
type Publisher struct {
	client *gpubsub.Client

	mu     sync.Mutex
	topics map[string]*gpubsub.Topic
}

// New wraps an existing Pub/Sub client.
func New(client *gpubsub.Client) *Publisher {
	return &Publisher{client: client, topics: make(map[string]*gpubsub.Topic)}
}

// Connect dials Pub/Sub with ambient credentials.
func Connect(ctx context.Context, projectID string) (*Publisher, error) {
	client, err := gpubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return New(client), nil
}

// Publish sends the JSON-encoded payload and waits for the server-side
// message id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	result := p.topic(topic).Publish(ctx, &gpubsub.Message{Data: b})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

// Close stops the cached topics and the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *Publisher) topic(name string) *gpubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

var _ cast.Publisher = (*Publisher)(nil)
