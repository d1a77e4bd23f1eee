// Package pubsub publishes profile records to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Message attribute keys.
const (
	AttrProfileURL = "profile_url"
	AttrRunID      = "run_id"
)

// publishFunc sends one message and blocks until the server assigns an ID.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher implements crawler.RecordSink on a Pub/Sub topic.
type Publisher struct {
	publish publishFunc
	stop    func()
	client  *pubsub.Client
	attrs   map[string]string
}

// Config selects the destination topic.
type Config struct {
	ProjectID string
	Topic     string
	// RunID is attached to every message when set.
	RunID string
}

// New dials Pub/Sub and publishes to cfg.Topic.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("sink.pubsub.project_id and sink.pubsub.topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := NewFromPublisher(client.Publisher(cfg.Topic), cfg.RunID)
	p.client = client
	return p, nil
}

// NewFromPublisher wraps an existing topic publisher.
func NewFromPublisher(publisher *pubsub.Publisher, runID string) *Publisher {
	return newPublisher(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}, publisher.Stop, runID)
}

func newPublisher(publish publishFunc, stop func(), runID string) *Publisher {
	attrs := map[string]string{}
	if runID != "" {
		attrs[AttrRunID] = runID
	}
	return &Publisher{publish: publish, stop: stop, attrs: attrs}
}

// Write marshals rec to JSON and publishes it.
func (p *Publisher) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	if p.publish == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string, len(p.attrs)+1)}
	for k, v := range p.attrs {
		msg.Attributes[k] = v
	}
	msg.Attributes[AttrProfileURL] = rec.ProfileURL

	if _, err := p.publish(ctx, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close(context.Context) error {
	if p.stop != nil {
		p.stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
