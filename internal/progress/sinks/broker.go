package sinks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/publisher"
)

// BrokerConfig controls where a BrokerSink publishes.
//   - Topic: the Pub/Sub topic or NATS subject base.
//   - PerStatus: append ".<status>" to Topic (NATS subject hierarchies).
type BrokerConfig struct {
	Topic     string
	PerStatus bool
}

// BrokerSink publishes the observer wire format of each event to a message
// broker so other systems can follow the archive without a websocket.
type BrokerSink struct {
	pub publisher.Publisher
	cfg BrokerConfig
}

// NewBrokerSink wraps pub.
func NewBrokerSink(pub publisher.Publisher, cfg BrokerConfig) (*BrokerSink, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &BrokerSink{pub: pub, cfg: cfg}, nil
}

// Consume publishes every broadcastable event in order.
func (s *BrokerSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		data, err := progress.Encode(evt)
		if errors.Is(err, progress.ErrNotBroadcast) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.pub.Publish(ctx, s.topicFor(evt.Kind()), data, attributes(evt)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *BrokerSink) topicFor(kind progress.Kind) string {
	if !s.cfg.PerStatus {
		return s.cfg.Topic
	}
	return s.cfg.Topic + "." + strings.ToLower(string(kind))
}

func attributes(evt progress.Event) map[string]string {
	attrs := map[string]string{"status": string(evt.Kind())}
	if id := evt.RequestID(); id != "" {
		attrs["req_id"] = id
	}
	if d, ok := evt.(progress.Deleted); ok {
		attrs["key"] = d.Key
	}
	if c, ok := evt.(progress.Completed); ok {
		attrs["key"] = c.Artifact.Key
	}
	return attrs
}

// Close releases the publisher.
func (s *BrokerSink) Close(context.Context) error {
	if err := s.pub.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
