// Package nats implements a NATS core publisher.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 5 * time.Second

// Publisher publishes to NATS subjects over a single connection.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials url and returns a Publisher owning the connection.
func Connect(url string, opts ...nats.Option) (*Publisher, error) {
	opts = append([]nats.Option{nats.Name("media-archiver")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Publisher{conn: conn}, nil
}

// New wraps an existing connection.
func New(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Publish sends data on subject with attrs as headers. NATS core has no
// message IDs, so the returned ID is empty.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte, attrs map[string]string) (string, error) {
	if p.conn == nil {
		return "", fmt.Errorf("nats connection is not configured")
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range attrs {
		msg.Header.Set(k, v)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return "", fmt.Errorf("flush %s: %w", subject, err)
	}
	return "", nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
