// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package amqpstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher writes snapshots to the exchange. It shares one channel and
// serializes publishes on it.
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
	timeout  time.Duration
}

var _ changestream.Writer = (*Publisher)(nil)

// NewPublisher opens a channel and declares the exchange.
func NewPublisher(open ChannelOpener, exchange string) (*Publisher, error) {
	ch, err := open()
	if err != nil {
		return nil, err
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

// Put publishes the document.
func (p *Publisher) Put(ctx context.Context, path string, data []byte) error {
	return p.publish(ctx, path, true, data)
}

// Delete publishes a tombstone.
func (p *Publisher) Delete(ctx context.Context, path string) error {
	return p.publish(ctx, path, false, nil)
}

func (p *Publisher) publish(ctx context.Context, path string, exists bool, body []byte) error {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(path), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Headers: amqp.Table{
			headerPath:   path,
			headerExists: exists,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", path, err)
	}
	return nil
}

// Close closes the publishing channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
