// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the part of *amqp.Channel the sink uses.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpMessage struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AMQPSink publishes notifications to a durable fanout exchange.
type AMQPSink struct {
	mu       sync.Mutex
	ch       AMQPChannel
	exchange string
	timeout  time.Duration
	now      func() time.Time
}

// NewAMQPSink declares the exchange and takes ownership of ch.
func NewAMQPSink(ch AMQPChannel, exchange string) (*AMQPSink, error) {
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("notify: declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{ch: ch, exchange: exchange, timeout: 5 * time.Second, now: time.Now}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Notify(ctx context.Context, title, body string, metadata map[string]string) error {
	payload, err := json.Marshal(amqpMessage{Title: title, Body: body, Metadata: metadata, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx, s.exchange, metadata[MetaType], false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: metadata[MetaOrderID],
		Timestamp:     s.now().UTC(),
		Headers:       amqp.Table{"x-source": "ordertrack"},
		Body:          payload,
	})
	if err != nil {
		return fmt.Errorf("notify: publish to %s: %w", s.exchange, err)
	}
	return nil
}

// Close closes the channel.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.Close()
}
