// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/ordertrack/internal/config"
)

// AMQPDialer opens a publishing channel for url. Closing the channel must
// release the connection too.
type AMQPDialer func(url string) (AMQPChannel, error)

// FromConfig builds a Multi over the configured sinks. The returned close
// function releases broker resources; it is never nil.
func FromConfig(cfg config.NotifyConfig, dial AMQPDialer) (*Multi, func() error, error) {
	var (
		sinks   []Sink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	for _, name := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
			sinks = append(sinks, NewLogSink())
		case "webhook":
			sinks = append(sinks, NewWebhookSink(cfg.Webhook))
		case "amqp":
			if dial == nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("notify: amqp sink configured without a dialer")
			}
			ch, err := dial(cfg.AMQP.URL)
			if err != nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("notify: dial amqp: %w", err)
			}
			sink, err := NewAMQPSink(ch, cfg.AMQP.Exchange)
			if err != nil {
				_ = ch.Close()
				_ = closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
		}
	}
	return NewMulti(sinks...), closeAll, nil
}
