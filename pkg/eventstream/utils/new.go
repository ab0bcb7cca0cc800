// Package utils builds an eventstream.Publisher from configuration.
package utils

import (
	"fmt"
	"log/slog"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/eventstream"
	"github.com/vincenthz/ThinkMate/pkg/eventstream/kafka"
	"github.com/vincenthz/ThinkMate/pkg/eventstream/nop"
)

// NewPublisher returns the publisher selected by c.Provider.
func NewPublisher(c config.EventStreamConfig, logger *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "", "none":
		return nop.NewPublisher(logger), nil
	case "kafka":
		p, err := kafka.NewPublisher(&kafka.Config{
			Brokers: c.BrokerList(),
			Topic:   c.Topic,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown eventstream provider %q (supported: %v)", c.Provider, config.EventStreamProviders)
	}
}
