package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel writes notifications to the log. Used when no webhook is configured.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel constructs a log channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Send logs the content.
func (c *LogChannel) Send(_ context.Context, address, content string) error {
	c.logger.Info().Str("to", address).Str("content", content).Msg("alert notification")
	return nil
}
