package notify

import (
	"context"

	"offer-dispatch/internal/logx"
)

// LogPublisher writes messages to the log instead of a broker. It is used
// when no notification topic is configured.
type LogPublisher struct {
	logger logx.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger logx.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the message.
func (p *LogPublisher) Publish(_ context.Context, m Message) error {
	p.logger.Info("notification",
		logx.String("id", m.ID),
		logx.String("channel", m.Channel),
		logx.String("to", m.To),
		logx.String("template", m.Template),
		logx.Int64("unit_id", m.UnitID),
		logx.String("body", m.Body),
	)
	return nil
}
