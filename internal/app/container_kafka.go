package app

import (
	"context"

	"go.uber.org/dig"

	"offer-dispatch/internal/config"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/service/intake"
	"offer-dispatch/internal/transport/kafka"
)

type eventHandler interface {
	Handle(ctx context.Context, e intake.Event) error
}

// makeJobsHandler adapts the intake processor to the consumer and marks
// errors a redelivery cannot fix as permanent.
func makeJobsHandler(p eventHandler) kafka.HandleFunc {
	return func(ctx context.Context, e intake.Event) error {
		return kafka.Classify(p.Handle(ctx, e))
	}
}

func newJobsConsumer(cfg *config.Config, logger logx.Logger, p *intake.Processor) (*kafka.Consumer, error) {
	return kafka.NewConsumer(logger, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.JobsTopic, makeJobsHandler(p))
}

func registerKafka(container *dig.Container) error {
	return provideAll(container, newJobsConsumer)
}
