package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"offer-dispatch/internal/config"
	"offer-dispatch/internal/gateway/dispatch"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/metrics"
	"offer-dispatch/internal/notify"
	"offer-dispatch/internal/repository"
	"offer-dispatch/internal/service/intake"
	"offer-dispatch/internal/service/offer"
	"offer-dispatch/internal/service/selector"
	"offer-dispatch/internal/service/sweep"
	"offer-dispatch/internal/token"
	"offer-dispatch/internal/transport/kafka"
)

// sweepTimeout bounds one scheduled sweep.
const sweepTimeout = time.Minute

func registerDomainServices(container *dig.Container) error {
	return provideAll(container,
		func(pool *pgxpool.Pool) *repository.UnitRepo { return repository.NewUnitRepo(pool) },
		func(pool *pgxpool.Pool) *repository.CandidateRepo { return repository.NewCandidateRepo(pool) },
		func(pool *pgxpool.Pool) *repository.NotificationLog { return repository.NewNotificationLog(pool) },
		newTokenCodec,
		newNotificationProducer,
		newPublisher,
		newNotifier,
		newSelector,
		newDispatchGateway,
		newDispatcher,
		offer.NewResponseHandler,
		offer.NewReconfirmer,
		offer.NewCanceller,
		newIntakeProcessor,
		newSweeper,
		newSweepScheduler,
	)
}

func newTokenCodec(cfg *config.Config) (*token.Codec, error) {
	return token.NewCodec([]byte(cfg.Offers.TokenSecret), token.TTL{
		Task:  cfg.Offers.TokenTaskTTL,
		Route: cfg.Offers.TokenRouteTTL,
	})
}

func newNotificationProducer(cfg *config.Config) (*kafka.Producer, error) {
	return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic)
}

// newPublisher falls back to the log when no notification topic is set.
func newPublisher(p *kafka.Producer, logger logx.Logger) notify.Publisher {
	if p == nil {
		logger.Warn("notification topic not configured, messages go to the log")
		return notify.NewLogPublisher(logger)
	}
	return p
}

func newNotifier(pub notify.Publisher, dedup *repository.NotificationLog, cfg *config.Config, logger logx.Logger) *notify.Notifier {
	return notify.New(pub, dedup, notify.Config{
		DedupTTL:        cfg.Notify.DedupTTL,
		OperatorChannel: cfg.Operators.Channel,
		ConsoleURL:      cfg.Operators.ConsoleURL,
		Location:        cfg.Location(),
	}, logger)
}

func newSelector(c *repository.CandidateRepo, u *repository.UnitRepo, cfg *config.Config, logger logx.Logger) *selector.Selector {
	return selector.New(c, u, cfg.Location(), cfg.Offers.OperationTimeout, logger)
}

type gatewayIn struct {
	dig.In

	Cfg     *config.Config
	Logger  logx.Logger
	Retries prometheus.Counter `name:"gateway_retries_total"`
}

func newDispatchGateway(in gatewayIn) (*dispatch.RetryingGateway, error) {
	client, err := dispatch.NewHTTPClient(in.Cfg.Dispatch.BaseURL, in.Cfg.Dispatch.Timeout)
	if err != nil {
		return nil, err
	}
	return dispatch.NewRetryingGateway(client, in.Logger, in.Retries, dispatch.RetryConfig{
		MaxAttempts: in.Cfg.Dispatch.MaxAttempts,
		BaseDelay:   in.Cfg.Dispatch.BaseDelay,
		MaxDelay:    in.Cfg.Dispatch.MaxDelay,
	}), nil
}

type dispatcherIn struct {
	dig.In

	Cfg        *config.Config
	Logger     logx.Logger
	Units      *repository.UnitRepo
	Candidates *repository.CandidateRepo
	Selector   *selector.Selector
	Tokens     *token.Codec
	Notifier   *notify.Notifier
	Provider   *dispatch.RetryingGateway
	Metrics    *metrics.Offers
}

func newDispatcher(in dispatcherIn) *offer.Dispatcher {
	return offer.NewDispatcher(offer.Deps{
		Units:      in.Units,
		Candidates: in.Candidates,
		Selector:   in.Selector,
		Tokens:     in.Tokens,
		Notifier:   in.Notifier,
		Provider:   in.Provider,
		Metrics:    in.Metrics,
		Logger:     in.Logger,
	}, offer.Settings{
		TaskWindow:       in.Cfg.Offers.TaskWindow,
		RouteWindow:      in.Cfg.Offers.RouteWindow,
		ReconfirmWindow:  in.Cfg.Offers.ReconfirmWindow,
		PublicURL:        in.Cfg.Offers.PublicURL,
		OperatorPool:     in.Cfg.Dispatch.OperatorPool,
		OperationTimeout: in.Cfg.Offers.OperationTimeout,
	})
}

func newIntakeProcessor(
	units *repository.UnitRepo,
	d *offer.Dispatcher,
	r *offer.Reconfirmer,
	c *offer.Canceller,
	logger logx.Logger,
) *intake.Processor {
	return intake.NewProcessor(units, d, r, c, logger)
}

type sweeperIn struct {
	dig.In

	Cfg      *config.Config
	Logger   logx.Logger
	Units    *repository.UnitRepo
	Dispatch *offer.Dispatcher
	Notifier *notify.Notifier
	Dedup    *repository.NotificationLog
	Metrics  *metrics.Offers
}

func newSweeper(in sweeperIn) *sweep.Sweeper {
	return sweep.New(in.Units, in.Dispatch, in.Notifier, in.Dedup, in.Metrics, sweep.Config{
		BatchSize:  in.Cfg.Sweep.BatchSize,
		StallAfter: in.Cfg.Sweep.StallAfter,
	}, in.Logger)
}

func newSweepScheduler(s *sweep.Sweeper, cfg *config.Config, logger logx.Logger) *sweep.Scheduler {
	return sweep.NewScheduler(s, cfg.Sweep.Schedule, sweepTimeout, logger)
}
