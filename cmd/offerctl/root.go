package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"offer-dispatch/internal/app"
	"offer-dispatch/internal/config"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/repository"
	"offer-dispatch/internal/service/offer"
	"offer-dispatch/internal/service/sweep"
)

// deps are the operations the commands need. Tests replace them.
type deps struct {
	loadConfig func() (*config.Config, error)
	migrate    func(ctx context.Context) error
	sweep      func(ctx context.Context) (sweep.Report, error)
	cancel     func(ctx context.Context, unitID int64, reason string) error
	upsert     func(ctx context.Context, cs []domain.Candidate) error
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "offerctl",
		Short:         "Operator tool for the offer dispatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(d.migrate),
		newSweepCmd(d.sweep),
		newCancelCmd(d.cancel),
		newCandidatesCmd(d.upsert),
		newTokenCmd(d.loadConfig),
	)
	return root
}

// loadConfig reads the environment only; offerctl flags belong to cobra.
func loadConfig() (*config.Config, error) {
	return config.LoadFrom(pflag.NewFlagSet("offerctl", pflag.ContinueOnError), nil)
}

// invoke builds the service container and runs fn against it.
func invoke(ctx context.Context, fn any) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := app.NewContainerBuilder().WithConfig(cfg).MustBuild(ctx)
	defer func() {
		_ = c.Invoke(func(pool *pgxpool.Pool) { pool.Close() })
	}()
	return c.Invoke(fn)
}

func defaultDeps() deps {
	return deps{
		loadConfig: loadConfig,
		migrate: func(ctx context.Context) error {
			return invoke(ctx, func(pool *pgxpool.Pool) error {
				return repository.Migrate(ctx, pool)
			})
		},
		sweep: func(ctx context.Context) (sweep.Report, error) {
			var rep sweep.Report
			err := invoke(ctx, func(s *sweep.Sweeper) error {
				var runErr error
				rep, runErr = s.Run(ctx)
				return runErr
			})
			return rep, err
		},
		cancel: func(ctx context.Context, unitID int64, reason string) error {
			return invoke(ctx, func(c *offer.Canceller) error {
				return c.Cancel(ctx, unitID, reason)
			})
		},
		upsert: func(ctx context.Context, cs []domain.Candidate) error {
			return invoke(ctx, func(repo *repository.CandidateRepo) error {
				for i := range cs {
					if err := repo.Upsert(ctx, &cs[i]); err != nil {
						return fmt.Errorf("candidate %d: %w", i, err)
					}
				}
				return nil
			})
		},
	}
}
