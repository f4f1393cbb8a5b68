package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"offer-dispatch/internal/service/sweep"
)

func newMigrateCmd(migrate func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSweepCmd(run func(ctx context.Context) (sweep.Report, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire due offers once and print the run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := run(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}

func newCancelCmd(cancel func(ctx context.Context, unitID int64, reason string) error) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <unit-id>",
		Short: "Cancel a unit and tell its candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("cancel: invalid unit id %q", args[0])
			}
			if err := cancel(cmd.Context(), id, reason); err != nil {
				return fmt.Errorf("cancel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unit %d cancelled\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "reason sent to the candidate")
	return cmd
}
