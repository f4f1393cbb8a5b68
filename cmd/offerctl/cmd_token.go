package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/config"
	"offer-dispatch/internal/token"
)

type tokenReport struct {
	Status    string        `json:"status"`
	Claims    *token.Claims `json:"claims,omitempty"`
	ExpiresIn string        `json:"expires_in,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with offer link tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			codec, err := token.NewCodec([]byte(cfg.Offers.TokenSecret), token.TTL{
				Task:  cfg.Offers.TokenTaskTTL,
				Route: cfg.Offers.TokenRouteTTL,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspect(codec, args[0], time.Now()))
		},
	})
	return cmd
}

func inspect(codec *token.Codec, raw string, now time.Time) tokenReport {
	claims, err := codec.Parse(raw)
	switch {
	case err == nil:
		return tokenReport{Status: "valid", Claims: &claims, ExpiresIn: remaining(claims, now)}
	case errors.Is(err, apperr.ErrExpired):
		return tokenReport{Status: "expired", Claims: &claims, Error: err.Error()}
	default:
		return tokenReport{Status: "invalid", Error: err.Error()}
	}
}

// remaining is how long a token still works, rounded for display.
func remaining(c token.Claims, now time.Time) string {
	if !now.Before(c.ExpiresAt) {
		return "0s"
	}
	return fmt.Sprint(c.ExpiresAt.Sub(now).Round(time.Second))
}
