package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/service/offer"
)

// candidateRecord is one entry of an import file.
type candidateRecord struct {
	ExternalID   string              `json:"external_id"`
	Name         string              `json:"name"`
	Phone        string              `json:"phone"`
	Teams        []string            `json:"teams"`
	Services     []string            `json:"services"`
	Active       *bool               `json:"active"`
	Availability domain.Availability `json:"availability"`
}

func newCandidatesCmd(upsert func(ctx context.Context, cs []domain.Candidate) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Manage the local candidate roster",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.json|->",
		Short: "Insert or refresh candidates from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("import: %w", err)
				}
				defer f.Close()
				r = f
			}
			cs, err := parseCandidates(r, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if err := upsert(cmd.Context(), cs); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d candidates\n", len(cs))
			return nil
		},
	})
	return cmd
}

// parseCandidates validates an import file. New candidates rank by now;
// existing ones keep their original registration time.
func parseCandidates(r io.Reader, now time.Time) ([]domain.Candidate, error) {
	var recs []candidateRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]domain.Candidate, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for i, rec := range recs {
		c, err := rec.toDomain(now)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[c.ExternalID] {
			return nil, fmt.Errorf("entry %d: duplicate external_id %q", i, c.ExternalID)
		}
		seen[c.ExternalID] = true
		out = append(out, c)
	}
	return out, nil
}

func (r candidateRecord) toDomain(now time.Time) (domain.Candidate, error) {
	c := domain.Candidate{
		ExternalID:   strings.TrimSpace(r.ExternalID),
		Name:         strings.TrimSpace(r.Name),
		Phone:        offer.NormalizePhone(r.Phone),
		Teams:        r.Teams,
		Active:       r.Active == nil || *r.Active,
		Availability: r.Availability,
		RegisteredAt: now,
	}
	if c.ExternalID == "" {
		return c, fmt.Errorf("external_id is required")
	}
	if c.Phone == "" {
		return c, fmt.Errorf("phone is required")
	}
	if len(r.Services) == 0 {
		return c, fmt.Errorf("at least one service is required")
	}
	for _, s := range r.Services {
		st := domain.ServiceType(strings.ToLower(strings.TrimSpace(s)))
		if !st.Valid() {
			return c, fmt.Errorf("unknown service %q", s)
		}
		c.Services = append(c.Services, st)
	}
	for _, w := range c.Availability.Weekly {
		if w.From < 0 || w.To > 24*60 || w.From >= w.To {
			return c, fmt.Errorf("bad availability window %v %d-%d", w.Weekday, w.From, w.To)
		}
	}
	return c, nil
}
