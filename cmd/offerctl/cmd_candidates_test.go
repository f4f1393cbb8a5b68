package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/domain"
)

const rosterJSON = `[
	{
		"external_id": "w-ann",
		"name": "Ann",
		"phone": "+1 (555) 000-0001",
		"teams": ["north"],
		"services": ["Moving", "delivery"],
		"availability": {"weekly": [{"weekday": 1, "from": 360, "to": 1320}]}
	},
	{
		"external_id": "w-ben",
		"name": "Ben",
		"phone": "+15550000002",
		"services": ["moving"],
		"active": false
	}
]`

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	cs, err := parseCandidates(strings.NewReader(rosterJSON), now)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	ann := cs[0]
	require.Equal(t, "w-ann", ann.ExternalID)
	require.Equal(t, "+15550000001", ann.Phone)
	require.Equal(t, []domain.ServiceType{domain.ServiceMoving, domain.ServiceDelivery}, ann.Services)
	require.True(t, ann.Active)
	require.True(t, ann.RegisteredAt.Equal(now))
	require.Len(t, ann.Availability.Weekly, 1)

	require.False(t, cs[1].Active)
}

func TestParseCandidates_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":        `{`,
		"unknown field":   `[{"external_id":"w","phone":"1","services":["moving"],"age":3}]`,
		"missing id":      `[{"phone":"1","services":["moving"]}]`,
		"missing phone":   `[{"external_id":"w","phone":"n/a","services":["moving"]}]`,
		"no services":     `[{"external_id":"w","phone":"1"}]`,
		"unknown service": `[{"external_id":"w","phone":"1","services":["cleaning"]}]`,
		"bad window":      `[{"external_id":"w","phone":"1","services":["moving"],"availability":{"weekly":[{"weekday":1,"from":600,"to":500}]}}]`,
		"duplicate": `[{"external_id":"w","phone":"1","services":["moving"]},
			{"external_id":"w","phone":"2","services":["moving"]}]`,
	}
	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			_, err := parseCandidates(strings.NewReader(in), time.Now())
			require.Error(t, err)
		})
	}
}

func TestCandidatesImportCmd(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(rosterJSON), 0o600))

	var got []domain.Candidate
	d := deps{upsert: func(_ context.Context, cs []domain.Candidate) error {
		got = append(got, cs...)
		return nil
	}}

	out, err := execute(t, d, "", "candidates", "import", path)
	require.NoError(t, err)
	require.Contains(t, out, "imported 2 candidates")
	require.Len(t, got, 2)

	got = nil
	out, err = execute(t, d, rosterJSON, "candidates", "import", "-")
	require.NoError(t, err)
	require.Contains(t, out, "imported 2 candidates")
	require.Len(t, got, 2)
}
