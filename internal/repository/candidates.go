package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"offer-dispatch/internal/domain"
)

const candidateColumns = `id, external_id, name, phone, teams, services, active, availability, registered_at`

// CandidateRepo reads workers owned by the worker-management subsystem.
type CandidateRepo struct {
	db *pgxpool.Pool
}

// NewCandidateRepo creates a new CandidateRepo.
func NewCandidateRepo(db *pgxpool.Pool) *CandidateRepo {
	return &CandidateRepo{db: db}
}

// ListActive returns active candidates ordered by registration time.
func (r *CandidateRepo) ListActive(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+candidateColumns+`
        FROM candidates
        WHERE active
        ORDER BY registered_at, id
    `)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// Get returns the candidate or nil.
func (r *CandidateRepo) Get(ctx context.Context, id int64) (*domain.Candidate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return c, nil
}

// GetByPhone returns the candidate registered with phone or nil.
func (r *CandidateRepo) GetByPhone(ctx context.Context, phone string) (*domain.Candidate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE phone = $1`, phone)
	c, err := scanCandidate(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get candidate by phone: %w", err)
	}
	return c, nil
}

// Upsert inserts or refreshes a candidate keyed by external id.
func (r *CandidateRepo) Upsert(ctx context.Context, c *domain.Candidate) error {
	avail, err := json.Marshal(c.Availability)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}
	services := make([]string, len(c.Services))
	for i, s := range c.Services {
		services[i] = string(s)
	}
	teams := c.Teams
	if teams == nil {
		teams = []string{}
	}
	err = r.db.QueryRow(ctx, `
        INSERT INTO candidates (external_id, name, phone, teams, services, active, availability, registered_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (external_id) DO UPDATE
        SET name = EXCLUDED.name,
            phone = EXCLUDED.phone,
            teams = EXCLUDED.teams,
            services = EXCLUDED.services,
            active = EXCLUDED.active,
            availability = EXCLUDED.availability
        RETURNING id, registered_at
    `, c.ExternalID, c.Name, c.Phone, teams, services, c.Active, avail, c.RegisteredAt).Scan(&c.ID, &c.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upsert candidate %q: %w", c.ExternalID, err)
	}
	return nil
}

func scanCandidate(row pgx.Row) (*domain.Candidate, error) {
	var (
		c        domain.Candidate
		services []string
		avail    []byte
	)
	if err := row.Scan(&c.ID, &c.ExternalID, &c.Name, &c.Phone, &c.Teams, &services, &c.Active, &avail, &c.RegisteredAt); err != nil {
		return nil, err
	}
	for _, s := range services {
		c.Services = append(c.Services, domain.ServiceType(s))
	}
	if len(avail) > 0 {
		if err := json.Unmarshal(avail, &c.Availability); err != nil {
			return nil, fmt.Errorf("decode availability of candidate %d: %w", c.ID, err)
		}
	}
	return &c, nil
}
