package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
)

const unitColumns = `
	id, external_ref, unit_type, offer_status, candidate_id, assigned_candidate_id,
	notified_at, expires_at, declined_candidate_ids, schedule_version, row_version,
	requirements, payload, container_id, pending_change, status_reason,
	escalation_notified_at, created_at, updated_at`

// UnitRepo stores offer units. Every state change is a conditional update on
// row_version so concurrent writers cannot both win.
type UnitRepo struct {
	db *pgxpool.Pool
}

// NewUnitRepo creates a new UnitRepo.
func NewUnitRepo(db *pgxpool.Pool) *UnitRepo {
	return &UnitRepo{db: db}
}

// Create inserts a new unit and fills ID and RowVersion.
func (r *UnitRepo) Create(ctx context.Context, u *domain.OfferUnit) error {
	cols, err := encodeUnit(u)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
        INSERT INTO offer_units (
            external_ref, unit_type, offer_status, candidate_id, assigned_candidate_id,
            notified_at, expires_at, declined_candidate_ids, schedule_version,
            requirements, window_start, window_end, payload, container_id,
            pending_change, status_reason, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING id, row_version
    `,
		u.ExternalRef, string(u.Type), string(u.Status), u.CandidateID, u.AssignedCandidateID,
		u.NotifiedAt, u.ExpiresAt, cols.declined, u.ScheduleVersion,
		cols.requirements, cols.windowStart, cols.windowEnd, cols.payload, u.ContainerID,
		cols.pendingChange, u.StatusReason, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID, &u.RowVersion)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("%w: unit %q already exists", apperr.ErrConflict, u.ExternalRef)
		}
		return fmt.Errorf("insert unit %q: %w", u.ExternalRef, err)
	}
	return nil
}

// Get returns the unit or nil when it does not exist.
func (r *UnitRepo) Get(ctx context.Context, id int64) (*domain.OfferUnit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+unitColumns+` FROM offer_units WHERE id = $1`, id)
	u, err := scanUnit(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unit %d: %w", id, err)
	}
	return u, nil
}

// GetByExternalRef returns the unit for a booking-system job or nil.
func (r *UnitRepo) GetByExternalRef(ctx context.Context, ref string) (*domain.OfferUnit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+unitColumns+` FROM offer_units WHERE external_ref = $1`, ref)
	u, err := scanUnit(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unit by ref %q: %w", ref, err)
	}
	return u, nil
}

// Save writes u if the stored row still has u.RowVersion and one of the
// expected statuses. On success u.RowVersion is advanced; otherwise
// apperr.ErrAlreadyResolved is returned and nothing is written.
func (r *UnitRepo) Save(ctx context.Context, u *domain.OfferUnit, expected ...domain.OfferStatus) error {
	if len(expected) == 0 {
		return fmt.Errorf("save unit %d: no expected status", u.ID)
	}
	cols, err := encodeUnit(u)
	if err != nil {
		return err
	}
	var next int64
	err = r.db.QueryRow(ctx, `
        UPDATE offer_units
        SET offer_status = $4,
            candidate_id = $5,
            assigned_candidate_id = $6,
            notified_at = $7,
            expires_at = $8,
            declined_candidate_ids = $9,
            schedule_version = $10,
            requirements = $11,
            window_start = $12,
            window_end = $13,
            payload = $14,
            pending_change = $15,
            status_reason = $16,
            escalation_notified_at = CASE WHEN $4 = 'admin_escalated' THEN escalation_notified_at END,
            updated_at = $17,
            row_version = row_version + 1
        WHERE id = $1 AND row_version = $2 AND offer_status = ANY($3)
        RETURNING row_version
    `,
		u.ID, u.RowVersion, statusStrings(expected),
		string(u.Status), u.CandidateID, u.AssignedCandidateID, u.NotifiedAt, u.ExpiresAt,
		cols.declined, u.ScheduleVersion, cols.requirements, cols.windowStart, cols.windowEnd,
		cols.payload, cols.pendingChange, u.StatusReason, u.UpdatedAt,
	).Scan(&next)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: unit %d changed concurrently", apperr.ErrAlreadyResolved, u.ID)
		}
		if IsCheckViolation(err) {
			return fmt.Errorf("%w: unit %d: %v", apperr.ErrValidation, u.ID, err)
		}
		return fmt.Errorf("save unit %d: %w", u.ID, err)
	}
	u.RowVersion = next
	return nil
}

// Cancel marks the unit cancelled regardless of its row version. Only an
// already cancelled unit is left untouched.
func (r *UnitRepo) Cancel(ctx context.Context, u *domain.OfferUnit) error {
	var next int64
	err := r.db.QueryRow(ctx, `
        UPDATE offer_units
        SET offer_status = 'cancelled',
            assigned_candidate_id = NULL,
            status_reason = $2,
            escalation_notified_at = NULL,
            updated_at = $3,
            row_version = row_version + 1
        WHERE id = $1 AND offer_status <> 'cancelled'
        RETURNING row_version
    `, u.ID, u.StatusReason, u.UpdatedAt).Scan(&next)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: unit %d is already cancelled", apperr.ErrAlreadyResolved, u.ID)
		}
		return fmt.Errorf("cancel unit %d: %w", u.ID, err)
	}
	u.Status = domain.StatusCancelled
	u.AssignedCandidateID = nil
	u.RowVersion = next
	return nil
}

// ListDue returns outstanding offers whose window closed at or before now,
// oldest first.
func (r *UnitRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.OfferUnit, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+unitColumns+`
        FROM offer_units
        WHERE offer_status IN ('sent', 'pending_reconfirmation')
          AND expires_at <= $1
        ORDER BY expires_at, id
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due units: %w", err)
	}
	return collectUnits(rows)
}

// ListStalled returns units left in none/expired since before the cutoff,
// e.g. after a crash between a decline and the next offer.
func (r *UnitRepo) ListStalled(ctx context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+unitColumns+`
        FROM offer_units
        WHERE offer_status IN ('none', 'expired')
          AND updated_at <= $1
        ORDER BY updated_at, id
        LIMIT $2
    `, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled units: %w", err)
	}
	return collectUnits(rows)
}

// ListUnnotifiedEscalations returns escalated units whose operator alert
// never went out, escalated at or before the cutoff.
func (r *UnitRepo) ListUnnotifiedEscalations(ctx context.Context, before time.Time, limit int) ([]*domain.OfferUnit, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+unitColumns+`
        FROM offer_units
        WHERE offer_status = 'admin_escalated'
          AND escalation_notified_at IS NULL
          AND updated_at <= $1
        ORDER BY updated_at, id
        LIMIT $2
    `, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list unnotified escalations: %w", err)
	}
	return collectUnits(rows)
}

// MarkEscalationsNotified records that operators were told about the
// listed units. row_version is left untouched.
func (r *UnitRepo) MarkEscalationsNotified(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        UPDATE offer_units
        SET escalation_notified_at = $2
        WHERE id = ANY($1)
          AND offer_status = 'admin_escalated'
          AND escalation_notified_at IS NULL
    `, ids, at)
	if err != nil {
		return fmt.Errorf("mark escalations notified: %w", err)
	}
	return nil
}

// ListOutstandingForCandidate returns the candidate's live offers, most
// recently notified first.
func (r *UnitRepo) ListOutstandingForCandidate(ctx context.Context, candidateID int64) ([]*domain.OfferUnit, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+unitColumns+`
        FROM offer_units
        WHERE offer_status IN ('sent', 'pending_reconfirmation')
          AND candidate_id = $1
        ORDER BY notified_at DESC, id DESC
    `, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list offers of candidate %d: %w", candidateID, err)
	}
	return collectUnits(rows)
}

// BusyCandidates returns candidates holding or bound to another unit whose
// window overlaps [start, end).
func (r *UnitRepo) BusyCandidates(ctx context.Context, excludeUnitID int64, start, end time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
        SELECT DISTINCT COALESCE(assigned_candidate_id, candidate_id)
        FROM offer_units
        WHERE id <> $1
          AND offer_status IN ('sent', 'pending_reconfirmation', 'accepted')
          AND COALESCE(assigned_candidate_id, candidate_id) IS NOT NULL
          AND window_start < $3
          AND window_end > $2
    `, excludeUnitID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list busy candidates: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan busy candidates: %w", err)
	}
	return ids, nil
}

type unitCols struct {
	declined      []int64
	requirements  []byte
	payload       []byte
	pendingChange []byte
	windowStart   *time.Time
	windowEnd     *time.Time
}

func encodeUnit(u *domain.OfferUnit) (unitCols, error) {
	var c unitCols
	var err error
	c.declined = u.DeclinedCandidateIDs
	if c.declined == nil {
		c.declined = []int64{}
	}
	if c.requirements, err = json.Marshal(u.Requirements); err != nil {
		return c, fmt.Errorf("encode requirements: %w", err)
	}
	if c.payload, err = json.Marshal(u.Payload); err != nil {
		return c, fmt.Errorf("encode payload: %w", err)
	}
	if u.PendingChange != nil {
		if c.pendingChange, err = json.Marshal(u.PendingChange); err != nil {
			return c, fmt.Errorf("encode pending change: %w", err)
		}
	}
	if u.Requirements.HasWindow() {
		c.windowStart = domain.TimePtr(u.Requirements.WindowStart)
		c.windowEnd = domain.TimePtr(u.Requirements.WindowEnd)
	}
	return c, nil
}

func scanUnit(row pgx.Row) (*domain.OfferUnit, error) {
	var (
		u                     domain.OfferUnit
		unitType, status      string
		requirements, payload []byte
		pendingChange         []byte
	)
	err := row.Scan(
		&u.ID, &u.ExternalRef, &unitType, &status, &u.CandidateID, &u.AssignedCandidateID,
		&u.NotifiedAt, &u.ExpiresAt, &u.DeclinedCandidateIDs, &u.ScheduleVersion, &u.RowVersion,
		&requirements, &payload, &u.ContainerID, &pendingChange, &u.StatusReason,
		&u.EscalationNotifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Type = domain.UnitType(unitType)
	u.Status = domain.OfferStatus(status)
	if err := json.Unmarshal(requirements, &u.Requirements); err != nil {
		return nil, fmt.Errorf("decode requirements of unit %d: %w", u.ID, err)
	}
	if err := json.Unmarshal(payload, &u.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of unit %d: %w", u.ID, err)
	}
	if len(pendingChange) > 0 {
		u.PendingChange = &domain.ScheduleChange{}
		if err := json.Unmarshal(pendingChange, u.PendingChange); err != nil {
			return nil, fmt.Errorf("decode pending change of unit %d: %w", u.ID, err)
		}
	}
	if len(u.DeclinedCandidateIDs) == 0 {
		u.DeclinedCandidateIDs = nil
	}
	return &u, nil
}

func collectUnits(rows pgx.Rows) ([]*domain.OfferUnit, error) {
	defer rows.Close()
	var out []*domain.OfferUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return out, nil
}

func statusStrings(ss []domain.OfferStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
