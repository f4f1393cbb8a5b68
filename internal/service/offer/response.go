package offer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/token"
)

// ResponseHandler resolves candidate answers arriving as link clicks or
// SMS replies.
type ResponseHandler struct {
	*core
	dispatcher *Dispatcher
	policy     *bluemonday.Policy
}

// NewResponseHandler creates a ResponseHandler sharing d's collaborators.
func NewResponseHandler(d *Dispatcher) *ResponseHandler {
	return &ResponseHandler{
		core:       d.core,
		dispatcher: d,
		policy:     bluemonday.StrictPolicy(),
	}
}

// RespondToken applies the action carried by a signed offer link.
func (h *ResponseHandler) RespondToken(ctx context.Context, raw string) (domain.Resolution, error) {
	claims, err := h.Tokens.Parse(raw)
	if err != nil {
		return domain.Resolution{}, err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	u, err := h.load(ctx, claims.UnitID)
	if err != nil {
		return domain.Resolution{}, err
	}
	res := domain.Resolution{UnitID: u.ID, CandidateID: claims.CandidateID, Action: claims.Action}
	if err := h.checkClaims(u, claims); err != nil {
		if isRace(err) {
			res.Outcome = domain.OutcomeAlreadyHandled
		}
		return res, err
	}
	return h.resolve(ctx, u, claims.CandidateID, claims.Action)
}

// checkClaims compares a verified token with the unit's current row.
func (h *ResponseHandler) checkClaims(u *domain.OfferUnit, c token.Claims) error {
	now := h.clock()
	switch {
	case u.Status == domain.StatusCancelled:
		return fmt.Errorf("%w: unit %d was cancelled", apperr.ErrAlreadyResolved, u.ID)
	case c.UnitType != u.Type:
		return fmt.Errorf("%w: unit type mismatch", apperr.ErrInvalidToken)
	case c.ScheduleVersion != u.ScheduleVersion:
		return fmt.Errorf("%w: unit %d changed since the offer was sent", apperr.ErrExpired, u.ID)
	case u.Status == domain.StatusExpired:
		return fmt.Errorf("%w: offer for unit %d timed out", apperr.ErrExpired, u.ID)
	case u.Status.Outstanding() && !u.HeldBy(c.CandidateID):
		return fmt.Errorf("%w: offer for unit %d moved to another candidate", apperr.ErrExpired, u.ID)
	case u.Status.Outstanding() && u.NotifiedAt != nil && c.IssuedAt.Before(*u.NotifiedAt):
		return fmt.Errorf("%w: offer for unit %d was renewed", apperr.ErrExpired, u.ID)
	case u.Status.Outstanding() && u.ExpiredAt(now):
		return fmt.Errorf("%w: offer for unit %d timed out", apperr.ErrExpired, u.ID)
	case !u.Status.Outstanding():
		return fmt.Errorf("%w: unit %d is %s", apperr.ErrAlreadyResolved, u.ID, u.Status)
	}
	return nil
}

// RespondReply applies a free-text SMS answer. The sender is matched by
// phone number; a trailing unit id picks one of several open offers,
// otherwise the most recent one is used.
func (h *ResponseHandler) RespondReply(ctx context.Context, from, body string) (domain.Resolution, error) {
	action, unitID, err := ParseReply(h.policy.Sanitize(body))
	if err != nil {
		return domain.Resolution{}, err
	}
	phone := NormalizePhone(from)
	if phone == "" {
		return domain.Resolution{}, fmt.Errorf("%w: sender phone is empty", apperr.ErrValidation)
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	cand, err := h.Candidates.GetByPhone(ctx, phone)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load candidate by phone: %w", err)
	}
	if cand == nil {
		return domain.Resolution{}, fmt.Errorf("%w: no candidate with this phone", apperr.ErrNotFound)
	}
	open, err := h.Units.ListOutstandingForCandidate(ctx, cand.ID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("list open offers for candidate %d: %w", cand.ID, err)
	}
	now := h.clock()
	u := pickUnit(open, unitID, now)
	if u == nil {
		return domain.Resolution{}, fmt.Errorf("%w: candidate %d has no open offer", apperr.ErrNotFound, cand.ID)
	}
	if u.ExpiredAt(now) {
		return domain.Resolution{UnitID: u.ID, CandidateID: cand.ID, Action: action},
			fmt.Errorf("%w: offer for unit %d timed out", apperr.ErrExpired, u.ID)
	}
	return h.resolve(ctx, u, cand.ID, action)
}

// pickUnit returns the named offer, or the most recent one still inside its
// window. Timed-out offers are only returned when nothing live is left.
func pickUnit(open []*domain.OfferUnit, unitID int64, now time.Time) *domain.OfferUnit {
	if unitID == 0 {
		for _, u := range open {
			if !u.ExpiredAt(now) {
				return u
			}
		}
		if len(open) == 0 {
			return nil
		}
		return open[0]
	}
	for _, u := range open {
		if u.ID == unitID {
			return u
		}
	}
	return nil
}

var (
	acceptWords  = []string{"yes", "y", "accept", "ok", "okay", "confirm", "1"}
	declineWords = []string{"no", "n", "decline", "reject", "2"}
)

// ParseReply reads the intent of an SMS answer: an accept or decline word,
// optionally followed by a unit id.
func ParseReply(body string) (domain.Action, int64, error) {
	fields := strings.Fields(strings.ToLower(body))
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("%w: empty reply", apperr.ErrValidation)
	}
	word := strings.Trim(fields[0], ".,!?#")
	var action domain.Action
	switch {
	case slices.Contains(acceptWords, word):
		action = domain.ActionAccept
	case slices.Contains(declineWords, word):
		action = domain.ActionDecline
	default:
		return "", 0, fmt.Errorf("%w: reply %q is neither yes nor no", apperr.ErrValidation, word)
	}
	var unitID int64
	if len(fields) > 1 {
		id, err := strconv.ParseInt(strings.Trim(fields[1], "#.,!?"), 10, 64)
		if err == nil && id > 0 {
			unitID = id
		}
	}
	return action, unitID, nil
}

// NormalizePhone strips formatting from a phone number, keeping a leading
// plus sign and the digits.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.String() == "+" {
		return ""
	}
	return b.String()
}

func (h *ResponseHandler) resolve(ctx context.Context, u *domain.OfferUnit, candidateID int64, action domain.Action) (domain.Resolution, error) {
	switch action {
	case domain.ActionAccept:
		return h.accept(ctx, u, candidateID)
	case domain.ActionDecline:
		return h.decline(ctx, u, candidateID)
	default:
		return domain.Resolution{}, fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, action)
	}
}

func (h *ResponseHandler) accept(ctx context.Context, u *domain.OfferUnit, candidateID int64) (domain.Resolution, error) {
	res := domain.Resolution{UnitID: u.ID, CandidateID: candidateID, Action: domain.ActionAccept}
	cand, err := h.candidate(ctx, candidateID)
	if err != nil {
		return res, err
	}
	prev := u.Status
	now := h.clock()
	if err := h.commit(ctx, u, func(next *domain.OfferUnit) error {
		return next.Accept(candidateID, now)
	}); err != nil {
		if isRace(err) {
			res.Outcome = domain.OutcomeAlreadyHandled
		}
		return res, fmt.Errorf("accept unit %d: %w", u.ID, err)
	}

	if err := h.Provider.AssignWorker(ctx, u.ContainerID, cand.ExternalID); err != nil {
		h.rollbackAcceptance(ctx, u, prev)
		h.syncFailed(ctx, u, OpAssign, err)
		return res, fmt.Errorf("%w: assign unit %d to candidate %d: %v", apperr.ErrExternalSync, u.ID, candidateID, err)
	}
	h.releaseIfCancelled(ctx, u)

	h.Metrics.Response(domain.ActionAccept, domain.OutcomeAccepted)
	h.Logger.Info("offer accepted",
		logx.String("event", "offer_accepted"),
		logx.Int64("unit_id", u.ID),
		logx.Int64("candidate_id", candidateID),
		logx.Bool("reconfirmation", prev == domain.StatusPendingReconfirmation),
	)
	res.Outcome = domain.OutcomeAccepted
	return res, nil
}

// rollbackAcceptance returns the unit to the offer the candidate answered,
// so they can try again until it expires.
func (h *ResponseHandler) rollbackAcceptance(ctx context.Context, u *domain.OfferUnit, prev domain.OfferStatus) {
	now := h.clock()
	if err := h.commit(ctx, u, func(next *domain.OfferUnit) error {
		return next.RevertAcceptance(prev, now)
	}); err != nil {
		h.Logger.Error("acceptance rollback failed",
			logx.Int64("unit_id", u.ID),
			logx.Err(err),
		)
	}
}

// releaseIfCancelled undoes an assignment that lost to a concurrent cancel.
func (h *ResponseHandler) releaseIfCancelled(ctx context.Context, u *domain.OfferUnit) {
	cur, err := h.Units.Get(ctx, u.ID)
	if err != nil {
		h.Logger.Warn("reload after accept failed", logx.Int64("unit_id", u.ID), logx.Err(err))
		return
	}
	if cur != nil && cur.Status == domain.StatusCancelled {
		h.unassign(ctx, cur)
	}
}

func (h *ResponseHandler) decline(ctx context.Context, u *domain.OfferUnit, candidateID int64) (domain.Resolution, error) {
	res := domain.Resolution{UnitID: u.ID, CandidateID: candidateID, Action: domain.ActionDecline}
	wasReconfirm := u.Status == domain.StatusPendingReconfirmation
	now := h.clock()
	if err := h.commit(ctx, u, func(next *domain.OfferUnit) error {
		return next.Decline(candidateID, now)
	}); err != nil {
		if isRace(err) {
			res.Outcome = domain.OutcomeAlreadyHandled
		}
		return res, fmt.Errorf("decline unit %d: %w", u.ID, err)
	}
	h.Metrics.Response(domain.ActionDecline, domain.OutcomeDeclined)
	h.Logger.Info("offer declined",
		logx.String("event", "offer_declined"),
		logx.Int64("unit_id", u.ID),
		logx.Int64("candidate_id", candidateID),
		logx.Bool("reconfirmation", wasReconfirm),
	)
	res.Outcome = domain.OutcomeDeclined
	if wasReconfirm {
		h.unassign(ctx, u)
	}

	esc, err := h.dispatcher.Advance(ctx, u)
	switch {
	case err != nil:
		// the sweep resumes stalled units
		if !isRace(err) {
			h.Logger.Error("advance after decline failed",
				logx.Int64("unit_id", u.ID),
				logx.Err(err),
			)
		}
	case esc != nil:
		res.Escalated = true
		h.alert(ctx, []domain.Escalation{*esc})
	case u.Status == domain.StatusSent && u.CandidateID != nil:
		res.NextCandidateID = domain.Int64Ptr(*u.CandidateID)
	}
	return res, nil
}
