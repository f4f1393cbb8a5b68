// Package offer drives units through the offer state machine: sending
// offers, resolving answers, reconfirming changed jobs and cancelling them.
// Every state change is a conditional write, so concurrent actors race
// safely and exactly one of them wins.
package offer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
	"offer-dispatch/internal/notify"
)

// Provider operation names used in logs, metrics and alerts.
const (
	OpAssign     = "assign_worker"
	OpUnassign   = "unassign_worker"
	OpMoveToPool = "move_to_pool"
)

const reasonNoCandidates = "no eligible candidates"

// Deps are the collaborators shared by the offer services.
type Deps struct {
	Units      UnitStore
	Candidates CandidateStore
	Selector   Selector
	Tokens     Tokens
	Notifier   Notifier
	Provider   Provider
	Metrics    Metrics
	Logger     logx.Logger
}

// Settings are the dispatch timing and routing knobs.
type Settings struct {
	TaskWindow       time.Duration
	RouteWindow      time.Duration
	ReconfirmWindow  time.Duration
	PublicURL        string
	OperatorPool     string
	OperationTimeout time.Duration
}

// Window returns the response window for a unit type.
func (s Settings) Window(ut domain.UnitType) time.Duration {
	if ut == domain.UnitRoute {
		return s.RouteWindow
	}
	return s.TaskWindow
}

type core struct {
	Deps
	settings Settings
	now      func() time.Time
}

func newCore(deps Deps, settings Settings) *core {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logx.Nop()
	}
	if settings.OperationTimeout <= 0 {
		settings.OperationTimeout = 3 * time.Second
	}
	if settings.ReconfirmWindow <= 0 {
		settings.ReconfirmWindow = settings.RouteWindow
	}
	settings.PublicURL = strings.TrimRight(settings.PublicURL, "/")
	return &core{
		Deps:     deps,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// clock truncates to the storage precision so tokens and rows agree.
func (c *core) clock() time.Time {
	return c.now().Truncate(time.Microsecond)
}

func (c *core) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.settings.OperationTimeout)
}

// commit applies mutate to a copy of u and saves it, conditional on u's
// current status and row version. u is updated only when the write wins.
func (c *core) commit(ctx context.Context, u *domain.OfferUnit, mutate func(next *domain.OfferUnit) error) error {
	next := u.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	if err := c.Units.Save(ctx, next, u.Status); err != nil {
		return err
	}
	*u = *next
	return nil
}

func (c *core) load(ctx context.Context, id int64) (*domain.OfferUnit, error) {
	u, err := c.Units.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load unit %d: %w", id, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: unit %d", apperr.ErrNotFound, id)
	}
	return u, nil
}

func (c *core) candidate(ctx context.Context, id int64) (*domain.Candidate, error) {
	cand, err := c.Candidates.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load candidate %d: %w", id, err)
	}
	if cand == nil {
		return nil, fmt.Errorf("%w: candidate %d", apperr.ErrNotFound, id)
	}
	return cand, nil
}

func (c *core) links(u *domain.OfferUnit) (notify.Links, error) {
	accept, _, err := c.Tokens.Mint(u, domain.ActionAccept)
	if err != nil {
		return notify.Links{}, err
	}
	decline, _, err := c.Tokens.Mint(u, domain.ActionDecline)
	if err != nil {
		return notify.Links{}, err
	}
	base := c.settings.PublicURL + "/offers/respond?token="
	return notify.Links{
		Accept:  base + url.QueryEscape(accept),
		Decline: base + url.QueryEscape(decline),
	}, nil
}

// sendOffer notifies the holder of u's live offer. Failures are logged and
// counted; the committed state stands and the sweep moves the unit on if
// the candidate never hears about it.
func (c *core) sendOffer(ctx context.Context, u *domain.OfferUnit, cand *domain.Candidate, reconfirm bool) {
	kind := "offer"
	send := c.Notifier.Offer
	if reconfirm {
		kind = "reconfirm"
		send = c.Notifier.Reconfirm
	}
	links, err := c.links(u)
	if err == nil {
		_, err = send(ctx, u, cand, links)
	}
	if err != nil {
		c.Metrics.NotificationFailed(kind)
		c.Logger.Warn("offer notification failed",
			logx.String("kind", kind),
			logx.Int64("unit_id", u.ID),
			logx.Int64("candidate_id", cand.ID),
			logx.Err(err),
		)
	}
}

func (c *core) alert(ctx context.Context, escs []domain.Escalation) {
	if len(escs) == 0 {
		return
	}
	if err := c.Notifier.Escalations(ctx, escs); err != nil {
		c.Metrics.NotificationFailed("escalation")
		c.Logger.Error("operator escalation notification failed, the sweep will retry",
			logx.Int("units", len(escs)),
			logx.Err(err),
		)
		return
	}
	ids := make([]int64, 0, len(escs))
	for _, e := range escs {
		ids = append(ids, e.UnitID)
	}
	if err := c.Units.MarkEscalationsNotified(ctx, ids, c.clock()); err != nil {
		c.Logger.Warn("mark escalations notified failed", logx.Err(err))
	}
}

// unassign releases the container at the provider. It is best effort:
// operators are told when the provider refuses.
func (c *core) unassign(ctx context.Context, u *domain.OfferUnit) {
	if u.ContainerID == "" {
		return
	}
	if err := c.Provider.UnassignWorker(ctx, u.ContainerID); err != nil {
		c.syncFailed(ctx, u, OpUnassign, err)
	}
}

func (c *core) syncFailed(ctx context.Context, u *domain.OfferUnit, op string, cause error) {
	c.Metrics.SyncFailed(op)
	c.Logger.Warn("dispatch provider call failed",
		logx.String("op", op),
		logx.Int64("unit_id", u.ID),
		logx.String("container_id", u.ContainerID),
		logx.Err(cause),
	)
	if err := c.Notifier.SyncFailure(ctx, u, op, cause); err != nil {
		c.Metrics.NotificationFailed("sync_failure")
		c.Logger.Error("sync failure notification failed", logx.Int64("unit_id", u.ID), logx.Err(err))
	}
}

func isRace(err error) bool {
	return errors.Is(err, apperr.ErrAlreadyResolved)
}
