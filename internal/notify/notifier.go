// Package notify selects and renders candidate and operator messages and
// hands them to a Publisher. Candidate messages are deduplicated through a
// shared store so a retried step never sends the same offer twice.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/logx"
)

// List of channels
const (
	ChannelSMS       = "sms"
	ChannelOperators = "operators"
)

// Message is one outbound notification request.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Template  string    `json:"template"`
	Body      string    `json:"body"`
	UnitID    int64     `json:"unit_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Links are the signed action URLs embedded in an offer.
type Links struct {
	Accept  string
	Decline string
}

// Publisher delivers a message to the notification transport.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// DedupStore records which notifications were already sent.
type DedupStore interface {
	Claim(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
}

// Config holds notifier settings.
type Config struct {
	DedupTTL        time.Duration
	OperatorChannel string
	ConsoleURL      string
	Location        *time.Location
}

// Notifier renders and publishes messages.
type Notifier struct {
	pub    Publisher
	dedup  DedupStore
	cfg    Config
	logger logx.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Notifier.
func New(pub Publisher, dedup DedupStore, cfg Config, logger logx.Logger) *Notifier {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.ConsoleURL = strings.TrimRight(cfg.ConsoleURL, "/")
	if logger == nil {
		logger = logx.Nop()
	}
	return &Notifier{
		pub:    pub,
		dedup:  dedup,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

type candidateView struct {
	Name    string
	Ref     string
	Summary string
	Window  string
	Change  string
	Accept  string
	Decline string
	Expires string
}

// Offer sends the offer message for the unit's current offer round. It
// returns false when this round was already notified.
func (n *Notifier) Offer(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate, links Links) (bool, error) {
	tpl := TplOfferTask
	if u.Type == domain.UnitRoute {
		tpl = TplOfferRoute
	}
	return n.toCandidate(ctx, "offer", tpl, u, c, n.view(u, c, links))
}

// Reconfirm asks the incumbent to confirm a changed job.
func (n *Notifier) Reconfirm(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate, links Links) (bool, error) {
	v := n.view(u, c, links)
	if u.PendingChange != nil {
		v.Change = u.PendingChange.Summary
	}
	return n.toCandidate(ctx, "reconfirm", TplReconfirm, u, c, v)
}

// Cancelled tells the candidate the job is gone.
func (n *Notifier) Cancelled(ctx context.Context, u *domain.OfferUnit, c *domain.Candidate) (bool, error) {
	return n.toCandidate(ctx, "cancelled", TplCancelled, u, c, n.view(u, c, Links{}))
}

type escalationItem struct {
	UnitID int64
	Type   domain.UnitType
	Ref    string
	Reason string
	Link   string
}

// Escalations sends one operator message listing every escalated unit.
func (n *Notifier) Escalations(ctx context.Context, escs []domain.Escalation) error {
	if len(escs) == 0 {
		return nil
	}
	items := make([]escalationItem, 0, len(escs))
	for _, e := range escs {
		items = append(items, escalationItem{
			UnitID: e.UnitID,
			Type:   e.UnitType,
			Ref:    e.ExternalRef,
			Reason: e.Reason,
			Link:   n.unitLink(e.UnitID),
		})
	}
	body, err := render(TplOperatorEscalation, struct{ Items []escalationItem }{items})
	if err != nil {
		return fmt.Errorf("render %s: %w", TplOperatorEscalation, err)
	}
	return n.publish(ctx, Message{
		Channel:  ChannelOperators,
		To:       n.cfg.OperatorChannel,
		Template: TplOperatorEscalation,
		Body:     body,
	})
}

// SyncFailure alerts operators that the provider rejected a call.
func (n *Notifier) SyncFailure(ctx context.Context, u *domain.OfferUnit, op string, cause error) error {
	body, err := render(TplSyncFailure, map[string]any{
		"Op":        op,
		"UnitID":    u.ID,
		"Ref":       u.ExternalRef,
		"Container": u.ContainerID,
		"Cause":     errText(cause),
		"Link":      n.unitLink(u.ID),
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", TplSyncFailure, err)
	}
	return n.publish(ctx, Message{
		Channel:  ChannelOperators,
		To:       n.cfg.OperatorChannel,
		Template: TplSyncFailure,
		Body:     body,
		UnitID:   u.ID,
	})
}

func (n *Notifier) toCandidate(ctx context.Context, kind, tpl string, u *domain.OfferUnit, c *domain.Candidate, v candidateView) (bool, error) {
	if c == nil || strings.TrimSpace(c.Phone) == "" {
		return false, fmt.Errorf("candidate for unit %d has no phone", u.ID)
	}
	now := n.now()
	ok, err := n.dedup.Claim(ctx, dedupKey(kind, u, c.ID), now, n.cfg.DedupTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s notification: %w", kind, err)
	}
	if !ok {
		n.logger.Info("notification suppressed",
			logx.String("event", "notification_duplicate"),
			logx.String("kind", kind),
			logx.Int64("unit_id", u.ID),
			logx.Int64("candidate_id", c.ID),
		)
		return false, nil
	}
	body, err := render(tpl, v)
	if err != nil {
		return false, fmt.Errorf("render %s: %w", tpl, err)
	}
	if err := n.publish(ctx, Message{
		Channel:  ChannelSMS,
		To:       c.Phone,
		Template: tpl,
		Body:     body,
		UnitID:   u.ID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (n *Notifier) publish(ctx context.Context, m Message) error {
	m.ID = n.newID()
	m.CreatedAt = n.now()
	if err := n.pub.Publish(ctx, m); err != nil {
		return fmt.Errorf("publish %s: %w", m.Template, err)
	}
	n.logger.Debug("notification published",
		logx.String("template", m.Template),
		logx.String("channel", m.Channel),
		logx.Int64("unit_id", m.UnitID),
	)
	return nil
}

func (n *Notifier) view(u *domain.OfferUnit, c *domain.Candidate, links Links) candidateView {
	v := candidateView{
		Ref:     u.ExternalRef,
		Summary: u.Payload.Describe(),
		Accept:  links.Accept,
		Decline: links.Decline,
	}
	if c != nil {
		v.Name = firstName(c.Name)
	}
	if u.Requirements.HasWindow() {
		v.Window = FormatWindow(u.Requirements.WindowStart, u.Requirements.WindowEnd, n.cfg.Location)
	}
	if u.ExpiresAt != nil {
		v.Expires = u.ExpiresAt.In(n.cfg.Location).Format("Mon 2 Jan 15:04")
	}
	return v
}

func (n *Notifier) unitLink(id int64) string {
	return fmt.Sprintf("%s/units/%d", n.cfg.ConsoleURL, id)
}

// dedupKey identifies one message per offer round: a new round has a new
// notifiedAt.
func dedupKey(kind string, u *domain.OfferUnit, candidateID int64) string {
	var at int64
	if u.NotifiedAt != nil {
		at = u.NotifiedAt.UnixMicro()
	}
	if kind == "cancelled" {
		return fmt.Sprintf("%s:%d:%d", kind, u.ID, candidateID)
	}
	return fmt.Sprintf("%s:%d:%d:%d", kind, u.ID, candidateID, at)
}

// FormatWindow renders a time window for humans, e.g. "Tue 4 Mar 09:00-11:00".
func FormatWindow(start, end time.Time, loc *time.Location) string {
	s, e := start.In(loc), end.In(loc)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		return s.Format("Mon 2 Jan 15:04") + "-" + e.Format("15:04")
	}
	return s.Format("Mon 2 Jan 15:04") + " - " + e.Format("Mon 2 Jan 15:04")
}

func firstName(full string) string {
	f := strings.Fields(full)
	if len(f) == 0 {
		return "there"
	}
	return f[0]
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
