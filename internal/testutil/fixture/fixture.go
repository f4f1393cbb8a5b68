// Package fixture wires the offer services on top of the in-memory store
// for service-level tests.
package fixture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/metrics"
	"offer-dispatch/internal/notify"
	"offer-dispatch/internal/service/offer"
	"offer-dispatch/internal/service/selector"
	testlog "offer-dispatch/internal/testutil"
	"offer-dispatch/internal/testutil/memstore"
	"offer-dispatch/internal/token"
)

// T0 is the reference instant used across service tests: a Tuesday.
var T0 = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

// Secret signs fixture tokens.
var Secret = []byte("0123456789abcdef0123456789abcdef")

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fixture time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Publisher records published messages.
type Publisher struct {
	mu   sync.Mutex
	msgs []notify.Message
	Err  error
}

// Publish implements notify.Publisher.
func (p *Publisher) Publish(_ context.Context, m notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

// Messages returns published messages with the given template, or all of
// them when template is empty.
func (p *Publisher) Messages(template string) []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Message
	for _, m := range p.msgs {
		if template == "" || m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

// Provider is a scriptable dispatch provider.
type Provider struct {
	mu          sync.Mutex
	calls       []string
	AssignErr   error
	UnassignErr error
	MoveErr     error
	// OnAssign runs inside AssignWorker before it returns.
	OnAssign func()
}

// AssignWorker records the call.
func (p *Provider) AssignWorker(_ context.Context, containerID, workerID string) error {
	p.record(fmt.Sprintf("assign %s %s", containerID, workerID))
	if p.OnAssign != nil {
		p.OnAssign()
	}
	return p.AssignErr
}

// UnassignWorker records the call.
func (p *Provider) UnassignWorker(_ context.Context, containerID string) error {
	p.record("unassign " + containerID)
	return p.UnassignErr
}

// MoveToPool records the call.
func (p *Provider) MoveToPool(_ context.Context, containerID, poolID string) error {
	p.record(fmt.Sprintf("move %s %s", containerID, poolID))
	return p.MoveErr
}

func (p *Provider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

// Calls returns recorded calls starting with prefix.
func (p *Provider) Calls(prefix string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Env is a fully wired offer stack.
type Env struct {
	Clock       *Clock
	Store       *memstore.Store
	Publisher   *Publisher
	Provider    *Provider
	Metrics     *metrics.Offers
	Logs        *testlog.Recorder
	Codec       *token.Codec
	Notifier    *notify.Notifier
	Selector    *selector.Selector
	Settings    offer.Settings
	Dispatcher  *offer.Dispatcher
	Responses   *offer.ResponseHandler
	Reconfirmer *offer.Reconfirmer
	Canceller   *offer.Canceller
}

// New builds an Env with the clock at T0.
func New(t *testing.T) *Env {
	t.Helper()

	e := &Env{
		Clock:     &Clock{now: T0},
		Store:     memstore.New(),
		Publisher: &Publisher{},
		Provider:  &Provider{},
		Metrics:   metrics.NewOffers(),
		Logs:      testlog.New(),
		Settings: offer.Settings{
			TaskWindow:       2 * time.Hour,
			RouteWindow:      20 * time.Minute,
			ReconfirmWindow:  20 * time.Minute,
			PublicURL:        "https://offers.example",
			OperatorPool:     "operators",
			OperationTimeout: time.Second,
		},
	}
	codec, err := token.NewCodec(Secret, token.TTL{Task: 2 * time.Hour, Route: 20 * time.Minute})
	require.NoError(t, err)
	e.Codec = codec.WithClock(e.Clock.Now)

	logger := e.Logs.Logger()
	e.Notifier = notify.New(e.Publisher, e.Store, notify.Config{
		OperatorChannel: "dispatch-ops",
		ConsoleURL:      "https://console.example",
	}, logger)
	e.Selector = selector.New(e.Store.Candidates(), e.Store, time.UTC, time.Second, logger)
	e.Dispatcher = offer.NewDispatcher(offer.Deps{
		Units:      e.Store,
		Candidates: e.Store.Candidates(),
		Selector:   e.Selector,
		Tokens:     e.Codec,
		Notifier:   e.Notifier,
		Provider:   e.Provider,
		Metrics:    e.Metrics,
		Logger:     logger,
	}, e.Settings).WithClock(e.Clock.Now)
	e.Responses = offer.NewResponseHandler(e.Dispatcher)
	e.Reconfirmer = offer.NewReconfirmer(e.Dispatcher)
	e.Canceller = offer.NewCanceller(e.Dispatcher)
	return e
}

// AllWeek is availability covering every day from 06:00 to 22:00.
func AllWeek() domain.Availability {
	var a domain.Availability
	for d := time.Sunday; d <= time.Saturday; d++ {
		a.Weekly = append(a.Weekly, domain.WeeklyWindow{Weekday: d, From: 6 * 60, To: 22 * 60})
	}
	return a
}

// AddCandidate registers an active mover with all-week availability.
// Candidates added later rank later.
func (e *Env) AddCandidate(name string) domain.Candidate {
	active, _ := e.Store.ListActive(context.Background())
	n := len(active) + 1
	return e.Store.AddCandidate(domain.Candidate{
		ExternalID:   "w-" + strings.ToLower(name),
		Name:         name,
		Phone:        fmt.Sprintf("+1555000%04d", n),
		Services:     []domain.ServiceType{domain.ServiceMoving, domain.ServiceDelivery},
		Active:       true,
		Availability: AllWeek(),
		RegisteredAt: T0.AddDate(0, 0, -100+n),
	})
}

// NewTask creates a moving task scheduled for the next day 09:00-11:00.
func (e *Env) NewTask(t *testing.T, ref string) *domain.OfferUnit {
	t.Helper()
	u := domain.NewOfferUnit(ref, domain.UnitTask, domain.Requirements{
		Service:     domain.ServiceMoving,
		WindowStart: T0.Add(24 * time.Hour),
		WindowEnd:   T0.Add(26 * time.Hour),
	}, domain.Payload{Task: &domain.TaskPayload{Address: domain.Address{Line: "1 Main St"}, Units: 3}}, "ct-"+ref, e.Clock.Now())
	require.NoError(t, e.Store.Create(context.Background(), u))
	return u
}

// NewRoute creates a delivery route on the next day 09:00-17:00.
func (e *Env) NewRoute(t *testing.T, ref string) *domain.OfferUnit {
	t.Helper()
	u := domain.NewOfferUnit(ref, domain.UnitRoute, domain.Requirements{
		Service:     domain.ServiceDelivery,
		WindowStart: T0.Add(24 * time.Hour),
		WindowEnd:   T0.Add(32 * time.Hour),
	}, domain.Payload{Route: &domain.RoutePayload{Stops: []domain.Stop{
		{Seq: 1, Address: domain.Address{Line: "Depot"}},
		{Seq: 2, Address: domain.Address{Line: "2 High St"}},
	}}}, "ct-"+ref, e.Clock.Now())
	require.NoError(t, e.Store.Create(context.Background(), u))
	return u
}

// Unit reloads a unit from the store.
func (e *Env) Unit(t *testing.T, id int64) *domain.OfferUnit {
	t.Helper()
	u := e.Store.Unit(id)
	require.NotNil(t, u)
	return u
}

// Token mints a token for the unit's current offer.
func (e *Env) Token(t *testing.T, u *domain.OfferUnit, action domain.Action) string {
	t.Helper()
	raw, _, err := e.Codec.Mint(u, action)
	require.NoError(t, err)
	return raw
}
