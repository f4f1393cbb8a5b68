package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"offer-dispatch/internal/domain"
)

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by gateways
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by gateways",
	})
}

// Offers groups the dispatch counters.
type Offers struct {
	sent            *prometheus.CounterVec
	responses       *prometheus.CounterVec
	expired         prometheus.Counter
	escalated       prometheus.Counter
	reconfirmations prometheus.Counter
	cancellations   prometheus.Counter
	notifyFailures  *prometheus.CounterVec
	syncFailures    *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
}

// NewOffers builds unregistered dispatch metrics.
func NewOffers() *Offers {
	return &Offers{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offers_sent_total",
			Help: "Offers sent to candidates",
		}, []string{"unit_type"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offer_responses_total",
			Help: "Candidate responses by action and outcome",
		}, []string{"action", "outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offers_expired_total",
			Help: "Offers that timed out without an answer",
		}),
		escalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offers_escalated_total",
			Help: "Units handed to operators",
		}),
		reconfirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offer_reconfirmations_total",
			Help: "Accepted units sent back for reconfirmation",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offer_cancellations_total",
			Help: "Cancelled units",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be published",
		}, []string{"kind"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_sync_failures_total",
			Help: "Failed dispatch provider calls",
		}, []string{"op"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "offer_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}
}

// Register adds every collector to reg. Collectors that are already
// registered are reused so a second container in the same process works.
func (m *Offers) Register(reg prometheus.Registerer) error {
	return errors.Join(
		register(reg, "offers_sent_total", &m.sent),
		register(reg, "offer_responses_total", &m.responses),
		register(reg, "offers_expired_total", &m.expired),
		register(reg, "offers_escalated_total", &m.escalated),
		register(reg, "offer_reconfirmations_total", &m.reconfirmations),
		register(reg, "offer_cancellations_total", &m.cancellations),
		register(reg, "notification_failures_total", &m.notifyFailures),
		register(reg, "dispatch_sync_failures_total", &m.syncFailures),
		register(reg, "offer_sweep_duration_seconds", &m.sweepDuration),
	)
}

// Register adds c to reg, swapping in the existing collector when one with
// the same descriptor is already registered.
func Register[T prometheus.Collector](reg prometheus.Registerer, name string, c *T) error {
	return register(reg, name, c)
}

func register[T prometheus.Collector](reg prometheus.Registerer, name string, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			*c = existing
			return nil
		}
	}
	return fmt.Errorf("register %s: %w", name, err)
}

// OfferSent counts a new offer round.
func (m *Offers) OfferSent(ut domain.UnitType) { m.sent.WithLabelValues(string(ut)).Inc() }

// Response counts a candidate answer.
func (m *Offers) Response(a domain.Action, o domain.Outcome) {
	m.responses.WithLabelValues(string(a), string(o)).Inc()
}

// Expired counts a timed-out offer.
func (m *Offers) Expired() { m.expired.Inc() }

// Escalated counts units handed to operators.
func (m *Offers) Escalated(n int) { m.escalated.Add(float64(n)) }

// Reconfirmation counts a demoted acceptance.
func (m *Offers) Reconfirmation() { m.reconfirmations.Inc() }

// Cancelled counts a cancelled unit.
func (m *Offers) Cancelled() { m.cancellations.Inc() }

// NotificationFailed counts a notification that was not published.
func (m *Offers) NotificationFailed(kind string) { m.notifyFailures.WithLabelValues(kind).Inc() }

// SyncFailed counts a failed provider call.
func (m *Offers) SyncFailed(op string) { m.syncFailures.WithLabelValues(op).Inc() }

// SweepObserved records one sweep run.
func (m *Offers) SweepObserved(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepDuration.WithLabelValues(result).Observe(d.Seconds())
}

// HTTP holds request counters for the observability middleware.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTP builds unregistered HTTP metrics.
func NewHTTP() *HTTP {
	return &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Register adds the collectors to reg.
func (m *HTTP) Register(reg prometheus.Registerer) error {
	return errors.Join(
		register(reg, "http_requests_total", &m.requests),
		register(reg, "http_request_duration_seconds", &m.duration),
	)
}

// ObserveRequest records one served request. path must be a route
// pattern, not the raw URL.
func (m *HTTP) ObserveRequest(method, path string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(method, path, code).Inc()
	m.duration.WithLabelValues(method, path, code).Observe(d.Seconds())
}
