// Package router assembles the HTTP routes of the offer service.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"offer-dispatch/internal/http/handlers"
	"offer-dispatch/internal/http/middleware"
	"offer-dispatch/internal/logx"
)

// Handlers groups the endpoint handlers.
type Handlers struct {
	Base   *handlers.Handlers
	Offers *handlers.OfferHandler
	Units  *handlers.UnitHandler
	Sweep  *handlers.SweepHandler
}

// Options holds cross-cutting router settings. Zero values disable the
// corresponding feature.
type Options struct {
	Logger   logx.Logger
	Requests middleware.RequestRecorder
	// RateLimit wraps the public /offers routes.
	RateLimit func(http.Handler) http.Handler
	Gatherer  prometheus.Gatherer
	Timeout   time.Duration
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(h Handlers, opt Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observability(opt.Logger, opt.Requests))
	r.Use(chimw.Recoverer)
	if opt.Timeout > 0 {
		r.Use(chimw.Timeout(opt.Timeout))
	}

	r.Get("/ping", h.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(h.Base.HealthcheckHead))
	if opt.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opt.Gatherer, promhttp.HandlerOpts{}))
	}

	if h.Offers != nil {
		r.Route("/offers", func(r chi.Router) {
			if opt.RateLimit != nil {
				r.Use(opt.RateLimit)
			}
			r.Get("/respond", h.Offers.Respond)
			r.Post("/respond", h.Offers.Respond)
			r.Post("/replies", h.Offers.Reply)
		})
	}
	if h.Units != nil {
		r.Route("/units", func(r chi.Router) {
			r.Post("/", h.Units.Create)
			r.Get("/{id}", h.Units.Get)
			r.Post("/{id}/schedule-change", h.Units.ScheduleChange)
			r.Post("/{id}/cancel", h.Units.Cancel)
		})
	}
	if h.Sweep != nil {
		r.Post("/sweep", h.Sweep.Run)
	}

	r.NotFound(h.Base.NotFound)
	r.MethodNotAllowed(h.Base.MethodNotAllowed)
	return r
}
