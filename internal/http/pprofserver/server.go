// Package pprofserver serves runtime profiles on a separate listener.
package pprofserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"offer-dispatch/internal/logx"
)

// Config stores pprof server settings.
type Config struct {
	Addr string
	User string
	Pass string
}

// Handler mounts the profiler under /debug. Loopback callers pass freely,
// everyone else needs basic auth.
func Handler(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(authOrLocalOnly(cfg))
	r.Mount("/debug", chimw.Profiler())
	return r
}

// Server runs the profiler listener.
type Server struct {
	srv    *http.Server
	logger logx.Logger
}

// New creates a Server.
func New(cfg Config, logger logx.Logger) *Server {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           Handler(cfg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(logx.String("component", "pprof")),
	}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("pprof listening", logx.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func authOrLocalOnly(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isLoopback(r.RemoteAddr) {
				next.ServeHTTP(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if cfg.User == "" || cfg.Pass == "" || !ok || !secureEq(u, cfg.User) || !secureEq(p, cfg.Pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secureEq(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isLoopback(remoteAddr string) bool {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
