package pprofserver

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestAuthOrLocalOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cfg    Config
		remote string
		auth   string
		want   int
	}{
		{"loopback without auth", Config{}, "127.0.0.1:12345", "", http.StatusTeapot},
		{"remote without configured creds", Config{}, "8.8.8.8:54444", basic("u", "p"), http.StatusUnauthorized},
		{"remote wrong creds", Config{User: "u", Pass: "p"}, "8.8.8.8:54444", basic("u", "WRONG"), http.StatusUnauthorized},
		{"remote no header", Config{User: "u", Pass: "p"}, "8.8.8.8:54444", "", http.StatusUnauthorized},
		{"remote correct creds", Config{User: "u", Pass: "p"}, "8.8.8.8:54444", basic("u", "p"), http.StatusTeapot},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
			req := httptest.NewRequest(http.MethodGet, "http://example/debug/pprof/", nil)
			req.RemoteAddr = tc.remote
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			authOrLocalOnly(tc.cfg)(next).ServeHTTP(rr, req)

			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestHandler_ServesProfilerIndex(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rr := httptest.NewRecorder()
	Handler(Config{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "goroutine")
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:123": true,
		"127.0.0.1":     true,
		" 127.0.0.1 ":   true,
		"[::1]:123":     true,
		"8.8.8.8:1":     false,
		"not-an-ip:1":   false,
	}
	for in, want := range cases {
		require.Equal(t, want, isLoopback(in), in)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
