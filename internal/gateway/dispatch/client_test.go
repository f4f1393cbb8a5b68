package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/apperr"
)

func TestHTTPClient_AssignWorker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/containers/task%2F7/worker", r.URL.EscapedPath())
		var body assignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "w-42", body.WorkerID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	require.NoError(t, c.AssignWorker(context.Background(), "task/7", "w-42"))
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"conflict", http.StatusConflict, false},
		{"not found", http.StatusNotFound, false},
		{"throttled", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c, err := NewHTTPClient(srv.URL, time.Second)
			require.NoError(t, err)

			err = c.UnassignWorker(context.Background(), "ct-1")
			require.ErrorIs(t, err, apperr.ErrExternalSync)

			var se *apperr.SyncError
			require.True(t, errors.As(err, &se))
			require.Equal(t, OpUnassign, se.Op)
			require.Equal(t, tt.status, se.StatusCode)
			require.Equal(t, tt.retryable, se.Retryable)
			require.Contains(t, se.Error(), "nope")
		})
	}
}

func TestHTTPClient_TransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, time.Second)
	require.NoError(t, err)

	err = c.MoveToPool(context.Background(), "ct-1", "ops")
	var se *apperr.SyncError
	require.True(t, errors.As(err, &se))
	require.True(t, se.Retryable)
}

func TestHTTPClient_RejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient("::not a url", time.Second)
	require.Error(t, err)

	c, err := NewHTTPClient("http://provider.local", 0)
	require.NoError(t, err)
	require.ErrorIs(t, c.UnassignWorker(context.Background(), " "), apperr.ErrExternalSync)
}
