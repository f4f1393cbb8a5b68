package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	testlog "offer-dispatch/internal/testutil"
)

type stubResponder struct {
	tokenFn func(ctx context.Context, raw string) (domain.Resolution, error)
	replyFn func(ctx context.Context, from, body string) (domain.Resolution, error)
}

func (s *stubResponder) RespondToken(ctx context.Context, raw string) (domain.Resolution, error) {
	if s.tokenFn == nil {
		panic("RespondToken not expected in this test")
	}
	return s.tokenFn(ctx, raw)
}

func (s *stubResponder) RespondReply(ctx context.Context, from, body string) (domain.Resolution, error) {
	if s.replyFn == nil {
		panic("RespondReply not expected in this test")
	}
	return s.replyFn(ctx, from, body)
}

func TestOfferHandler_Respond_Accepted(t *testing.T) {
	t.Parallel()

	uc := &stubResponder{tokenFn: func(_ context.Context, raw string) (domain.Resolution, error) {
		require.Equal(t, "abc+/=", raw)
		return domain.Resolution{UnitID: 7, CandidateID: 3, Action: domain.ActionAccept, Outcome: domain.OutcomeAccepted}, nil
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/offers/respond?token="+url.QueryEscape("abc+/="), nil)
	NewOfferHandler(nil, uc).Respond(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"unit_id": 7,
		"action": "accept",
		"outcome": "accepted",
		"message": "Thanks, the job is yours."
	}`, rr.Body.String())
}

func TestOfferHandler_Respond_PostForm(t *testing.T) {
	t.Parallel()

	next := int64(4)
	uc := &stubResponder{tokenFn: func(_ context.Context, raw string) (domain.Resolution, error) {
		require.Equal(t, "tok", raw)
		return domain.Resolution{UnitID: 7, Action: domain.ActionDecline, Outcome: domain.OutcomeDeclined, NextCandidateID: &next}, nil
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/offers/respond", strings.NewReader("token=tok"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	NewOfferHandler(nil, uc).Respond(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"unit_id": 7,
		"action": "decline",
		"outcome": "declined",
		"message": "Thanks, we will offer it to someone else.",
		"next_candidate_id": 4
	}`, rr.Body.String())
}

func TestOfferHandler_Respond_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"already resolved", apperr.ErrAlreadyResolved, http.StatusOK, `"outcome":"already_handled"`},
		{"invalid token", apperr.ErrInvalidToken, http.StatusGone, "this link is no longer valid"},
		{"expired", apperr.ErrExpired, http.StatusGone, "this link is no longer valid"},
		{"unknown unit", apperr.ErrNotFound, http.StatusNotFound, "not found"},
		{"provider down", &apperr.SyncError{Op: "assign_worker"}, http.StatusBadGateway, "operators notified"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubResponder{tokenFn: func(context.Context, string) (domain.Resolution, error) {
				return domain.Resolution{UnitID: 7, Action: domain.ActionAccept}, tc.err
			}}
			logs := testlog.New()

			rr := httptest.NewRecorder()
			NewOfferHandler(logs.Logger(), uc).Respond(rr, httptest.NewRequest(http.MethodGet, "/offers/respond?token=t", nil))

			require.Equal(t, tc.code, rr.Code)
			require.Contains(t, rr.Body.String(), tc.body)
			if tc.code >= http.StatusInternalServerError {
				require.NotEmpty(t, logs.Messages("error"))
			}
		})
	}
}

func TestOfferHandler_Respond_MissingToken(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NewOfferHandler(nil, &stubResponder{}).Respond(rr, httptest.NewRequest(http.MethodGet, "/offers/respond", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"token is required"}`, rr.Body.String())
}

func TestOfferHandler_Reply(t *testing.T) {
	t.Parallel()

	uc := &stubResponder{replyFn: func(_ context.Context, from, body string) (domain.Resolution, error) {
		require.Equal(t, "+15550000001", from)
		require.Equal(t, "YES", body)
		return domain.Resolution{UnitID: 9, Action: domain.ActionAccept, Outcome: domain.OutcomeAccepted}, nil
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/offers/replies", strings.NewReader(`{"from":"+15550000001","body":"YES"}`))
	NewOfferHandler(nil, uc).Reply(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"unit_id":9`)
}

func TestOfferHandler_Reply_BadInput(t *testing.T) {
	t.Parallel()

	h := NewOfferHandler(nil, &stubResponder{replyFn: func(context.Context, string, string) (domain.Resolution, error) {
		return domain.Resolution{}, apperr.ErrValidation
	}})

	rr := httptest.NewRecorder()
	h.Reply(rr, httptest.NewRequest(http.MethodPost, "/offers/replies", strings.NewReader(`{"body":"YES"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Reply(rr, httptest.NewRequest(http.MethodPost, "/offers/replies", strings.NewReader(`{"from":"+1555","body":"maybe"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
