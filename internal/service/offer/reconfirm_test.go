package offer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
	"offer-dispatch/internal/notify"
	"offer-dispatch/internal/testutil/fixture"
)

func timeChange(shift time.Duration) domain.ScheduleChange {
	start := fixture.T0.Add(24*time.Hour + shift)
	end := start.Add(2 * time.Hour)
	return domain.ScheduleChange{
		Kind:        domain.ChangeTime,
		Summary:     "moved by the customer",
		WindowStart: &start,
		WindowEnd:   &end,
	}
}

func accepted(t *testing.T) (*fixture.Env, domain.Candidate, domain.Candidate, *domain.OfferUnit) {
	t.Helper()
	e, ann, ben, u := started(t)
	_, err := e.Responses.RespondToken(context.Background(), e.Token(t, u, domain.ActionAccept))
	require.NoError(t, err)
	return e, ann, ben, e.Unit(t, u.ID)
}

func TestReconfirm_AcceptedKeepsIncumbent(t *testing.T) {
	t.Parallel()

	e, ann, _, u := accepted(t)
	e.Clock.Advance(3 * time.Hour)
	ctx := context.Background()

	got, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingReconfirmation, got.Status)
	require.Equal(t, ann.ID, *got.CandidateID)
	require.Nil(t, got.AssignedCandidateID)
	require.Equal(t, int64(2), got.ScheduleVersion)
	require.True(t, got.ExpiresAt.Equal(fixture.T0.Add(3*time.Hour+20*time.Minute)))
	require.Equal(t, domain.ChangePending, got.PendingChange.Status)

	msgs := e.Publisher.Messages(notify.TplReconfirm)
	require.Len(t, msgs, 1)
	require.Equal(t, ann.Phone, msgs[0].To)
	require.Contains(t, msgs[0].Body, "moved by the customer")

	res, err := e.Responses.RespondToken(ctx, e.Token(t, got, domain.ActionAccept))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, res.Outcome)
	final := e.Unit(t, u.ID)
	require.Equal(t, domain.StatusAccepted, final.Status)
	require.Equal(t, domain.ChangeConfirmed, final.PendingChange.Status)
}

func TestReconfirm_InvalidatesEarlierLinks(t *testing.T) {
	t.Parallel()

	e, _, _, u := started(t)
	stale := e.Token(t, u, domain.ActionAccept)
	ctx := context.Background()
	_, err := e.Responses.RespondToken(ctx, stale)
	require.NoError(t, err)

	_, err = e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
	require.NoError(t, err)

	_, err = e.Responses.RespondToken(ctx, stale)
	require.ErrorIs(t, err, apperr.ErrExpired)
}

func TestReconfirm_DeclineReleasesAndReoffers(t *testing.T) {
	t.Parallel()

	e, ann, ben, u := accepted(t)
	ctx := context.Background()
	got, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
	require.NoError(t, err)

	res, err := e.Responses.RespondToken(ctx, e.Token(t, got, domain.ActionDecline))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDeclined, res.Outcome)
	require.Equal(t, []string{"unassign ct-job-1"}, e.Provider.Calls("unassign"))

	final := e.Unit(t, u.ID)
	require.Equal(t, domain.StatusSent, final.Status)
	require.Equal(t, ben.ID, *final.CandidateID)
	require.True(t, final.HasDeclined(ann.ID))
	require.Equal(t, domain.ChangeDeclined, final.PendingChange.Status)
}

func TestReconfirm_SentUnitIsReoffered(t *testing.T) {
	t.Parallel()

	e, ann, _, u := started(t)
	e.Clock.Advance(30 * time.Minute)

	got, err := e.Reconfirmer.Reconfirm(context.Background(), u.ID, timeChange(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, got.Status)
	require.Equal(t, ann.ID, *got.CandidateID)
	require.True(t, got.NotifiedAt.Equal(fixture.T0.Add(30*time.Minute)))
	require.True(t, got.ExpiresAt.Equal(fixture.T0.Add(2*time.Hour+30*time.Minute)))
	require.Len(t, e.Publisher.Messages(notify.TplOfferTask), 2)
}

func TestReconfirm_IdleUnitOnlyBumpsVersion(t *testing.T) {
	t.Parallel()

	e := fixture.New(t)
	u := e.NewTask(t, "job-1")
	ctx := context.Background()
	_, err := e.Dispatcher.Start(ctx, u.ID)
	require.NoError(t, err)

	got, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAdminEscalated, got.Status)
	require.Equal(t, int64(2), got.ScheduleVersion)
	require.True(t, got.Requirements.WindowStart.Equal(fixture.T0.Add(25*time.Hour)))
	require.Empty(t, e.Publisher.Messages(notify.TplReconfirm))
}

func TestReconfirm_Rejects(t *testing.T) {
	t.Parallel()

	t.Run("invalid change", func(t *testing.T) {
		e, _, _, u := accepted(t)
		_, err := e.Reconfirmer.Reconfirm(context.Background(), u.ID, domain.ScheduleChange{Kind: domain.ChangeTime, Summary: "x"})
		require.ErrorIs(t, err, apperr.ErrValidation)
		require.Equal(t, domain.StatusAccepted, e.Unit(t, u.ID).Status)
	})

	t.Run("cancelled unit", func(t *testing.T) {
		e, _, _, u := accepted(t)
		ctx := context.Background()
		require.NoError(t, e.Canceller.Cancel(ctx, u.ID, "gone"))
		_, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
		require.ErrorIs(t, err, apperr.ErrAlreadyResolved)
	})

	t.Run("unknown unit", func(t *testing.T) {
		e := fixture.New(t)
		_, err := e.Reconfirmer.Reconfirm(context.Background(), 9, timeChange(time.Hour))
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestReconfirm_ReappliedAfterLosingToAccept(t *testing.T) {
	t.Parallel()

	e, ann, _, u := started(t)
	raw := e.Token(t, u, domain.ActionAccept)
	ctx := context.Background()

	var once sync.Once
	e.Store.BeforeSave = func(next *domain.OfferUnit) {
		if next.ScheduleVersion != 2 {
			return
		}
		once.Do(func() {
			_, err := e.Responses.RespondToken(ctx, raw)
			require.NoError(t, err)
		})
	}

	change := timeChange(2 * time.Hour)
	got, err := e.Reconfirmer.Reconfirm(ctx, u.ID, change)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingReconfirmation, got.Status)
	require.Equal(t, ann.ID, *got.CandidateID)

	final := e.Unit(t, u.ID)
	require.Equal(t, domain.StatusPendingReconfirmation, final.Status)
	require.Equal(t, int64(2), final.ScheduleVersion)
	require.True(t, final.Requirements.WindowStart.Equal(*change.WindowStart))
	require.Nil(t, final.AssignedCandidateID)
	require.Len(t, e.Publisher.Messages(notify.TplReconfirm), 1)
}

func TestReconfirm_CancelledDuringWriteIsAlreadyResolved(t *testing.T) {
	t.Parallel()

	e, _, _, u := started(t)
	ctx := context.Background()

	var once sync.Once
	e.Store.BeforeSave = func(next *domain.OfferUnit) {
		if next.ScheduleVersion != 2 {
			return
		}
		once.Do(func() {
			require.NoError(t, e.Canceller.Cancel(ctx, u.ID, "customer cancelled"))
		})
	}

	_, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
	require.ErrorIs(t, err, apperr.ErrAlreadyResolved)
	final := e.Unit(t, u.ID)
	require.Equal(t, domain.StatusCancelled, final.Status)
	require.Equal(t, int64(1), final.ScheduleVersion)
}

func TestReconfirm_GivesUpAfterRepeatedRaces(t *testing.T) {
	t.Parallel()

	e, _, _, u := started(t)
	ctx := context.Background()

	races := 0
	e.Store.BeforeSave = func(next *domain.OfferUnit) {
		if next.ScheduleVersion != 2 {
			return
		}
		races++
		cur := e.Unit(t, u.ID)
		require.NoError(t, e.Store.Save(ctx, cur, cur.Status))
	}

	_, err := e.Reconfirmer.Reconfirm(ctx, u.ID, timeChange(time.Hour))
	require.ErrorContains(t, err, "lost 3 write races")
	require.NotErrorIs(t, err, apperr.ErrAlreadyResolved)
	require.Equal(t, 3, races)
	require.Equal(t, int64(1), e.Unit(t, u.ID).ScheduleVersion)
}
