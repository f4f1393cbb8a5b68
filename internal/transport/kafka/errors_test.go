package kafka_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/transport/kafka"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, kafka.Classify(nil))

	for _, base := range []error{apperr.ErrValidation, apperr.ErrNotFound, apperr.ErrConflict} {
		err := kafka.Classify(fmt.Errorf("handle: %w", base))
		var perm kafka.PermanentError
		require.ErrorAs(t, err, &perm)
		require.ErrorIs(t, err, base)
	}

	transient := errors.New("db down")
	err := kafka.Classify(transient)
	var perm kafka.PermanentError
	require.False(t, errors.As(err, &perm))
	require.ErrorIs(t, err, transient)
}

func TestPermanentError_Message(t *testing.T) {
	t.Parallel()

	require.Equal(t, "permanent error", kafka.PermanentError{}.Error())
	require.Equal(t, "bad", kafka.Permanent(errors.New("bad")).Error())
}
