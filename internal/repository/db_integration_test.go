//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-dispatch/internal/repository"
)

func TestNewPool_Success(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := repository.NewPool(ctx, tcDSN)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Ping(ctx))
}

func TestNewPool_InvalidDSN(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := repository.NewPool(ctx, "not-a-valid-dsn")
	require.Error(t, err)
	require.Nil(t, pool)
}

func TestNewPool_PingError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := repository.NewPool(ctx, "postgres://u:p@127.0.0.1:65000/none?sslmode=disable")
	require.Error(t, err)
	require.Nil(t, pool)
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	require.NoError(t, repository.Migrate(context.Background(), tcPool))
}
