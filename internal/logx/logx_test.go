package logx

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFields_Constructors(t *testing.T) {
	now := time.Now()

	require.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	require.Equal(t, Field{Key: "k", Value: 1}, Int("k", 1))
	require.Equal(t, Field{Key: "k", Value: int64(2)}, Int64("k", int64(2)))
	require.Equal(t, Field{Key: "k", Value: true}, Bool("k", true))
	require.Equal(t, Field{Key: "k", Value: now}, Time("k", now))
	require.Equal(t, Field{Key: "k", Value: time.Second}, Duration("k", time.Second))
	require.Equal(t, Field{Key: "err", Value: "boom"}, Err(errors.New("boom")))
	require.Equal(t, Field{Key: "err", Value: ""}, Err(nil))
}

func TestNopLogger_NoPanic(t *testing.T) {
	l := Nop()
	l.Debug("d", String("k", "v"))
	l.Info("i", Int("n", 1))
	l.Warn("w")
	l.Error("e")

	l2 := l.With(String("x", "y"))
	require.NotNil(t, l2)
	require.NoError(t, l.Sync())
	require.NoError(t, l2.Sync())
}

func TestSlogAdapter_AllLevels(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewSlogAdapter(base)

	args := toSlogArgs([]Field{String("a", "b"), Int("n", 1)})
	require.Len(t, args, 2)

	l2 := l.With(String("x", "y"))
	l2.Debug("msg", String("k", "v"))
	l2.Info("msg")
	l2.Warn("msg")
	l2.Error("msg")
	require.NoError(t, l2.Sync())
}

func TestZapAdapter_WritesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.With(String("component", "sweep")).Info("sweep finished", Int("expired", 3))
	l.Warn("slow")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "sweep finished", entry.Message)
	ctx := entry.ContextMap()
	require.Equal(t, "sweep", ctx["component"])
	require.EqualValues(t, 3, ctx["expired"])
}
