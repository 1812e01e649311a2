package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// replaySource 推送固定批次后阻塞直到 ctx 结束
type replaySource struct {
	batches [][]feed.Tick
	err     error
}

func (s *replaySource) Run(ctx context.Context, handle feed.Handler) error {
	for _, batch := range s.batches {
		handle(ctx, batch)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTradingLoopStartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	source := &replaySource{batches: [][]feed.Tick{{newTick("addr-a", 100)}}}
	loop := NewTradingLoop(env.conf, env.dispatcher, env.orders, env.stats, source, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- loop.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		p, err := env.positions.GetByAddress(context.Background(), "addr-a")
		return err == nil && p != nil
	}, 5*time.Second, 10*time.Millisecond)

	status := loop.GetStatus()
	assert.Equal(t, true, status["is_running"])
	assert.Equal(t, true, status["feed_enabled"])

	assert.Error(t, loop.Start(context.Background()))

	loop.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("trading loop did not stop")
	}
	assert.Equal(t, false, loop.GetStatus()["is_running"])

	// 重复停止不做任何事
	loop.Stop()
}

func TestTradingLoopExitsWhenFeedFails(t *testing.T) {
	env := newTestEnv(t, nil)
	feedErr := errors.New("feed closed")
	loop := NewTradingLoop(env.conf, env.dispatcher, env.orders, env.stats, &replaySource{err: feedErr}, zap.NewNop())

	err := loop.Start(context.Background())
	assert.ErrorIs(t, err, feedErr)
	assert.Equal(t, false, loop.GetStatus()["is_running"])
}

func TestTradingLoopWithoutFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	loop := NewTradingLoop(env.conf, env.dispatcher, env.orders, env.stats, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return loop.GetStatus()["is_running"] == true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, false, loop.GetStatus()["feed_enabled"])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("trading loop did not stop")
	}
}
