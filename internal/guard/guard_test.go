package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedGuard(t *testing.T) {
	ctx := context.Background()
	g := NewKeyedGuard()

	unlock, ok, err := g.TryLock(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = g.TryLock(ctx, "a")
	assert.False(t, ok)

	_, ok, _ = g.TryLock(ctx, "b")
	assert.True(t, ok)

	locked, _ := g.Locked(ctx, "a")
	assert.True(t, locked)

	unlock()
	unlock()
	locked, _ = g.Locked(ctx, "a")
	assert.False(t, locked)
	assert.Equal(t, 1, g.Len())
}

func TestKeyedGuardSingleWinner(t *testing.T) {
	ctx := context.Background()
	g := NewKeyedGuard()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := g.TryLock(ctx, "order-1"); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
}
