package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/daniel8038/tg-golddog-alert/internal/xe"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTick(address string, price float64) feed.Tick {
	return feed.Tick{Address: address, Symbol: "DOG", Price: price}
}

func TestDispatchOpensOnePositionPerAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, []feed.Tick{
		newTick("addr-a", 100),
		newTick("addr-b", 50),
		newTick("", 10),
		newTick("addr-c", 0),
		newTick("addr-a", 120),
	})

	a, err := env.positions.GetByAddress(ctx, "addr-a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 120.0, a.EntryPrice)

	b, err := env.positions.GetByAddress(ctx, "addr-b")
	require.NoError(t, err)
	require.NotNil(t, b)

	c, err := env.positions.GetByAddress(ctx, "addr-c")
	require.NoError(t, err)
	assert.Nil(t, c)

	assert.EqualValues(t, 2, env.dispatcher.HandledTicks())
	assert.Len(t, env.exec.buys, 2)
	assert.Zero(t, env.guard.Len())
}

func TestDispatchUpdatesExistingPosition(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t, "addr-a", 100)
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, []feed.Tick{newTick("addr-a", 250)})

	p, err := env.positions.GetByAddress(ctx, "addr-a")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 250.0, p.CurrentPrice)
	assert.Equal(t, 250.0, p.HighestPrice)
	assert.Equal(t, 100.0, p.EntryPrice)

	// 翻倍止盈卖出一半，持仓保留
	require.Len(t, env.exec.sold(), 1)
	assert.Equal(t, 50.0, env.exec.sold()[0].Ratio)
	assert.Equal(t, boughtAmount.Div(decimal.NewFromInt(2)).String(), env.exec.balance("addr-a").String())
}

func TestDispatchDropsTickForBusyInstrument(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	unlock, ok, err := env.guard.TryLock(ctx, "addr-a")
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	env.dispatcher.Dispatch(ctx, []feed.Tick{newTick("addr-a", 100)})

	assert.EqualValues(t, 1, env.dispatcher.DroppedTicks())
	assert.Zero(t, env.dispatcher.HandledTicks())
	assert.True(t, env.dispatcher.IsProcessing(ctx, "addr-a"))

	p, err := env.positions.GetByAddress(ctx, "addr-a")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDispatchRespectsAdmission(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rules := NewRuleFilter([]config.RuleConf{{Field: "liquidity", Op: "gte", Value: 1000}})
	dispatcher := NewDispatcher(zap.NewNop(), env.conf, env.positions, rules, env.notifier, env.guard)

	deep := newTick("addr-a", 100)
	deep.Metadata = map[string]any{"liquidity": "2500"}
	dispatcher.Dispatch(ctx, []feed.Tick{deep, newTick("addr-b", 100)})

	a, err := env.positions.GetByAddress(ctx, "addr-a")
	require.NoError(t, err)
	assert.NotNil(t, a)

	b, err := env.positions.GetByAddress(ctx, "addr-b")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestCloseManuallyWhileBusy(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t, "addr-a", 100)
	ctx := context.Background()

	unlock, ok, err := env.guard.TryLock(ctx, "addr-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.dispatcher.CloseManually(ctx, "addr-a")
	assert.ErrorIs(t, err, xe.ErrInstrumentBusy)
	unlock()

	closed, err := env.dispatcher.CloseManually(ctx, "addr-a")
	require.NoError(t, err)
	assert.True(t, closed)

	p, err := env.positions.GetByAddress(ctx, "addr-a")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEmergencyCloseAll(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t, "addr-a", 100)
	env.open(t, "addr-b", 100)
	env.open(t, "addr-c", 100)
	ctx := context.Background()

	// addr-c 已经没有余额，同样视为平仓成功
	env.exec.setBalance("addr-c", decimal.Zero)

	unlock, ok, err := env.guard.TryLock(ctx, "addr-b")
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	report, err := env.dispatcher.EmergencyCloseAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"addr-a", "addr-c"}, report.Closed)
	assert.Equal(t, []string{"addr-b"}, report.Busy)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, env.notifier.count(NotifyEmergency))

	positions, err := env.positions.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "addr-b", positions[0].Address)
}

func TestEmergencyCloseAllReportsFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.open(t, "addr-a", 100)
	env.exec.sellErr = errVenue

	report, err := env.dispatcher.EmergencyCloseAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"addr-a"}, report.Failed)
	assert.Empty(t, report.Closed)

	p, err := env.positions.GetByAddress(context.Background(), "addr-a")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestHandleBatchStopAndWait(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	env.dispatcher.HandleBatch(ctx, []feed.Tick{newTick("addr-a", 100)})
	// 行情源停止不影响已经开始的处理
	cancel()
	env.dispatcher.Stop()
	env.dispatcher.HandleBatch(ctx, []feed.Tick{newTick("addr-b", 100)})
	env.dispatcher.Wait()

	a, err := env.positions.GetByAddress(context.Background(), "addr-a")
	require.NoError(t, err)
	assert.NotNil(t, a)

	b, err := env.positions.GetByAddress(context.Background(), "addr-b")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestDispatchFanOutAcrossInstruments(t *testing.T) {
	env := newTestEnv(t, func(conf *config.Config) {
		conf.Trading.MaxPositions = 10
	})
	ctx := context.Background()

	// 新建的服务上第一批行情就并发访问共享的仓储
	batch := make([]feed.Tick, 0, 8)
	for i := 0; i < 8; i++ {
		batch = append(batch, newTick(fmt.Sprintf("addr-%d", i), 100))
	}
	env.dispatcher.Dispatch(ctx, batch)

	positions, err := env.positions.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 8)

	for i := range batch {
		batch[i].Price = 150
	}
	env.dispatcher.Dispatch(ctx, batch)

	positions, err = env.positions.ListActive(ctx)
	require.NoError(t, err)
	for _, p := range positions {
		assert.Equal(t, 150.0, p.CurrentPrice)
	}
	assert.EqualValues(t, 16, env.dispatcher.HandledTicks())
	assert.Zero(t, env.guard.Len())
}

func TestHandleBatchRacingStop(t *testing.T) {
	env := newTestEnv(t, func(conf *config.Config) {
		conf.Trading.MaxPositions = 10
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env.dispatcher.HandleBatch(ctx, []feed.Tick{newTick(fmt.Sprintf("addr-%d", i), 100)})
		}(i)
	}
	env.dispatcher.Stop()
	env.dispatcher.Wait()
	wg.Wait()
	env.dispatcher.Wait()

	env.dispatcher.HandleBatch(ctx, []feed.Tick{newTick("addr-late", 100)})
	env.dispatcher.Wait()

	count, err := env.positions.CountActive(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, env.dispatcher.HandledTicks(), count)

	late, err := env.positions.GetByAddress(ctx, "addr-late")
	require.NoError(t, err)
	assert.Nil(t, late)
}
