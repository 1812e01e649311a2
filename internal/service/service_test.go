package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/dbtest"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/daniel8038/tg-golddog-alert/internal/guard"
	"github.com/daniel8038/tg-golddog-alert/pkg/swap"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// boughtAmount 模拟每次买入获得的代币数量
var boughtAmount = decimal.NewFromInt(1_000_000)

type fakeExecutor struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	sells    []swap.SellRequest
	buys     []swap.BuyRequest

	buyErr     error
	sellErr    error
	balanceErr error
	sellPanic  bool
	// afterBuy 在买入成交后、结果写入前调用
	afterBuy func()
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeExecutor) Buy(_ context.Context, req swap.BuyRequest) (*swap.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	f.buys = append(f.buys, req)
	f.balances[req.Address] = f.balances[req.Address].Add(boughtAmount)
	if f.afterBuy != nil {
		f.afterBuy()
	}
	return &swap.Result{Signature: fmt.Sprintf("buy-%d", len(f.buys))}, nil
}

func (f *fakeExecutor) Sell(_ context.Context, req swap.SellRequest) (*swap.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellPanic {
		panic("venue exploded")
	}
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	f.sells = append(f.sells, req)
	f.balances[req.Address] = f.balances[req.Address].Sub(req.Amount)
	return &swap.Result{Signature: fmt.Sprintf("sell-%d", len(f.sells))}, nil
}

func (f *fakeExecutor) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balances[address], nil
}

func (f *fakeExecutor) setBalance(address string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = amount
}

func (f *fakeExecutor) balance(address string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address]
}

func (f *fakeExecutor) sold() []swap.SellRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]swap.SellRequest(nil), f.sells...)
}

type fakeNotifier struct {
	mu         sync.Mutex
	categories []NotifyCategory
}

func (n *fakeNotifier) Notify(_ context.Context, category NotifyCategory, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.categories = append(n.categories, category)
}

func (n *fakeNotifier) count(category NotifyCategory) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.categories {
		if c == category {
			count++
		}
	}
	return count
}

type admitAll struct{}

func (admitAll) Admit(context.Context, feed.Tick) (bool, error) { return true, nil }

type testEnv struct {
	db         *gorm.DB
	conf       *config.Config
	exec       *fakeExecutor
	notifier   *fakeNotifier
	orders     *OrderService
	positions  *PositionService
	stats      *StatsService
	dispatcher *Dispatcher
	guard      *guard.KeyedGuard
}

func newTestEnv(t *testing.T, mutate func(conf *config.Config)) *testEnv {
	t.Helper()

	conf := &config.Config{}
	conf.Trading.BuyAmount = 1
	conf.Trading.DoubleProfitRatio = 50
	conf.Retry.Enabled = true
	conf.ApplyDefaults()
	conf.Trading.FlagSellDelaySeconds = 0
	if mutate != nil {
		mutate(conf)
	}

	db := dbtest.Open(t)
	logger := zap.NewNop()
	env := &testEnv{
		db:       db,
		conf:     conf,
		exec:     newFakeExecutor(),
		notifier: &fakeNotifier{},
		guard:    guard.NewKeyedGuard(),
	}
	env.orders = NewOrderService(logger, db, conf, env.exec, env.notifier)
	env.positions = NewPositionService(logger, db, conf, env.orders, env.notifier)
	env.stats = NewStatsService(db)
	env.dispatcher = NewDispatcher(logger, conf, env.positions, admitAll{}, env.notifier, env.guard)
	return env
}

func (e *testEnv) open(t *testing.T, address string, price float64) {
	t.Helper()
	_, err := e.positions.Create(context.Background(), OpenRequest{
		Address: address,
		Symbol:  "DOG",
		Price:   price,
		Capital: e.conf.Trading.BuyAmount,
	})
	require.NoError(t, err)
}

var errVenue = errors.New("venue unavailable")
