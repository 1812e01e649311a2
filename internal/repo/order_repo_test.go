package repo

import (
	"context"
	"testing"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/dbtest"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPosition(t *testing.T, ctx context.Context, positions *PositionRepo, address string) *models.Position {
	t.Helper()
	p := &models.Position{
		ID:           ulid.Make().String(),
		Address:      address,
		Symbol:       "DOG",
		EntryPrice:   100,
		CurrentPrice: 100,
		HighestPrice: 100,
		LowestPrice:  100,
		Capital:      1,
		Status:       models.PositionStatusActive,
		OpenedAt:     time.Now(),
	}
	require.NoError(t, positions.Create(ctx, p))
	return p
}

func seedOrder(t *testing.T, ctx context.Context, orders *OrderRepo, p *models.Position, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:           ulid.Make().String(),
		PositionID:   p.ID,
		Address:      p.Address,
		OrderType:    models.OrderTypeTakeProfit,
		Ratio:        50,
		TriggerType:  models.TriggerTypeGain,
		TriggerOp:    models.TriggerOpGTE,
		TriggerValue: 100,
		Status:       status,
	}
	require.NoError(t, orders.Create(ctx, o))
	return o
}

func TestOrderRepoTransition(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	positions := NewPositionRepo(db)
	orders := NewOrderRepo(db)

	p := seedPosition(t, ctx, positions, "addr-1")
	o := seedOrder(t, ctx, orders, p, models.OrderStatusPending)

	ok, err := orders.Transition(ctx, o.ID, models.OrderStatusPending, models.OrderStatusTriggered, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// 状态已变化，再次以 pending 为前提更新不生效
	ok, err = orders.Transition(ctx, o.ID, models.OrderStatusPending, models.OrderStatusCanceled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orders.FindById(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusTriggered, got.Status)
}

func TestOrderRepoPendingOrderIsStable(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	positions := NewPositionRepo(db)
	orders := NewOrderRepo(db)

	p := seedPosition(t, ctx, positions, "addr-1")
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, seedOrder(t, ctx, orders, p, models.OrderStatusPending).ID)
	}
	seedOrder(t, ctx, orders, p, models.OrderStatusCompleted)

	pending, err := orders.FindPendingByPositionID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	for i, o := range pending {
		assert.Equal(t, ids[i], o.ID)
	}

	count, err := orders.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestOrderRepoCancelAndDeleteByPosition(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	positions := NewPositionRepo(db)
	orders := NewOrderRepo(db)

	p := seedPosition(t, ctx, positions, "addr-1")
	other := seedPosition(t, ctx, positions, "addr-2")
	seedOrder(t, ctx, orders, p, models.OrderStatusPending)
	seedOrder(t, ctx, orders, p, models.OrderStatusPending)
	seedOrder(t, ctx, orders, p, models.OrderStatusFailed)
	seedOrder(t, ctx, orders, other, models.OrderStatusPending)

	canceled, err := orders.CancelByPositionID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, canceled)

	require.NoError(t, orders.DeleteByPositionID(ctx, p.ID))
	left, err := orders.FindByPositionID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	untouched, err := orders.FindPendingByPositionID(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
}

func TestOrderRepoFindRetryable(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	positions := NewPositionRepo(db)
	orders := NewOrderRepo(db)

	p := seedPosition(t, ctx, positions, "addr-1")
	retryable := seedOrder(t, ctx, orders, p, models.OrderStatusFailed)

	exhausted := seedOrder(t, ctx, orders, p, models.OrderStatusFailed)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", exhausted.ID).Update("retry_count", 3).Error)

	buy := seedOrder(t, ctx, orders, p, models.OrderStatusFailed)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", buy.ID).Update("order_type", models.OrderTypeBuy).Error)

	found, err := orders.FindRetryable(ctx, 3)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, retryable.ID, found[0].ID)
}

func TestPositionRepoQueries(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	positions := NewPositionRepo(db)

	seedPosition(t, ctx, positions, "addr-1")
	p2 := seedPosition(t, ctx, positions, "addr-2")

	// 同一地址只允许一条持仓
	dup := &models.Position{ID: ulid.Make().String(), Address: "addr-1", OpenedAt: time.Now(), Status: models.PositionStatusActive}
	assert.Error(t, positions.Create(ctx, dup))

	count, err := positions.CountActive(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	total, err := positions.SumCapital(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2, total, 1e-9)

	exists, err := positions.ExistsByAddress(ctx, "addr-2")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, positions.HardDeleteById(ctx, p2.ID))
	exists, err = positions.ExistsByAddress(ctx, "addr-2")
	require.NoError(t, err)
	assert.False(t, exists)
}
