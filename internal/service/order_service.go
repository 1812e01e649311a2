package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/guard"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/repo"
	"github.com/daniel8038/tg-golddog-alert/pkg/swap"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExecutionOutcome 订单执行结果分类
type ExecutionOutcome string

const (
	ExecutionExecuted  ExecutionOutcome = "executed"   // 成交
	ExecutionNoBalance ExecutionOutcome = "no_balance" // 卖出时余额为零，持仓应当关闭
	ExecutionFailed    ExecutionOutcome = "failed"     // 执行失败，订单进入 failed
	ExecutionInFlight  ExecutionOutcome = "in_flight"  // 订单正由其他流程执行，未做任何修改
)

// ExecutionResult 订单执行结果
type ExecutionResult struct {
	Outcome   ExecutionOutcome `json:"outcome"`
	Signature string           `json:"signature,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// Succeeded 余额为零同样视为成功
func (r ExecutionResult) Succeeded() bool {
	return r.Outcome == ExecutionExecuted || r.Outcome == ExecutionNoBalance
}

// OrderSpec 创建订单的参数
type OrderSpec struct {
	OrderType    models.OrderType   `json:"order_type" validate:"required,oneof=stop_loss take_profit flag_sell"`
	Ratio        float64            `json:"ratio" validate:"gt=0,lte=100"`
	TriggerType  models.TriggerType `json:"trigger_type" validate:"required,oneof=price gain flag"`
	TriggerOp    models.TriggerOp   `json:"trigger_op" validate:"required,oneof=gte lte eq"`
	TriggerValue float64            `json:"trigger_value"`
	Description  string             `json:"description" validate:"max=255"`
}

var errNoBalance = errors.New("no remaining balance")

// ErrOutcomeUnrecorded 交易通道已被调用，但结果未能写入订单，链上状态需要人工核对
var ErrOutcomeUnrecorded = errors.New("execution outcome not recorded")

func NewOrderService(logger *zap.Logger, db *gorm.DB, conf *config.Config, executor swap.Executor, notifier Notifier) *OrderService {
	return &OrderService{
		logger:      logger,
		Service:     orz.NewService(db),
		OrderRepo:   repo.NewOrderRepo(db),
		TradeRepo:   repo.NewTradeRepo(db),
		executor:    executor,
		notifier:    notifier,
		tradingConf: conf.Trading,
		retryConf:   conf.Retry,
		executing:   guard.NewKeyedGuard(),
	}
}

// OrderService 条件单引擎：触发判断、执行、取消与重试
type OrderService struct {
	logger *zap.Logger
	*orz.Service
	*repo.OrderRepo
	*repo.TradeRepo

	executor    swap.Executor
	notifier    Notifier
	tradingConf config.TradingConf
	retryConf   config.RetryConf
	// executing 正在执行的订单ID
	executing *guard.KeyedGuard
}

// CreateOrder 为持仓创建一个待触发的订单
func (s *OrderService) CreateOrder(ctx context.Context, position *models.Position, spec OrderSpec) (*models.Order, error) {
	order := &models.Order{
		ID:           ulid.Make().String(),
		PositionID:   position.ID,
		Address:      position.Address,
		OrderType:    spec.OrderType,
		Ratio:        spec.Ratio,
		TriggerType:  spec.TriggerType,
		TriggerOp:    spec.TriggerOp,
		TriggerValue: spec.TriggerValue,
		Status:       models.OrderStatusPending,
		Description:  spec.Description,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := s.OrderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// DefaultOrderSpecs 开仓时挂出的默认订单，比例为 0 的档位不创建
func (s *OrderService) DefaultOrderSpecs(position *models.Position) []OrderSpec {
	conf := s.tradingConf
	var specs []OrderSpec

	if conf.StopLossRatio > 0 {
		specs = append(specs, OrderSpec{
			OrderType:    models.OrderTypeStopLoss,
			Ratio:        conf.StopLossRatio,
			TriggerType:  models.TriggerTypeGain,
			TriggerOp:    models.TriggerOpLTE,
			TriggerValue: conf.StopLossPercent,
			Description:  fmt.Sprintf("止损 %.0f%%", conf.StopLossPercent),
		})
	}
	if conf.DoubleProfitRatio > 0 && (conf.DoubleProfitMaxEntry <= 0 || position.EntryPrice < conf.DoubleProfitMaxEntry) {
		specs = append(specs, OrderSpec{
			OrderType:    models.OrderTypeTakeProfit,
			Ratio:        conf.DoubleProfitRatio,
			TriggerType:  models.TriggerTypeGain,
			TriggerOp:    models.TriggerOpGTE,
			TriggerValue: conf.DoubleProfitPercent,
			Description:  fmt.Sprintf("翻倍止盈 +%.0f%%", conf.DoubleProfitPercent),
		})
	}
	if conf.TargetRatio1 > 0 && conf.TargetPrice1 > 0 {
		specs = append(specs, OrderSpec{
			OrderType:    models.OrderTypeTakeProfit,
			Ratio:        conf.TargetRatio1,
			TriggerType:  models.TriggerTypePrice,
			TriggerOp:    models.TriggerOpGTE,
			TriggerValue: conf.TargetPrice1,
			Description:  fmt.Sprintf("目标价一档 %g", conf.TargetPrice1),
		})
	}
	if conf.TargetRatio2 > 0 && conf.TargetPrice2 > 0 {
		specs = append(specs, OrderSpec{
			OrderType:    models.OrderTypeTakeProfit,
			Ratio:        conf.TargetRatio2,
			TriggerType:  models.TriggerTypePrice,
			TriggerOp:    models.TriggerOpGTE,
			TriggerValue: conf.TargetPrice2,
			Description:  fmt.Sprintf("目标价二档 %g", conf.TargetPrice2),
		})
	}
	if conf.FlagSellRatio > 0 {
		specs = append(specs, OrderSpec{
			OrderType:    models.OrderTypeFlagSell,
			Ratio:        conf.FlagSellRatio,
			TriggerType:  models.TriggerTypeFlag,
			TriggerOp:    models.TriggerOpEQ,
			TriggerValue: 1,
			Description:  "信号卖出",
		})
	}
	return specs
}

// CreateDefaultOrders 创建开仓默认订单
func (s *OrderService) CreateDefaultOrders(ctx context.Context, position *models.Position) ([]*models.Order, error) {
	var orders []*models.Order
	for _, spec := range s.DefaultOrderSpecs(position) {
		order, err := s.CreateOrder(ctx, position, spec)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// EvaluateAndExecute 按创建顺序依次检查持仓的待触发订单并执行，返回持仓是否应当关闭
func (s *OrderService) EvaluateAndExecute(ctx context.Context, position *models.Position) (bool, error) {
	orders, err := s.OrderRepo.FindPendingByPositionID(ctx, position.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load pending orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		if order.OrderType == models.OrderTypeBuy {
			continue
		}
		if !order.ShouldTrigger(position) {
			continue
		}

		triggered, err := s.trigger(ctx, order)
		if err != nil {
			return false, err
		}
		if !triggered {
			continue
		}

		s.logger.Info("order triggered",
			zap.String("order_id", order.ID),
			zap.String("address", position.Address),
			zap.String("order_type", string(order.OrderType)),
			zap.Float64("price", position.CurrentPrice),
			zap.Float64("gain_percent", position.GainPercent()))

		result, err := s.Execute(ctx, order, position)
		if err != nil {
			return false, err
		}
		switch result.Outcome {
		case ExecutionNoBalance:
			return true, nil
		case ExecutionExecuted:
			if order.Ratio >= 100 {
				return true, nil
			}
		}
	}
	return false, nil
}

// trigger pending -> triggered，订单已被并发修改时返回 false
func (s *OrderService) trigger(ctx context.Context, order *models.Order) (bool, error) {
	now := time.Now()
	ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusPending, models.OrderStatusTriggered, map[string]interface{}{
		"triggered_at": now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark order triggered: %w", err)
	}
	if ok {
		order.Status = models.OrderStatusTriggered
		order.TriggeredAt = &now
	}
	return ok, nil
}

// Execute 执行一个已触发的订单。同一订单同一时刻只会有一个执行者
func (s *OrderService) Execute(ctx context.Context, order *models.Order, position *models.Position) (ExecutionResult, error) {
	unlock, ok, err := s.executing.TryLock(ctx, order.ID)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !ok {
		return ExecutionResult{Outcome: ExecutionInFlight, Reason: "order is already executing"}, nil
	}
	defer unlock()

	if !models.CanTransition(order.Status, models.OrderStatusExecuting) {
		return ExecutionResult{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, models.OrderStatusExecuting)
	}
	ok, err = s.OrderRepo.Transition(ctx, order.ID, order.Status, models.OrderStatusExecuting, nil)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to mark order executing: %w", err)
	}
	if !ok {
		return ExecutionResult{Outcome: ExecutionInFlight, Reason: fmt.Sprintf("order is no longer %s", order.Status)}, nil
	}
	order.Status = models.OrderStatusExecuting

	signature, amount, execErr := s.dispatch(ctx, order, position)

	switch {
	case errors.Is(execErr, errNoBalance):
		if err := s.complete(ctx, order, "", errNoBalance.Error()); err != nil {
			return ExecutionResult{}, fmt.Errorf("%w: %w", ErrOutcomeUnrecorded, err)
		}
		s.logger.Info("no balance left, position should close",
			zap.String("order_id", order.ID),
			zap.String("address", position.Address))
		return ExecutionResult{Outcome: ExecutionNoBalance, Reason: errNoBalance.Error()}, nil

	case execErr != nil:
		if err := s.fail(ctx, order, execErr.Error()); err != nil {
			return ExecutionResult{}, fmt.Errorf("%w: %w", ErrOutcomeUnrecorded, err)
		}
		s.logger.Error("order execution failed",
			zap.String("order_id", order.ID),
			zap.String("address", position.Address),
			zap.String("order_type", string(order.OrderType)),
			zap.Error(execErr))
		s.notifier.Notify(ctx, NotifyOrderFailed, orderFailedText(order, position, execErr.Error()))
		return ExecutionResult{Outcome: ExecutionFailed, Reason: execErr.Error()}, nil
	}

	if err := s.complete(ctx, order, signature, ""); err != nil {
		return ExecutionResult{}, fmt.Errorf("%w (signature %s): %w", ErrOutcomeUnrecorded, signature, err)
	}

	s.logger.Info("order executed",
		zap.String("order_id", order.ID),
		zap.String("address", position.Address),
		zap.String("order_type", string(order.OrderType)),
		zap.Float64("ratio", order.Ratio),
		zap.String("signature", signature))

	// 买入由开仓通知覆盖，只有卖出写成交记录并单独通知
	if order.OrderType.IsSell() {
		if err := s.appendTrade(ctx, order, position, signature, amount); err != nil {
			return ExecutionResult{}, fmt.Errorf("%w (signature %s): %w", ErrOutcomeUnrecorded, signature, err)
		}
		s.notifier.Notify(ctx, NotifyOrderExecuted, orderExecutedText(order, position, signature))
	}
	return ExecutionResult{Outcome: ExecutionExecuted, Signature: signature}, nil
}

// dispatch 调用交易通道，执行通道的 panic 按失败处理
func (s *OrderService) dispatch(ctx context.Context, order *models.Order, position *models.Position) (signature string, amount decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	if order.OrderType == models.OrderTypeBuy {
		result, err := s.executor.Buy(ctx, swap.BuyRequest{
			Address: position.Address,
			Symbol:  position.Symbol,
			Capital: position.Capital,
			Price:   position.CurrentPrice,
		})
		if err != nil {
			return "", decimal.Zero, err
		}
		return result.Signature, decimal.Zero, nil
	}

	if order.OrderType == models.OrderTypeFlagSell {
		if delay := s.tradingConf.FlagSellDelay(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", decimal.Zero, ctx.Err()
			}
		}
	}

	balance, err := s.executor.GetBalance(ctx, position.Address)
	if err != nil {
		return "", decimal.Zero, err
	}
	if !balance.IsPositive() {
		return "", decimal.Zero, errNoBalance
	}
	amount = swap.SellAmount(balance, order.Ratio)
	if !amount.IsPositive() {
		// 余额不足一个最小单位，视为已清仓
		return "", decimal.Zero, errNoBalance
	}

	result, err := s.executor.Sell(ctx, swap.SellRequest{
		Address:     position.Address,
		Symbol:      position.Symbol,
		GainPercent: position.GainPercent(),
		Ratio:       order.Ratio,
		Amount:      amount,
		Price:       position.CurrentPrice,
		Reason:      order.Description,
	})
	if err != nil {
		return "", decimal.Zero, err
	}
	return result.Signature, amount, nil
}

func (s *OrderService) complete(ctx context.Context, order *models.Order, signature, note string) error {
	now := time.Now()
	ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusExecuting, models.OrderStatusCompleted, map[string]interface{}{
		"signature":   signature,
		"error":       note,
		"executed_at": now,
	})
	if err != nil {
		return fmt.Errorf("failed to mark order completed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: order %s left executing state", models.ErrInvalidTransition, order.ID)
	}
	order.Status = models.OrderStatusCompleted
	order.Signature = signature
	order.Error = note
	order.ExecutedAt = &now
	return nil
}

func (s *OrderService) fail(ctx context.Context, order *models.Order, reason string) error {
	ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusExecuting, models.OrderStatusFailed, map[string]interface{}{
		"error":       reason,
		"retry_count": gorm.Expr("retry_count + 1"),
	})
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: order %s left executing state", models.ErrInvalidTransition, order.ID)
	}
	order.Status = models.OrderStatusFailed
	order.Error = reason
	order.RetryCount++
	return nil
}

func (s *OrderService) appendTrade(ctx context.Context, order *models.Order, position *models.Position, signature string, amount decimal.Decimal) error {
	trade := &models.Trade{
		ID:          ulid.Make().String(),
		PositionID:  position.ID,
		OrderID:     order.ID,
		Address:     position.Address,
		Symbol:      position.Symbol,
		OrderType:   order.OrderType,
		Ratio:       order.Ratio,
		Amount:      amount.String(),
		Price:       position.CurrentPrice,
		GainPercent: position.GainPercent(),
		Signature:   signature,
		Description: order.Description,
		ExecutedAt:  time.Now(),
	}
	if err := s.TradeRepo.Create(ctx, trade); err != nil {
		return fmt.Errorf("failed to append trade history: %w", err)
	}
	return nil
}

// CreateAndExecuteImmediate 创建立即执行的订单并同步执行，返回是否成功
func (s *OrderService) CreateAndExecuteImmediate(ctx context.Context, position *models.Position, orderType models.OrderType, ratio float64, description string) (bool, error) {
	order := &models.Order{
		ID:          ulid.Make().String(),
		PositionID:  position.ID,
		Address:     position.Address,
		OrderType:   orderType,
		Ratio:       ratio,
		TriggerType: models.TriggerTypeImmediate,
		TriggerOp:   models.TriggerOpGTE,
		Status:      models.OrderStatusPending,
		Description: description,
	}
	if err := order.Validate(); err != nil {
		return false, err
	}
	if err := s.OrderRepo.Create(ctx, order); err != nil {
		return false, fmt.Errorf("failed to create order: %w", err)
	}

	triggered, err := s.trigger(ctx, order)
	if err != nil {
		return false, err
	}
	if !triggered {
		return false, nil
	}

	result, err := s.Execute(ctx, order, position)
	if err != nil {
		return false, err
	}
	return result.Succeeded(), nil
}

// Cancel 取消单个待触发订单，订单不是 pending 时返回 false
func (s *OrderService) Cancel(ctx context.Context, orderID string) (bool, error) {
	ok, err := s.OrderRepo.Transition(ctx, orderID, models.OrderStatusPending, models.OrderStatusCanceled, map[string]interface{}{
		"canceled_at": time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	return ok, nil
}

// CancelAllForPosition 取消持仓的全部待触发订单，返回取消数量
func (s *OrderService) CancelAllForPosition(ctx context.Context, positionID string) (int64, error) {
	count, err := s.OrderRepo.CancelByPositionID(ctx, positionID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel orders: %w", err)
	}
	return count, nil
}

// RetryFailedOrders 将退避时间已到的失败卖单重新放回 pending
func (s *OrderService) RetryFailedOrders(ctx context.Context) (int, error) {
	if !s.retryConf.Enabled {
		return 0, nil
	}
	orders, err := s.OrderRepo.FindRetryable(ctx, s.retryConf.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to load retryable orders: %w", err)
	}

	requeued := 0
	now := time.Now()
	for _, order := range orders {
		if now.Sub(order.UpdatedAt) < models.RetryBackoff(s.retryConf.Backoff(), order.RetryCount) {
			continue
		}
		ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusFailed, models.OrderStatusPending, nil)
		if err != nil {
			return requeued, fmt.Errorf("failed to requeue order: %w", err)
		}
		if ok {
			requeued++
			s.logger.Info("failed order requeued",
				zap.String("order_id", order.ID),
				zap.String("address", order.Address),
				zap.Int("retry_count", order.RetryCount))
		}
	}
	return requeued, nil
}

// ReconcileStaleOrders 处理进程中断后停留在 triggered / executing 的订单
func (s *OrderService) ReconcileStaleOrders(ctx context.Context) (int, error) {
	before := time.Now().Add(-s.retryConf.Stale())
	reconciled := 0

	// triggered 尚未调用交易通道，可以安全地放回 pending
	triggered, err := s.OrderRepo.FindStale(ctx, models.OrderStatusTriggered, before)
	if err != nil {
		return 0, fmt.Errorf("failed to load stale orders: %w", err)
	}
	for _, order := range triggered {
		if busy, _ := s.executing.Locked(ctx, order.ID); busy {
			continue
		}
		ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusTriggered, models.OrderStatusPending, nil)
		if err != nil {
			return reconciled, fmt.Errorf("failed to reset stale order: %w", err)
		}
		if ok {
			reconciled++
		}
	}

	// executing 期间中断，交易可能已经上链，不再自动重试
	executing, err := s.OrderRepo.FindStale(ctx, models.OrderStatusExecuting, before)
	if err != nil {
		return reconciled, fmt.Errorf("failed to load stale orders: %w", err)
	}
	for _, order := range executing {
		if busy, _ := s.executing.Locked(ctx, order.ID); busy {
			continue
		}
		ok, err := s.OrderRepo.Transition(ctx, order.ID, models.OrderStatusExecuting, models.OrderStatusFailed, map[string]interface{}{
			"error":       "interrupted",
			"retry_count": s.retryConf.MaxRetries,
		})
		if err != nil {
			return reconciled, fmt.Errorf("failed to fail stale order: %w", err)
		}
		if ok {
			reconciled++
			s.logger.Warn("interrupted order marked failed",
				zap.String("order_id", order.ID),
				zap.String("address", order.Address))
		}
	}
	return reconciled, nil
}

// GetOrder 根据ID获取订单
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.OrderRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
