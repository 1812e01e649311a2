package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidTrigger    = errors.New("invalid order trigger")
	ErrInvalidRatio      = errors.New("sell ratio must be within (0, 100]")
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeBuy        OrderType = "buy"         // 开仓买入
	OrderTypeStopLoss   OrderType = "stop_loss"   // 止损单
	OrderTypeTakeProfit OrderType = "take_profit" // 止盈单
	OrderTypeFlagSell   OrderType = "flag_sell"   // 信号卖出
	OrderTypeManual     OrderType = "manual"      // 手动平仓
)

// IsSell 除买入外都按持仓比例卖出
func (t OrderType) IsSell() bool {
	return t != OrderTypeBuy
}

// TriggerType 触发条件类型
type TriggerType string

const (
	TriggerTypePrice     TriggerType = "price"     // 绝对价格
	TriggerTypeGain      TriggerType = "gain"      // 收益率
	TriggerTypeFlag      TriggerType = "flag"      // 信号相等
	TriggerTypeImmediate TriggerType = "immediate" // 立即执行
)

// TriggerOp 比较方式
type TriggerOp string

const (
	TriggerOpGTE TriggerOp = "gte"
	TriggerOpLTE TriggerOp = "lte"
	TriggerOpEQ  TriggerOp = "eq"
)

// Compare 按比较方式判断 actual 与 target
func (op TriggerOp) Compare(actual, target float64) bool {
	switch op {
	case TriggerOpGTE:
		return actual >= target
	case TriggerOpLTE:
		return actual <= target
	case TriggerOpEQ:
		return actual == target
	default:
		return false
	}
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // 等待触发
	OrderStatusTriggered OrderStatus = "triggered" // 已触发
	OrderStatusExecuting OrderStatus = "executing" // 执行中
	OrderStatusCompleted OrderStatus = "completed" // 已完成
	OrderStatusFailed    OrderStatus = "failed"    // 失败
	OrderStatusCanceled  OrderStatus = "canceled"  // 已取消
)

// orderTransitions 合法的状态迁移，failed -> pending 只允许重试任务使用
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusTriggered, OrderStatusCanceled},
	OrderStatusTriggered: {OrderStatusExecuting, OrderStatusPending},
	OrderStatusExecuting: {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusFailed:    {OrderStatusPending},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否终态。failed 仅在重试额度用尽后视为终态，由调用方判断
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// Order 条件单：买入或按当前持仓比例卖出
type Order struct {
	ID           string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	PositionID   string      `gorm:"type:varchar(26);not null;index" json:"position_id"` // 关联的持仓ID
	Address      string      `gorm:"type:varchar(64);not null;index" json:"address"`     // 代币地址
	OrderType    OrderType   `gorm:"type:varchar(20);not null" json:"order_type"`
	Ratio        float64     `gorm:"not null" json:"ratio"` // 卖出比例，占执行时持仓的百分比
	TriggerType  TriggerType `gorm:"type:varchar(20);not null" json:"trigger_type"`
	TriggerOp    TriggerOp   `gorm:"type:varchar(8);not null" json:"trigger_op"`
	TriggerValue float64     `json:"trigger_value"`
	Status       OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Description  string      `gorm:"type:varchar(255)" json:"description"`
	Signature    string      `gorm:"type:varchar(128)" json:"signature"` // 成交交易签名
	Error        string      `gorm:"type:text" json:"error"`
	RetryCount   int         `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	TriggeredAt  *time.Time  `json:"triggered_at,omitempty"`
	ExecutedAt   *time.Time  `json:"executed_at,omitempty"`
	CanceledAt   *time.Time  `json:"canceled_at,omitempty"`
}

// TableName 指定表名
func (*Order) TableName() string {
	return "orders"
}

// IsPending 是否等待触发
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// ShouldTrigger 根据持仓当前状态判断是否触发
func (o *Order) ShouldTrigger(p *Position) bool {
	switch o.TriggerType {
	case TriggerTypePrice:
		return o.TriggerOp.Compare(p.CurrentPrice, o.TriggerValue)
	case TriggerTypeGain:
		return o.TriggerOp.Compare(p.GainPercent(), o.TriggerValue)
	case TriggerTypeFlag:
		return float64(p.Flag) == o.TriggerValue
	case TriggerTypeImmediate:
		return true
	default:
		return false
	}
}

// Validate 校验订单参数。浮点相等只允许用于整数信号值
func (o *Order) Validate() error {
	if o.OrderType.IsSell() && (o.Ratio <= 0 || o.Ratio > 100) {
		return ErrInvalidRatio
	}
	switch o.TriggerType {
	case TriggerTypePrice:
		if o.TriggerValue <= 0 {
			return fmt.Errorf("%w: price threshold must be positive", ErrInvalidTrigger)
		}
		if o.TriggerOp != TriggerOpGTE && o.TriggerOp != TriggerOpLTE {
			return fmt.Errorf("%w: price trigger only supports gte/lte", ErrInvalidTrigger)
		}
	case TriggerTypeGain:
		if o.TriggerOp != TriggerOpGTE && o.TriggerOp != TriggerOpLTE {
			return fmt.Errorf("%w: gain trigger only supports gte/lte", ErrInvalidTrigger)
		}
	case TriggerTypeFlag:
		if o.TriggerOp != TriggerOpEQ {
			return fmt.Errorf("%w: flag trigger only supports eq", ErrInvalidTrigger)
		}
		if o.TriggerValue != math.Trunc(o.TriggerValue) {
			return fmt.Errorf("%w: flag value must be an integer", ErrInvalidTrigger)
		}
	case TriggerTypeImmediate:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, o.TriggerType)
	}
	return nil
}

// RetryBackoff 第 n 次重试前需等待的时间，指数退避
func RetryBackoff(base time.Duration, retryCount int) time.Duration {
	if retryCount <= 1 {
		return base
	}
	if retryCount > 16 {
		retryCount = 16
	}
	return base * time.Duration(1<<(retryCount-1))
}
