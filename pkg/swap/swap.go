package swap

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrBalanceUnavailable 余额查询失败
var ErrBalanceUnavailable = errors.New("token balance unavailable")

// Executor 交易执行接口，屏蔽具体的链上/链下交易通道
type Executor interface {
	// Buy 使用持仓投入资金买入代币
	Buy(ctx context.Context, req BuyRequest) (*Result, error)
	// Sell 卖出指定数量的代币
	Sell(ctx context.Context, req SellRequest) (*Result, error)
	// GetBalance 查询当前持有的代币数量（最小单位）
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// BuyRequest 买入参数
type BuyRequest struct {
	Address string  `json:"address"`
	Symbol  string  `json:"symbol"`
	Capital float64 `json:"capital"` // 投入资金
	Price   float64 `json:"price"`   // 下单时参考价
}

// SellRequest 卖出参数
type SellRequest struct {
	Address     string          `json:"address"`
	Symbol      string          `json:"symbol"`
	GainPercent float64         `json:"gain_percent"`
	Ratio       float64         `json:"ratio"`
	Amount      decimal.Decimal `json:"amount"`
	Price       float64         `json:"price"`
	Reason      string          `json:"reason"`
}

// Result 成交结果
type Result struct {
	Signature string `json:"signature"` // 交易签名/流水号
}

// SellAmount 按比例计算卖出数量，向下取整
func SellAmount(balance decimal.Decimal, ratio float64) decimal.Decimal {
	return balance.Mul(decimal.NewFromFloat(ratio)).Div(decimal.NewFromInt(100)).Floor()
}
