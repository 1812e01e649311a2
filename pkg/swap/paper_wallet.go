package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tokenDecimals 模拟代币精度
const tokenDecimals = 6

// PaperWallet 纸钱包（模拟交易），按参考价模拟成交
type PaperWallet struct {
	logger *zap.Logger

	balance        float64                    // 剩余资金
	initialBalance float64                    // 初始资金
	holdings       map[string]decimal.Decimal // address -> 持有数量
	txID           int64                      // 模拟交易编号
	mu             sync.RWMutex
}

// NewPaperWallet 创建纸钱包
func NewPaperWallet(initialBalance float64, logger *zap.Logger) *PaperWallet {
	return &PaperWallet{
		logger:         logger,
		balance:        initialBalance,
		initialBalance: initialBalance,
		holdings:       make(map[string]decimal.Decimal),
		txID:           1000000,
	}
}

var _ Executor = (*PaperWallet)(nil)

// Buy 模拟买入
func (p *PaperWallet) Buy(ctx context.Context, req BuyRequest) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Price <= 0 {
		return nil, fmt.Errorf("paper wallet: invalid price %.8f", req.Price)
	}
	if req.Capital <= 0 {
		return nil, fmt.Errorf("paper wallet: invalid capital %.8f", req.Capital)
	}
	if req.Capital > p.balance {
		return nil, fmt.Errorf("paper wallet: insufficient balance %.4f < %.4f", p.balance, req.Capital)
	}

	amount := decimal.NewFromFloat(req.Capital).
		Div(decimal.NewFromFloat(req.Price)).
		Shift(tokenDecimals).
		Floor()

	p.balance -= req.Capital
	p.holdings[req.Address] = p.holdings[req.Address].Add(amount)
	p.txID++

	p.logger.Info("paper wallet: buy",
		zap.String("address", req.Address),
		zap.String("symbol", req.Symbol),
		zap.Float64("capital", req.Capital),
		zap.Float64("price", req.Price),
		zap.String("amount", amount.String()))

	return &Result{Signature: fmt.Sprintf("paper-%d", p.txID)}, nil
}

// Sell 模拟卖出
func (p *PaperWallet) Sell(ctx context.Context, req SellRequest) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.holdings[req.Address]
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("paper wallet: invalid amount %s", req.Amount)
	}
	if req.Amount.GreaterThan(held) {
		return nil, fmt.Errorf("paper wallet: insufficient holdings %s < %s", held, req.Amount)
	}

	proceeds, _ := req.Amount.Shift(-tokenDecimals).Mul(decimal.NewFromFloat(req.Price)).Float64()
	p.balance += proceeds

	left := held.Sub(req.Amount)
	if left.IsZero() {
		delete(p.holdings, req.Address)
	} else {
		p.holdings[req.Address] = left
	}
	p.txID++

	p.logger.Info("paper wallet: sell",
		zap.String("address", req.Address),
		zap.String("symbol", req.Symbol),
		zap.Float64("ratio", req.Ratio),
		zap.String("amount", req.Amount.String()),
		zap.Float64("proceeds", proceeds),
		zap.String("reason", req.Reason))

	return &Result{Signature: fmt.Sprintf("paper-%d", p.txID)}, nil
}

// GetBalance 查询模拟持仓数量
func (p *PaperWallet) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdings[address], nil
}

// Cash 当前剩余资金
func (p *PaperWallet) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}
