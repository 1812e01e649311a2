package service

import (
	"context"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/repo"
	"gorm.io/gorm"
)

// Stats 运行概况
type Stats struct {
	ActivePositions int64   `json:"active_positions"`
	PendingOrders   int64   `json:"pending_orders"`
	TradesLast24h   int64   `json:"trades_last_24h"`
	TotalCapital    float64 `json:"total_capital"`
	AverageGain     float64 `json:"average_gain"` // 活跃持仓的平均收益率
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{
		positionRepo: repo.NewPositionRepo(db),
		orderRepo:    repo.NewOrderRepo(db),
		tradeRepo:    repo.NewTradeRepo(db),
	}
}

// StatsService 只读查询：统计、待触发订单、成交记录
type StatsService struct {
	positionRepo *repo.PositionRepo
	orderRepo    *repo.OrderRepo
	tradeRepo    *repo.TradeRepo
}

func (s *StatsService) GetStats(ctx context.Context) (*Stats, error) {
	positions, err := s.positionRepo.FindAllActive(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.orderRepo.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := s.tradeRepo.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	capital, err := s.positionRepo.SumCapital(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ActivePositions: int64(len(positions)),
		PendingOrders:   pending,
		TradesLast24h:   trades,
		TotalCapital:    capital,
	}
	var totalGain float64
	for i := range positions {
		totalGain += positions[i].GainPercent()
	}
	if len(positions) > 0 {
		stats.AverageGain = totalGain / float64(len(positions))
	}
	return stats, nil
}

// GetPendingOrders 所有待触发订单
func (s *StatsService) GetPendingOrders(ctx context.Context) ([]models.Order, error) {
	return s.orderRepo.FindAllPending(ctx)
}

// GetTradeHistory 最近的成交记录
func (s *StatsService) GetTradeHistory(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.tradeRepo.FindRecentTrades(ctx, limit)
}

// GetTradesByAddress 某代币的全部成交
func (s *StatsService) GetTradesByAddress(ctx context.Context, address string) ([]models.Trade, error) {
	return s.tradeRepo.FindByAddress(ctx, address)
}
