package repo

import (
	"context"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewTradeRepo(db *gorm.DB) *TradeRepo {
	r := &TradeRepo{
		Repository: orz.NewRepository[models.Trade, string](db),
	}
	// 表名缓存在首次调用时写入，构造时写好，避免并发读写
	r.GetTableName()
	return r
}

type TradeRepo struct {
	orz.Repository[models.Trade, string]
}

// FindRecentTrades 获取最近的交易记录
func (r TradeRepo) FindRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Order("executed_at DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// CountSince 统计某时间之后的成交笔数
func (r TradeRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("executed_at >= ?", since).
		Count(&count).Error
	return count, err
}

// FindByAddress 获取某代币的全部成交
func (r TradeRepo) FindByAddress(ctx context.Context, address string) ([]models.Trade, error) {
	var trades []models.Trade
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("address = ?", address).
		Order("executed_at ASC").
		Find(&trades).Error
	return trades, err
}
