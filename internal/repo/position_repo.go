package repo

import (
	"context"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewPositionRepo(db *gorm.DB) *PositionRepo {
	r := &PositionRepo{
		Repository: orz.NewRepository[models.Position, string](db),
	}
	// 表名缓存在首次调用时写入，构造时写好，避免并发读写
	r.GetTableName()
	return r
}

type PositionRepo struct {
	orz.Repository[models.Position, string]
}

// FindByAddress 根据代币地址查找持仓
func (r PositionRepo) FindByAddress(ctx context.Context, address string) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("address = ?", address).
		First(&m).Error
	return m, err
}

// ExistsByAddress 代币地址是否已有持仓
func (r PositionRepo) ExistsByAddress(ctx context.Context, address string) (bool, error) {
	db := r.GetDB(ctx)
	var count int64
	err := db.Table(r.GetTableName()).
		Where("address = ?", address).
		Count(&count).Error
	return count > 0, err
}

// CountActive 活跃持仓数量
func (r PositionRepo) CountActive(ctx context.Context) (int64, error) {
	db := r.GetDB(ctx)
	var count int64
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.PositionStatusActive).
		Count(&count).Error
	return count, err
}

// FindAllActive 查找所有活跃持仓，按开仓时间排序
func (r PositionRepo) FindAllActive(ctx context.Context) ([]models.Position, error) {
	db := r.GetDB(ctx)
	var positions []models.Position
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.PositionStatusActive).
		Order("opened_at ASC").
		Find(&positions).Error
	return positions, err
}

// SumCapital 活跃持仓投入资金合计
func (r PositionRepo) SumCapital(ctx context.Context) (float64, error) {
	db := r.GetDB(ctx)
	var total float64
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.PositionStatusActive).
		Select("COALESCE(SUM(capital), 0)").
		Scan(&total).Error
	return total, err
}

// UpdateMarket 写入最新行情字段，返回持仓是否仍存在
func (r PositionRepo) UpdateMarket(ctx context.Context, p *models.Position) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"current_price": p.CurrentPrice,
			"highest_price": p.HighestPrice,
			"lowest_price":  p.LowestPrice,
			"flag":          p.Flag,
			"updated_at":    time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

// HardDeleteById 物理删除持仓
func (r PositionRepo) HardDeleteById(ctx context.Context, id string) error {
	db := r.GetDB(ctx)
	return db.Unscoped().
		Where("id = ?", id).
		Delete(&models.Position{}).Error
}
