package repo

import (
	"context"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	r := &OrderRepo{
		Repository: orz.NewRepository[models.Order, string](db),
	}
	// 表名缓存在首次调用时写入，构造时写好，避免并发读写
	r.GetTableName()
	return r
}

type OrderRepo struct {
	orz.Repository[models.Order, string]
}

// FindByPositionID 查找指定持仓的所有订单（包括非活跃订单）
func (r OrderRepo) FindByPositionID(ctx context.Context, positionID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("position_id = ?", positionID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	return orders, err
}

// FindPendingByPositionID 查找指定持仓的所有待触发订单，按创建顺序返回
func (r OrderRepo) FindPendingByPositionID(ctx context.Context, positionID string) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("position_id = ? AND status = ?", positionID, models.OrderStatusPending).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	return orders, err
}

// FindAllPending 查找所有待触发订单
func (r OrderRepo) FindAllPending(ctx context.Context) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.OrderStatusPending).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	return orders, err
}

// CountPending 待触发订单数量
func (r OrderRepo) CountPending(ctx context.Context) (int64, error) {
	db := r.GetDB(ctx)
	var count int64
	err := db.Table(r.GetTableName()).
		Where("status = ?", models.OrderStatusPending).
		Count(&count).Error
	return count, err
}

// Transition 比较并更新订单状态，仅当当前状态为 from 时生效
func (r OrderRepo) Transition(ctx context.Context, id string, from, to models.OrderStatus, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelByPositionID 取消指定持仓的所有待触发订单
func (r OrderRepo) CancelByPositionID(ctx context.Context, positionID string) (int64, error) {
	db := r.GetDB(ctx)
	now := time.Now()
	result := db.Table(r.GetTableName()).
		Where("position_id = ? AND status = ?", positionID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":      models.OrderStatusCanceled,
			"canceled_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

// DeleteByPositionID 物理删除指定持仓的所有订单
func (r OrderRepo) DeleteByPositionID(ctx context.Context, positionID string) error {
	db := r.GetDB(ctx)
	return db.Unscoped().
		Where("position_id = ?", positionID).
		Delete(&models.Order{}).Error
}

// FindRetryable 查找可重试的失败卖单，买单和立即执行的单不重试
func (r OrderRepo) FindRetryable(ctx context.Context, maxRetries int) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("status = ? AND retry_count < ?", models.OrderStatusFailed, maxRetries).
		Where("order_type <> ? AND trigger_type <> ?", models.OrderTypeBuy, models.TriggerTypeImmediate).
		Order("updated_at ASC").
		Find(&orders).Error
	return orders, err
}

// FindStale 查找在某状态停留超过期限的订单
func (r OrderRepo) FindStale(ctx context.Context, status models.OrderStatus, before time.Time) ([]models.Order, error) {
	db := r.GetDB(ctx)
	var orders []models.Order
	err := db.Table(r.GetTableName()).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Find(&orders).Error
	return orders, err
}
