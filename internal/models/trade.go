package models

import (
	"time"
)

// Trade 卖出成交记录，写入后不再修改
type Trade struct {
	ID          string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	PositionID  string    `gorm:"type:varchar(26);index" json:"position_id"` // 关联的持仓ID（非外键约束）
	OrderID     string    `gorm:"type:varchar(26);index" json:"order_id"`
	Address     string    `gorm:"type:varchar(64);not null;index" json:"address"`
	Symbol      string    `gorm:"type:varchar(32)" json:"symbol"`
	OrderType   OrderType `gorm:"type:varchar(20);not null" json:"order_type"`
	Ratio       float64   `json:"ratio"`
	Amount      string    `gorm:"type:varchar(64)" json:"amount"` // 卖出数量（最小单位）
	Price       float64   `json:"price"`                          // 成交时价格
	GainPercent float64   `json:"gain_percent"`                   // 成交时收益率
	Signature   string    `gorm:"type:varchar(128)" json:"signature"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	ExecutedAt  time.Time `gorm:"not null;index" json:"executed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Trade) TableName() string {
	return "trades"
}
