package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// PositionStatusActive 持仓唯一的存活状态，平仓即删除
const PositionStatusActive = "active"

// Position 持仓信息，每个代币地址至多一条
type Position struct {
	ID           string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Address      string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"address"` // 代币地址
	Symbol       string         `gorm:"type:varchar(32)" json:"symbol"`                      // 代币符号
	EntryPrice   float64        `gorm:"not null" json:"entry_price"`                         // 开仓价格
	CurrentPrice float64        `json:"current_price"`                                       // 当前价格
	HighestPrice float64        `json:"highest_price"`                                       // 持仓期间最高价
	LowestPrice  float64        `json:"lowest_price"`                                        // 持仓期间最低价
	Capital      float64        `gorm:"not null" json:"capital"`                             // 投入资金，创建后不再变化
	Flag         int            `gorm:"not null;default:0" json:"flag"`                      // 外部信号(lfg) 0/1
	Status       string         `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	Metadata     datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"` // 开仓时的准入数据快照
	OpenedAt     time.Time      `gorm:"not null;index" json:"opened_at"`     // 开仓时间
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"` // 最后一次行情更新时间
}

// TableName 指定表名
func (*Position) TableName() string {
	return "positions"
}

// GainPercent 收益率 = (当前价 - 开仓价) / 开仓价 × 100
func (p *Position) GainPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// DrawdownPercent 从最高价的回撤 = (最高价 - 当前价) / 最高价 × 100
func (p *Position) DrawdownPercent() float64 {
	if p.HighestPrice == 0 {
		return 0
	}
	return (p.HighestPrice - p.CurrentPrice) / p.HighestPrice * 100
}

// ApplyTick 写入最新价格与信号，最高价只增不减，最低价只减不增
func (p *Position) ApplyTick(price float64, flag bool) {
	p.CurrentPrice = price
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if p.LowestPrice == 0 || price < p.LowestPrice {
		p.LowestPrice = price
	}
	p.Flag = 0
	if flag {
		p.Flag = 1
	}
}

func (p *Position) CalculateHoldingStr() string {
	holding := time.Since(p.OpenedAt)
	holdingStr, _ := strings.CutSuffix(holding.Round(time.Minute).String(), "0s")
	return holdingStr
}
