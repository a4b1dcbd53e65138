package model

import (
	"gorm.io/datatypes"
)

// TradeModel 是交易流水的一行，开仓与平仓各记一条。
type TradeModel struct {
	ID         int64          `gorm:"column:id;primaryKey" json:"id"`
	Timestamp  int64          `gorm:"column:timestamp;index" json:"timestamp"`
	Action     string         `gorm:"column:action" json:"action"`
	Side       string         `gorm:"column:side" json:"side"`
	EntryType  string         `gorm:"column:entry_type" json:"entry_type"`
	PositionID string         `gorm:"column:position_id;index" json:"position_id"`
	Quantity   string         `gorm:"column:quantity" json:"quantity"`
	Price      float64        `gorm:"column:price" json:"price"`
	Pnl        *float64       `gorm:"column:pnl" json:"pnl,omitempty"`
	Trigger    string         `gorm:"column:trigger" json:"trigger,omitempty"`
	Detail     datatypes.JSON `gorm:"column:detail;type:TEXT" json:"detail,omitempty"`
}

func (TradeModel) TableName() string {
	return "trades"
}
