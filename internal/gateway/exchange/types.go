package exchange

import "github.com/shopspring/decimal"

// Side 是持仓方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OrderSide 是下单的逻辑方向，由交易所网关映射为 side/tradeSide 字段。
type OrderSide string

const (
	OpenLong   OrderSide = "open_long"
	CloseLong  OrderSide = "close_long"
	OpenShort  OrderSide = "open_short"
	CloseShort OrderSide = "close_short"
)

// PositionSnapshot 是交易所侧持仓的本地镜像。数量与价格沿用交易所的
// 字符串精度，避免浮点噪声进入平仓数量。
type PositionSnapshot struct {
	PositionID    string
	Side          Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	Margin        decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// Positions 汇总单个 symbol 的双向持仓查询结果。
type Positions struct {
	Long  *PositionSnapshot
	Short *PositionSnapshot
}

// Active 返回当前唯一持仓；同一时刻最多存在一个方向。
func (p Positions) Active() *PositionSnapshot {
	if p.Long != nil {
		return p.Long
	}
	return p.Short
}

// Balance 描述合约账户可用保证金。
type Balance struct {
	Available     decimal.Decimal
	Margin        decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// OrderResult 是市价单回执；positionId 可能缺失，需要调用方回查。
type OrderResult struct {
	OrderID    string
	PositionID string
}

// ClosedOrder 是历史订单查询里的一条已平仓记录。
type ClosedOrder struct {
	OrderID     string
	PositionID  string
	Status      string
	Side        string
	TriggerType string
	AvgPrice    decimal.Decimal
	Profit      decimal.Decimal
}

const (
	OrderStatusFilled = "FILLED"
	TriggerTakeProfit = "TAKE_PROFIT"
	TriggerStopLoss   = "STOP_LOSS"
)
