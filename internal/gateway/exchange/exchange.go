package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Trader 抽象交易所的下单与查询面。失败一律返回 error，调用方按
// 「动作未发生」处理，不得据此推断持仓为空。
type Trader interface {
	PlaceMarketOrder(ctx context.Context, side OrderSide, qty decimal.Decimal, positionID string) (*OrderResult, error)

	QueryPositions(ctx context.Context) (Positions, error)

	GetBalance(ctx context.Context) (Balance, error)

	RecentClosedOrders(ctx context.Context, limit int) ([]ClosedOrder, error)

	ClosedOrderByPosition(ctx context.Context, positionID string) (*ClosedOrder, error)

	ResolvePositionID(ctx context.Context, orderID string) (string, error)
}

// ConditionalOrders 管理挂在持仓上的服务端止损/止盈单。
// 下单接口不具备 upsert 语义：改价需先 List + Cancel 再 Place。
type ConditionalOrders interface {
	PlaceConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error

	ModifyConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error

	ListPendingConditional(ctx context.Context, positionID string) ([]string, error)

	CancelConditional(ctx context.Context, orderID string) error
}
