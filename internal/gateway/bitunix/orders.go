package bitunix

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tunix/internal/gateway/exchange"
)

const pathPlaceOrder = "/api/v1/futures/trade/place_order"

// sideFields 将逻辑方向映射为交易所的 side/tradeSide 字段。
func sideFields(side exchange.OrderSide) (apiSide, tradeSide string, err error) {
	switch side {
	case exchange.OpenLong:
		return "BUY", "OPEN", nil
	case exchange.CloseLong:
		return "SELL", "CLOSE", nil
	case exchange.OpenShort:
		return "SELL", "OPEN", nil
	case exchange.CloseShort:
		return "BUY", "CLOSE", nil
	}
	return "", "", fmt.Errorf("不支持的交易方向: %s", side)
}

// PlaceMarketOrder 发送市价单。positionID 仅在平仓方向时附带。
func (c *Client) PlaceMarketOrder(ctx context.Context, side exchange.OrderSide, qty decimal.Decimal, positionID string) (*exchange.OrderResult, error) {
	apiSide, tradeSide, err := sideFields(side)
	if err != nil {
		return nil, err
	}
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("下单数量必须为正: %s", qty)
	}
	body := map[string]any{
		"symbol":     c.symbol,
		"marginCoin": c.marginCoin,
		"qty":        qty.String(),
		"side":       apiSide,
		"tradeSide":  tradeSide,
		"orderType":  "MARKET",
		"effect":     "GTC",
		"leverage":   c.leverage,
	}
	if positionID != "" && tradeSide == "CLOSE" {
		body["positionId"] = positionID
	}
	data, err := c.doPost(ctx, pathPlaceOrder, body)
	if err != nil {
		return nil, err
	}
	return &exchange.OrderResult{
		OrderID:    data.Get("orderId").String(),
		PositionID: data.Get("positionId").String(),
	}, nil
}
