package bitunix

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"tunix/internal/gateway/exchange"
	"tunix/internal/pkg/convert"
)

const (
	pathPendingPositions = "/api/v1/futures/position/get_pending_positions"
	pathOrderHistory     = "/api/v1/futures/order/history"

	resolvePositionRetries = 3
	historyPageSize        = 10
	closedOrderPageSize    = 5
)

// QueryPositions 查询当前持仓快照。只采信数量大于零的记录，方向来自
// 交易所的 BUY/SELL 标记。
func (c *Client) QueryPositions(ctx context.Context) (exchange.Positions, error) {
	data, err := c.doGet(ctx, pathPendingPositions, map[string]string{"symbol": c.symbol})
	if err != nil {
		return exchange.Positions{}, err
	}
	var out exchange.Positions
	data.ForEach(func(_, pos gjson.Result) bool {
		qty := convert.ToDecimal(pos.Get("qty").String())
		if qty.Sign() <= 0 {
			return true
		}
		snap := &exchange.PositionSnapshot{
			PositionID:    pos.Get("positionId").String(),
			Quantity:      qty,
			EntryPrice:    convert.ToDecimal(pos.Get("avgOpenPrice").String()),
			Margin:        convert.ToDecimal(pos.Get("margin").String()),
			UnrealizedPnl: convert.ToDecimal(pos.Get("unrealizedPNL").String()),
		}
		switch pos.Get("side").String() {
		case "BUY":
			snap.Side = exchange.SideLong
			out.Long = snap
		case "SELL":
			snap.Side = exchange.SideShort
			out.Short = snap
		}
		return true
	})
	return out, nil
}

// RecentClosedOrders 拉取最近的历史订单，用于冷启动补发通知。
func (c *Client) RecentClosedOrders(ctx context.Context, limit int) ([]exchange.ClosedOrder, error) {
	if limit <= 0 {
		limit = historyPageSize
	}
	data, err := c.doGet(ctx, pathOrderHistory, map[string]string{
		"symbol":   c.symbol,
		"pageSize": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	var out []exchange.ClosedOrder
	orderRows(data).ForEach(func(_, row gjson.Result) bool {
		out = append(out, parseClosedOrder(row))
		return true
	})
	return out, nil
}

// ClosedOrderByPosition 在历史订单里按 positionId 定位已成交的平仓单，
// 用于恢复实际盈亏与触发类型。未找到返回 (nil, nil)：历史接口可能滞后
// 于持仓消失，调用方自行决定重试。
func (c *Client) ClosedOrderByPosition(ctx context.Context, positionID string) (*exchange.ClosedOrder, error) {
	data, err := c.doGet(ctx, pathOrderHistory, map[string]string{
		"symbol":   c.symbol,
		"pageSize": strconv.Itoa(closedOrderPageSize),
	})
	if err != nil {
		return nil, err
	}
	var found *exchange.ClosedOrder
	orderRows(data).ForEach(func(_, row gjson.Result) bool {
		if row.Get("positionId").String() != positionID {
			return true
		}
		if row.Get("status").String() != exchange.OrderStatusFilled {
			return true
		}
		order := parseClosedOrder(row)
		found = &order
		return false
	})
	return found, nil
}

// ResolvePositionID 在下单回执缺失 positionId 时轮询持仓列表兜底。
// Bitunix 不提供 orderId → positionId 的直接映射，只能取最新的有效持仓。
func (c *Client) ResolvePositionID(ctx context.Context, orderID string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < resolvePositionRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.condRetryDelay)
		}
		positions, err := c.QueryPositions(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if active := positions.Active(); active != nil {
			return active.PositionID, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("查询 positionId 失败 (orderId=%s): %w", orderID, lastErr)
	}
	return "", fmt.Errorf("未找到 orderId=%s 对应的持仓", orderID)
}

// orderRows 兼容 data 直接为数组或包在 orderList 字段里的两种返回。
func orderRows(data gjson.Result) gjson.Result {
	if data.IsArray() {
		return data
	}
	if list := data.Get("orderList"); list.IsArray() {
		return list
	}
	return gjson.Result{}
}

func parseClosedOrder(row gjson.Result) exchange.ClosedOrder {
	avg := row.Get("avgPrice")
	if !avg.Exists() {
		avg = row.Get("price")
	}
	return exchange.ClosedOrder{
		OrderID:     row.Get("orderId").String(),
		PositionID:  row.Get("positionId").String(),
		Status:      row.Get("status").String(),
		Side:        row.Get("side").String(),
		TriggerType: row.Get("triggerType").String(),
		AvgPrice:    convert.ToDecimal(avg.String()),
		Profit:      convert.ToDecimal(row.Get("profit").String()),
	}
}
