package bitunix

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"tunix/internal/logger"
)

const (
	pathTpslPlace   = "/api/v1/futures/tpsl/position/place_order"
	pathTpslModify  = "/api/v1/futures/tpsl/modify_position_tp_sl_order"
	pathTpslPending = "/api/v1/futures/tpsl/get_pending_tp_sl_order"
	pathTpslCancel  = "/api/v1/futures/tpsl/cancel_order"
)

func (c *Client) tpslBody(positionID string, stopPrice, limitPrice *float64) (map[string]any, error) {
	if stopPrice == nil && limitPrice == nil {
		return nil, fmt.Errorf("止损与止盈价格至少提供其一 (positionId=%s)", positionID)
	}
	body := map[string]any{
		"symbol":     c.symbol,
		"positionId": positionID,
	}
	if stopPrice != nil {
		body["slPrice"] = formatPrice(*stopPrice)
		body["slStopType"] = "LAST_PRICE"
	}
	if limitPrice != nil {
		body["tpPrice"] = formatPrice(*limitPrice)
		body["tpStopType"] = "LAST_PRICE"
	}
	return body, nil
}

// PlaceConditional 为持仓挂服务端止损/止盈单，失败时按固定间隔重试到
// 配置的上限。重试耗尽返回最后一次错误，由调用方统一发终态通知。
func (c *Client) PlaceConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error {
	body, err := c.tpslBody(positionID, stopPrice, limitPrice)
	if err != nil {
		return err
	}
	retries := c.condMaxRetries
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		_, placeErr := c.doPost(ctx, pathTpslPlace, body)
		if placeErr == nil {
			return nil
		}
		lastErr = placeErr
		logger.Warnf("条件单设置失败 (第 %d/%d 次) positionId=%s err=%v", attempt, retries, positionID, placeErr)
		if attempt < retries {
			c.sleep(c.condRetryDelay)
		}
	}
	return fmt.Errorf("条件单设置失败，已重试 %d 次: %w", retries, lastErr)
}

// ModifyConditional 修改持仓上的止损/止盈价。单次调用不重试：失败时
// 旧条件单仍然有效，下一轮会再次尝试收紧。
func (c *Client) ModifyConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error {
	body, err := c.tpslBody(positionID, stopPrice, limitPrice)
	if err != nil {
		return err
	}
	_, err = c.doPost(ctx, pathTpslModify, body)
	return err
}

// ListPendingConditional 返回指定持仓下挂单中的条件单 orderId 列表。
func (c *Client) ListPendingConditional(ctx context.Context, positionID string) ([]string, error) {
	data, err := c.doGet(ctx, pathTpslPending, map[string]string{"symbol": c.symbol})
	if err != nil {
		return nil, err
	}
	var ids []string
	data.ForEach(func(_, row gjson.Result) bool {
		if row.Get("positionId").String() != positionID {
			return true
		}
		if id := row.Get("orderId").String(); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	return ids, nil
}

// CancelConditional 取消单个条件单。
func (c *Client) CancelConditional(ctx context.Context, orderID string) error {
	_, err := c.doPost(ctx, pathTpslCancel, map[string]any{
		"symbol":  c.symbol,
		"orderId": orderID,
	})
	return err
}
