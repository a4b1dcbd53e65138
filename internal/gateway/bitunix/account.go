package bitunix

import (
	"context"

	"tunix/internal/gateway/exchange"
	"tunix/internal/pkg/convert"
)

const pathAccount = "/api/v1/futures/account"

// GetBalance 查询合约账户保证金余额。
func (c *Client) GetBalance(ctx context.Context) (exchange.Balance, error) {
	data, err := c.doGet(ctx, pathAccount, map[string]string{"marginCoin": c.marginCoin})
	if err != nil {
		return exchange.Balance{}, err
	}
	cross := convert.ToDecimal(data.Get("crossUnrealizedPNL").String())
	isolation := convert.ToDecimal(data.Get("isolationUnrealizedPNL").String())
	return exchange.Balance{
		Available:     convert.ToDecimal(data.Get("available").String()),
		Margin:        convert.ToDecimal(data.Get("margin").String()),
		UnrealizedPnl: cross.Add(isolation),
	}, nil
}
