package trader

import (
	"github.com/shopspring/decimal"
)

// TradeSize 按可用余额、仓位比例与杠杆折算下单数量，并向下取整到
// 交易所数量精度。余额或价格非正时返回零，调用方按「本轮不交易」
// 处理，这不是错误。
func TradeSize(available decimal.Decimal, fraction float64, leverage int, price float64, precision int32) decimal.Decimal {
	if available.Sign() <= 0 || fraction <= 0 || leverage <= 0 || price <= 0 {
		return decimal.Zero
	}
	notional := available.
		Mul(decimal.NewFromFloat(fraction)).
		Mul(decimal.NewFromInt(int64(leverage)))
	qty := notional.Div(decimal.NewFromFloat(price))
	return qty.RoundFloor(precision)
}
