package config

import (
	"fmt"
	"strings"

	"tunix/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if strings.TrimSpace(c.Exchange.APIKey) == "" {
		return fmt.Errorf("exchange.api_key 不能为空")
	}
	if strings.TrimSpace(c.Exchange.SecretKey) == "" {
		return fmt.Errorf("exchange.secret_key 不能为空")
	}
	if strings.TrimSpace(c.Trading.Symbol) == "" {
		return fmt.Errorf("trading.symbol 不能为空")
	}
	if strings.TrimSpace(c.Trading.Pair) == "" {
		return fmt.Errorf("trading.pair 不能为空")
	}
	if c.Trading.WalletFraction > 1 {
		return fmt.Errorf("trading.wallet_fraction 必须在 (0,1] 区间内")
	}
	if !scheduler.ValidTimeframe(c.Strategy.Timeframe) {
		return fmt.Errorf("strategy.timeframe 无法解析: %q", c.Strategy.Timeframe)
	}
	if c.Strategy.RSIBuy >= c.Strategy.RSISell {
		return fmt.Errorf("strategy.rsi_buy (%.1f) 必须小于 strategy.rsi_sell (%.1f)", c.Strategy.RSIBuy, c.Strategy.RSISell)
	}
	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" || strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram 启用时 bot_token 与 chat_id 均为必填")
		}
	}
	return nil
}
