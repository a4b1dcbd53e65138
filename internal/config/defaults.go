package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9992"
	defaultExchangeBase = "https://fapi.bitunix.com"
	defaultExchangeTO   = 15
	defaultMarketREST   = "https://fapi.binance.com"
	defaultMarketTO     = 15
	defaultCandleLimit  = 100
	defaultMarginCoin   = "USDT"
	defaultLeverage     = 20
	defaultWalletFrac   = 0.8
	defaultQtyPrecision = 4
	defaultLoopInterval = 20
	defaultTimeframe    = "4h"
	defaultRSILen       = 12
	defaultATRLen       = 12
	defaultBreakoutLB   = 3
	defaultRSIBuy       = 47
	defaultRSISell      = 53
	defaultExitRSI      = 44
	defaultExitRSIShort = 51
	defaultStopMult     = 1.0
	defaultLimitMult    = 4.0
	defaultATRMult      = 3.25
	defaultCondRetries  = 3
	defaultCondRetryMS  = 2000
	defaultStoreDataDir = "data"
	defaultStoreSqlite  = "data/trades.db"
	defaultStoreChart   = "data/startup_chart.html"
)

// applyDefaults 为所有子配置补齐默认值（仅覆盖零值字段）。
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = defaultAppEnv
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if strings.TrimSpace(c.Exchange.BaseURL) == "" {
		c.Exchange.BaseURL = defaultExchangeBase
	}
	if c.Exchange.TimeoutSeconds <= 0 {
		c.Exchange.TimeoutSeconds = defaultExchangeTO
	}
	if strings.TrimSpace(c.Market.RESTBaseURL) == "" {
		c.Market.RESTBaseURL = defaultMarketREST
	}
	if c.Market.HTTPTimeoutSeconds <= 0 {
		c.Market.HTTPTimeoutSeconds = defaultMarketTO
	}
	if c.Market.CandleLimit <= 0 {
		c.Market.CandleLimit = defaultCandleLimit
	}
	if strings.TrimSpace(c.Trading.MarginCoin) == "" {
		c.Trading.MarginCoin = defaultMarginCoin
	}
	if c.Trading.Leverage <= 0 {
		c.Trading.Leverage = defaultLeverage
	}
	if c.Trading.WalletFraction <= 0 {
		c.Trading.WalletFraction = defaultWalletFrac
	}
	if c.Trading.QuantityPrecision <= 0 {
		c.Trading.QuantityPrecision = defaultQtyPrecision
	}
	if c.Trading.LoopIntervalSeconds <= 0 {
		c.Trading.LoopIntervalSeconds = defaultLoopInterval
	}
	c.Strategy.applyDefaults()
	if strings.TrimSpace(c.Store.DataDir) == "" {
		c.Store.DataDir = defaultStoreDataDir
	}
	if strings.TrimSpace(c.Store.SqlitePath) == "" {
		c.Store.SqlitePath = defaultStoreSqlite
	}
	if strings.TrimSpace(c.Store.ChartPath) == "" {
		c.Store.ChartPath = defaultStoreChart
	}
}

func (s *StrategyConfig) applyDefaults() {
	if strings.TrimSpace(s.Timeframe) == "" {
		s.Timeframe = defaultTimeframe
	}
	if s.RSILen <= 0 {
		s.RSILen = defaultRSILen
	}
	if s.ATRLen <= 0 {
		s.ATRLen = defaultATRLen
	}
	if s.BreakoutLookback <= 0 {
		s.BreakoutLookback = defaultBreakoutLB
	}
	if s.RSIBuy <= 0 {
		s.RSIBuy = defaultRSIBuy
	}
	if s.RSISell <= 0 {
		s.RSISell = defaultRSISell
	}
	if s.ExitRSI <= 0 {
		s.ExitRSI = defaultExitRSI
	}
	if s.ExitRSIShort <= 0 {
		s.ExitRSIShort = defaultExitRSIShort
	}
	if s.StopMult <= 0 {
		s.StopMult = defaultStopMult
	}
	if s.LimitMult <= 0 {
		s.LimitMult = defaultLimitMult
	}
	if s.ATRMult <= 0 {
		s.ATRMult = defaultATRMult
	}
	if s.ConditionalMaxRetries <= 0 {
		s.ConditionalMaxRetries = defaultCondRetries
	}
	if s.ConditionalRetryIntervalMS <= 0 {
		s.ConditionalRetryIntervalMS = defaultCondRetryMS
	}
}
