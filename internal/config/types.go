package config

// Config 是整个机器人的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Market   MarketConfig   `toml:"market"`
	Trading  TradingConfig  `toml:"trading"`
	Strategy StrategyConfig `toml:"strategy"`
	Notify   NotifyConfig   `toml:"notify"`
	Store    StoreConfig    `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// ExchangeConfig 描述 Bitunix 合约 API 的访问方式。
type ExchangeConfig struct {
	APIKey         string `toml:"api_key"`
	SecretKey      string `toml:"secret_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MarketConfig 描述行情（Binance 合约 K 线）来源。
type MarketConfig struct {
	RESTBaseURL        string `toml:"rest_base_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	CandleLimit        int    `toml:"candle_limit"`
}

// TradingConfig 控制下单标的与仓位来源。
type TradingConfig struct {
	Symbol              string  `toml:"symbol"` // 交易所符号，如 ETHUSDT
	Pair                string  `toml:"pair"`   // 行情符号，如 ETH/USDT
	MarginCoin          string  `toml:"margin_coin"`
	Leverage            int     `toml:"leverage"`
	WalletFraction      float64 `toml:"wallet_fraction"` // 每次下单占可用余额比例 0~1
	QuantityPrecision   int32   `toml:"quantity_precision"`
	LoopIntervalSeconds int     `toml:"loop_interval_seconds"`
}

// StrategyConfig 既承载内联参数，也可指向可热更新的参数文件。
type StrategyConfig struct {
	ParamsPath string `toml:"params_path"`

	Timeframe        string  `toml:"timeframe"`
	RSILen           int     `toml:"rsi_len"`
	ATRLen           int     `toml:"atr_len"`
	BreakoutLookback int     `toml:"breakout_lookback"`
	RSIBuy           float64 `toml:"rsi_buy"`
	RSISell          float64 `toml:"rsi_sell"`
	ExitRSI          float64 `toml:"exit_rsi"`
	ExitRSIShort     float64 `toml:"exit_rsi_short"`
	StopMult         float64 `toml:"stop_mult"`
	LimitMult        float64 `toml:"limit_mult"`
	ATRMult          float64 `toml:"atr_mult"`

	ConditionalMaxRetries      int `toml:"conditional_max_retries"`
	ConditionalRetryIntervalMS int `toml:"conditional_retry_interval_ms"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// StoreConfig 指定账本文件目录、交易流水库与启动图表输出。
type StoreConfig struct {
	DataDir    string `toml:"data_dir"`
	SqlitePath string `toml:"sqlite_path"`
	ChartPath  string `toml:"chart_path"`
}
