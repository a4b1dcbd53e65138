package app

import (
	"fmt"

	"tunix/internal/agent"
	"tunix/internal/config"
	"tunix/internal/gateway/binance"
	"tunix/internal/gateway/bitunix"
	"tunix/internal/gateway/notifier"
	"tunix/internal/logger"
	"tunix/internal/store/sqlite"
	"tunix/internal/strategy"
	"tunix/internal/trader"
	livehttp "tunix/internal/transport/http/live"
)

type builder struct {
	cfg *config.Config
}

func newBuilder(cfg *config.Config) *builder {
	return &builder{cfg: cfg}
}

// build 手工装配全部依赖。失败即返回，已打开的资源由 App.close 兜底。
func (b *builder) build() (*App, error) {
	cfg := b.cfg
	app := &App{cfg: cfg}

	client, err := bitunix.NewClient(cfg.Exchange, cfg.Trading, cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("bitunix client: %w", err)
	}

	source := binance.New(cfg.Market)
	app.closers = append(app.closers, source.Close)

	ledger, err := trader.OpenLedger(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	registry, err := strategy.NewRegistry(cfg.Strategy.ParamsPath, strategy.FromConfig(cfg.Strategy))
	if err != nil {
		return nil, fmt.Errorf("strategy registry: %w", err)
	}
	registry.OnChange(func(p strategy.Params) {
		logger.Infof("策略参数已热更新: version=%d timeframe=%s", registry.Version(), p.Timeframe)
	})

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram)
	}

	var journal trader.Journal = trader.NopJournal{}
	var trades livehttp.TradeLister
	if cfg.Store.SqlitePath != "" {
		store, err := sqlite.NewTradeStore(cfg.Store.SqlitePath)
		if err != nil {
			return nil, fmt.Errorf("trade store: %w", err)
		}
		journal = store
		trades = store
		app.closers = append(app.closers, store.Close)
	}

	engine := trader.NewEngine(client, client, ledger, notify, journal, cfg.Trading, cfg.Strategy)
	reconciler := trader.NewReconciler(client, ledger, notify, journal, cfg.Trading, cfg.Strategy)

	app.live = agent.NewLiveService(agent.LiveServiceParams{
		Config:     cfg,
		Market:     source,
		Trader:     client,
		Engine:     engine,
		Reconciler: reconciler,
		Registry:   registry,
		Ledger:     ledger,
		Notifier:   notify,
	})

	if cfg.App.HTTPAddr != "" {
		server, err := livehttp.NewServer(livehttp.ServerConfig{
			Addr:   cfg.App.HTTPAddr,
			Status: app.live,
			Trades: trades,
		})
		if err != nil {
			return nil, fmt.Errorf("live http server: %w", err)
		}
		app.liveHTTP = server
	}

	return app, nil
}
