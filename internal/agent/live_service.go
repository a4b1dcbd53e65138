package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tunix/internal/analysis/indicator"
	"tunix/internal/analysis/visual"
	"tunix/internal/config"
	"tunix/internal/gateway/exchange"
	"tunix/internal/gateway/notifier"
	"tunix/internal/logger"
	"tunix/internal/market"
	"tunix/internal/strategy"
	"tunix/internal/trader"
	livehttp "tunix/internal/transport/http/live"
)

const defaultLoopInterval = 60 * time.Second

// LiveServiceParams 描述实盘循环的全部依赖。
type LiveServiceParams struct {
	Config     *config.Config
	Market     market.Source
	Trader     exchange.Trader
	Engine     *trader.Engine
	Reconciler *trader.Reconciler
	Registry   *strategy.Registry
	Ledger     *trader.Ledger
	Notifier   notifier.TextNotifier
}

// LiveService 驱动「拉行情 → 对账 → 评估」的单持仓轮询循环。
type LiveService struct {
	cfg        *config.Config
	market     market.Source
	trader     exchange.Trader
	engine     *trader.Engine
	reconciler *trader.Reconciler
	registry   *strategy.Registry
	ledger     *trader.Ledger
	notify     notifier.TextNotifier

	mu        sync.RWMutex
	state     *trader.PositionState
	updatedAt time.Time
}

func NewLiveService(p LiveServiceParams) *LiveService {
	notify := p.Notifier
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &LiveService{
		cfg:        p.Config,
		market:     p.Market,
		trader:     p.Trader,
		engine:     p.Engine,
		reconciler: p.Reconciler,
		registry:   p.Registry,
		ledger:     p.Ledger,
		notify:     notify,
	}
}

// Status 实现 HTTP 状态端点的快照查询。
func (s *LiveService) Status() livehttp.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := livehttp.Status{
		Symbol:        s.cfg.Trading.Symbol,
		Timeframe:     s.registry.Params().Timeframe,
		Wins:          s.ledger.Wins(),
		Losses:        s.ledger.Losses(),
		ParamsVersion: s.registry.Version(),
		UpdatedAt:     s.updatedAt,
	}
	if s.state != nil {
		st.Position = &livehttp.PositionStatus{
			Side:        string(s.state.Side),
			EntryType:   string(s.state.EntryType),
			PositionID:  s.state.PositionID,
			Quantity:    s.state.Quantity.String(),
			EntryPrice:  s.state.EntryPrice,
			StopPrice:   s.state.StopPrice,
			TargetPrice: s.state.TargetPrice,
		}
	}
	return st
}

// Run 执行启动对账与主循环，直到 ctx 取消或遇到不可恢复错误。
func (s *LiveService) Run(ctx context.Context) error {
	if _, err := s.reconciler.Startup(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	s.sendStartupSummary(ctx)

	interval := defaultLoopInterval
	if s.cfg.Trading.LoopIntervalSeconds > 0 {
		interval = time.Duration(s.cfg.Trading.LoopIntervalSeconds) * time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if err := s.runCycle(ctx); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}

// runCycle 执行单轮评估。行情或交易所查询失败时跳过本轮，
// 余额不可用则返回错误终止进程。
func (s *LiveService) runCycle(ctx context.Context) error {
	params := s.registry.Params()
	snap, _, err := s.fetchSnapshot(ctx, params)
	if err != nil {
		logger.Warnf("本轮行情/指标不可用，跳过: %v", err)
		return nil
	}

	positions, err := s.trader.QueryPositions(ctx)
	if err != nil {
		logger.Warnf("查询持仓失败，跳过本轮: %v", err)
		return nil
	}

	// 引擎会原地修改状态，这里交给它一份克隆，已发布给 Status 的
	// 快照保持不可变
	s.mu.RLock()
	prev := s.state.Clone()
	s.mu.RUnlock()

	next := s.reconciler.DetectExternalClose(ctx, prev, positions)

	balance, err := s.trader.GetBalance(ctx)
	if err != nil {
		s.sendFatal(fmt.Sprintf("查询余额失败: %v", err))
		return fmt.Errorf("query balance: %w", err)
	}
	if positions.Active() == nil && !balance.Available.IsPositive() {
		s.sendFatal("可用余额为零，停止交易")
		return fmt.Errorf("available balance is zero")
	}

	next = s.engine.Evaluate(ctx, next, snap, params, positions, balance)

	s.mu.Lock()
	s.state = next
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// fetchSnapshot 拉取历史并计算指标快照，序列包含进行中的蜡烛。
func (s *LiveService) fetchSnapshot(ctx context.Context, params strategy.Params) (indicator.Snapshot, []market.Candle, error) {
	ip := indicator.Params{
		RSILen:           params.RSILen,
		ATRLen:           params.ATRLen,
		BreakoutLookback: params.BreakoutLookback,
	}
	limit := s.cfg.Market.CandleLimit
	if min := indicator.MinHistory(ip); limit < min {
		limit = min
	}
	candles, err := s.market.FetchHistory(ctx, s.cfg.Trading.Pair, params.Timeframe, limit)
	if err != nil {
		return indicator.Snapshot{}, nil, fmt.Errorf("fetch history: %w", err)
	}
	snap, err := indicator.Compute(candles, ip)
	if err != nil {
		return indicator.Snapshot{}, nil, fmt.Errorf("compute indicators: %w", err)
	}
	return snap, candles, nil
}

// sendStartupSummary 推送启动摘要：参数、余额、指标与行情图表。
func (s *LiveService) sendStartupSummary(ctx context.Context) {
	params := s.registry.Params()
	evt := notifier.Event{
		Kind:   notifier.EventStatus,
		Title:  "策略已启动",
		Symbol: s.cfg.Trading.Symbol,
		Wins:   s.ledger.Wins(),
		Losses: s.ledger.Losses(),
		Details: []string{
			fmt.Sprintf("周期: %s", params.Timeframe),
			fmt.Sprintf("RSI: %d (买 <%.1f / 卖 >%.1f)", params.RSILen, params.RSIBuy, params.RSISell),
			fmt.Sprintf("ATR: %d ×%.2f", params.ATRLen, params.ATRMult),
			fmt.Sprintf("突破回看: %d", params.BreakoutLookback),
		},
	}
	if balance, err := s.trader.GetBalance(ctx); err == nil {
		evt.Details = append(evt.Details, fmt.Sprintf("可用余额: %s", balance.Available.StringFixed(2)))
	}
	if snap, candles, err := s.fetchSnapshot(ctx, params); err == nil {
		evt.Details = append(evt.Details,
			fmt.Sprintf("RSI 当前: %.2f", snap.RSI),
			fmt.Sprintf("ATR 当前: %.4f", snap.ATR),
		)
		if s.cfg.Store.ChartPath != "" {
			chart := visual.StartupChart{
				Symbol:   s.cfg.Trading.Symbol,
				Interval: params.Timeframe,
				Candles:  candles,
				Snapshot: snap,
			}
			if path, err := visual.Render(chart, s.cfg.Store.ChartPath); err != nil {
				logger.Warnf("启动图表渲染失败: %v", err)
			} else {
				evt.Details = append(evt.Details, fmt.Sprintf("行情图表: %s", path))
			}
		}
	} else {
		logger.Warnf("启动摘要缺少指标数据: %v", err)
	}
	msg := notifier.Render(evt)
	if err := s.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("启动摘要推送失败: %v", err)
	}
}

func (s *LiveService) sendFatal(reason string) {
	evt := notifier.Event{
		Kind:    notifier.EventError,
		Title:   "策略终止",
		Symbol:  s.cfg.Trading.Symbol,
		Details: []string{reason},
		Wins:    s.ledger.Wins(),
		Losses:  s.ledger.Losses(),
	}
	msg := notifier.Render(evt)
	if err := s.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("终止通知推送失败: %v", err)
	}
}
