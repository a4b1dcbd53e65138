package trader

import (
	"context"
	"fmt"
	"time"

	"tunix/internal/config"
	"tunix/internal/gateway/exchange"
	"tunix/internal/gateway/notifier"
	"tunix/internal/logger"
)

const coldStartHistoryLimit = 10

// Reconciler 负责把本地账本和交易所的真实状态对齐：冷启动补发
// 错过的平仓通知，运行中捕捉条件单在服务端成交导致的仓位消失。
// 对同一份账本与交易所状态重放是幂等的。
type Reconciler struct {
	trader  exchange.Trader
	ledger  *Ledger
	notify  notifier.TextNotifier
	journal Journal

	symbol  string
	retries int
	delay   time.Duration
	sleep   func(time.Duration)
}

func NewReconciler(t exchange.Trader, ledger *Ledger, notify notifier.TextNotifier, journal Journal, trading config.TradingConfig, strat config.StrategyConfig) *Reconciler {
	if notify == nil {
		notify = notifier.Noop{}
	}
	if journal == nil {
		journal = NopJournal{}
	}
	retries := strat.ConditionalMaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &Reconciler{
		trader:  t,
		ledger:  ledger,
		notify:  notify,
		journal: journal,
		symbol:  trading.Symbol,
		retries: retries,
		delay:   time.Duration(strat.ConditionalRetryIntervalMS) * time.Millisecond,
		sleep:   time.Sleep,
	}
}

// Startup 在进程启动时跑一次。返回交易所当前持仓，供主循环建立
// 初始状态。
func (r *Reconciler) Startup(ctx context.Context) (exchange.Positions, error) {
	positions, err := r.trader.QueryPositions(ctx)
	if err != nil {
		return exchange.Positions{}, fmt.Errorf("启动对账查询持仓失败: %w", err)
	}

	if active := positions.Active(); active != nil {
		if _, ok := r.ledger.EntryType(active.PositionID); !ok {
			// 入场类型失传，按 RSI 规则接管并明确告知
			logger.Warnf("启动时发现入场类型未知的仓位 %s，默认按 RSI 规则管理", active.PositionID)
			if err := r.ledger.SetEntryType(active.PositionID, EntryRSI); err != nil {
				logger.Errorf("记录入场类型失败 positionId=%s: %v", active.PositionID, err)
			}
			r.send(notifier.Event{
				Kind:    notifier.EventStatus,
				Title:   "接管历史仓位",
				Side:    string(active.Side),
				Details: []string{"入场类型记录缺失，已默认按 RSI 规则管理", "positionId=" + active.PositionID},
			})
		}
		return positions, nil
	}

	// 空仓时补发停机期间错过的平仓通知
	orders, err := r.trader.RecentClosedOrders(ctx, coldStartHistoryLimit)
	if err != nil {
		logger.Warnf("启动对账查询历史订单失败: %v", err)
		return positions, nil
	}
	for i := range orders {
		order := orders[i]
		if order.Status != exchange.OrderStatusFilled || r.ledger.IsNotified(order.OrderID) {
			continue
		}
		r.settleClose(ctx, &order, order.PositionID, "")
	}
	return positions, nil
}

// DetectExternalClose 对比上一轮与本轮持仓。上一轮有仓、本轮没有且
// 本地没有走平仓路径，说明条件单在服务端成交，补一条平仓通知并
// 返回 nil 状态。
func (r *Reconciler) DetectExternalClose(ctx context.Context, prev *PositionState, current exchange.Positions) *PositionState {
	if prev == nil || current.Active() != nil {
		return prev
	}
	logger.Infof("仓位 %s 在交易所侧消失，触发平仓对账", prev.PositionID)

	var order *exchange.ClosedOrder
	for i := 0; i < r.retries; i++ {
		if i > 0 {
			r.sleep(r.delay)
		}
		found, err := r.trader.ClosedOrderByPosition(ctx, prev.PositionID)
		if err != nil {
			logger.Warnf("查询平仓单失败 positionId=%s: %v", prev.PositionID, err)
			continue
		}
		if found != nil {
			order = found
			break
		}
	}

	if order == nil {
		// 历史接口滞后到超过重试窗口，只能按未知触发类型播报
		r.send(notifier.Event{
			Kind:    notifier.EventClose,
			Title:   "仓位已自动平仓",
			Side:    string(prev.Side),
			Trigger: "unknown",
			Details: []string{"positionId=" + prev.PositionID, "历史订单暂未同步，盈亏未知"},
		})
	} else if !r.ledger.IsNotified(order.OrderID) {
		r.settleClose(ctx, order, prev.PositionID, string(prev.Side))
	}

	if err := r.ledger.RemoveEntryType(prev.PositionID); err != nil {
		logger.Errorf("清理入场类型失败: %v", err)
	}
	return nil
}

// settleClose 对一条已成交平仓单记账、写流水并推送，保证只发一次。
func (r *Reconciler) settleClose(ctx context.Context, order *exchange.ClosedOrder, positionID, side string) {
	if err := r.ledger.RecordResult(order.Profit); err != nil {
		logger.Errorf("记录胜负失败: %v", err)
	}
	if err := r.ledger.MarkNotified(order.OrderID); err != nil {
		logger.Errorf("记录已通知平仓单失败: %v", err)
	}

	price := order.AvgPrice.InexactFloat64()
	pnl := order.Profit
	trigger := triggerLabel(order.TriggerType)
	rec := TradeRecord{
		Time:       time.Now(),
		Action:     "close",
		Side:       side,
		PositionID: positionID,
		Price:      price,
		Pnl:        &pnl,
		Trigger:    trigger,
	}
	if err := r.journal.Record(ctx, rec); err != nil {
		logger.Warnf("写入交易流水失败: %v", err)
	}
	r.send(notifier.Event{
		Kind:    notifier.EventClose,
		Title:   closeEventTitle(trigger),
		Side:    side,
		Trigger: trigger,
		Price:   &price,
		Pnl:     &pnl,
	})
}

func (r *Reconciler) send(evt notifier.Event) {
	evt.Symbol = r.symbol
	evt.Wins = r.ledger.Wins()
	evt.Losses = r.ledger.Losses()
	if err := r.notify.SendText(notifier.Render(evt).RenderMarkdown()); err != nil {
		logger.Warnf("通知发送失败: %v", err)
	}
}

func triggerLabel(raw string) string {
	switch raw {
	case exchange.TriggerTakeProfit:
		return "take_profit"
	case exchange.TriggerStopLoss:
		return "stop_loss"
	default:
		return "unknown"
	}
}

func closeEventTitle(trigger string) string {
	switch trigger {
	case "take_profit":
		return "止盈触发自动平仓"
	case "stop_loss":
		return "止损触发自动平仓"
	default:
		return "自动平仓（未知触发类型）"
	}
}
