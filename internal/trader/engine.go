package trader

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tunix/internal/analysis/indicator"
	"tunix/internal/config"
	"tunix/internal/gateway/exchange"
	"tunix/internal/gateway/notifier"
	"tunix/internal/logger"
	"tunix/internal/strategy"
)

// priceEpsilon 是条件单重挂的改价阈值，小于它的波动不值得一次
// 取消重挂的往返。
var priceEpsilon = decimal.New(1, -6)

// Engine 是单仓位状态机。每轮拿一份行情快照、一份持仓与余额，
// 推进一步状态并返回新状态；任何下单失败都不产生状态迁移，
// 下一轮按同样条件自然重试。
type Engine struct {
	trader  exchange.Trader
	cond    exchange.ConditionalOrders
	ledger  *Ledger
	notify  notifier.TextNotifier
	journal Journal

	symbol    string
	fraction  float64
	leverage  int
	precision int32

	lookupRetries int
	lookupDelay   time.Duration
	sleep         func(time.Duration)
}

func NewEngine(
	t exchange.Trader,
	cond exchange.ConditionalOrders,
	ledger *Ledger,
	notify notifier.TextNotifier,
	journal Journal,
	trading config.TradingConfig,
	strat config.StrategyConfig,
) *Engine {
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
	return &Engine{
		trader:        t,
		cond:          cond,
		ledger:        ledger,
		notify:        notify,
		journal:       journal,
		symbol:        trading.Symbol,
		fraction:      trading.WalletFraction,
		leverage:      trading.Leverage,
		precision:     trading.QuantityPrecision,
		lookupRetries: retries,
		lookupDelay:   time.Duration(strat.ConditionalRetryIntervalMS) * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// Evaluate 推进一轮状态机。positions 与 balance 由调用方在同一轮
// 查询，保证决策基于一致的交易所视图。
func (e *Engine) Evaluate(
	ctx context.Context,
	state *PositionState,
	snap indicator.Snapshot,
	params strategy.Params,
	positions exchange.Positions,
	balance exchange.Balance,
) *PositionState {
	active := positions.Active()
	if active == nil {
		// 外部平仓由对账模块通知，这里只负责回到空仓后的再入场。
		if state != nil {
			return nil
		}
		return e.tryOpen(ctx, snap, params, balance)
	}

	st := state
	if st == nil {
		st = e.adopt(active)
	}
	// 数量与 positionId 以交易所为准
	st.Quantity = active.Quantity
	if st.PositionID == "" {
		st.PositionID = active.PositionID
	}

	switch st.EntryType {
	case EntryRSI:
		return e.manageRSI(ctx, st, active, snap, params)
	case EntryBreakout:
		return e.manageBreakout(ctx, st, snap, params)
	}
	return st
}

// entrySignal 依优先级判定入场信号，同一轮至多触发一个。
func entrySignal(snap indicator.Snapshot, params strategy.Params) (exchange.Side, exchange.OrderSide, EntryType, bool) {
	switch {
	case snap.RSI < params.RSIBuy:
		return exchange.SideLong, exchange.OpenLong, EntryRSI, true
	case snap.Close > snap.HighestBreak:
		return exchange.SideLong, exchange.OpenLong, EntryBreakout, true
	case snap.RSI > params.RSISell:
		return exchange.SideShort, exchange.OpenShort, EntryRSI, true
	case snap.Close < snap.LowestBreak:
		return exchange.SideShort, exchange.OpenShort, EntryBreakout, true
	}
	return "", "", "", false
}

func (e *Engine) tryOpen(ctx context.Context, snap indicator.Snapshot, params strategy.Params, balance exchange.Balance) *PositionState {
	side, orderSide, et, ok := entrySignal(snap, params)
	if !ok {
		logger.Debugf("无进场条件触发 RSI=%.2f close=%.4f", snap.RSI, snap.Close)
		return nil
	}
	qty := TradeSize(balance.Available, e.fraction, e.leverage, snap.Close, e.precision)
	if qty.Sign() <= 0 {
		logger.Infof("进场条件成立但下单数量为零 side=%s type=%s balance=%s", side, et, balance.Available)
		return nil
	}
	logger.Infof("触发进场 side=%s type=%s RSI=%.2f close=%.4f qty=%s", side, et, snap.RSI, snap.Close, qty)

	res, err := e.trader.PlaceMarketOrder(ctx, orderSide, qty, "")
	if err != nil {
		e.notifyError("开仓失败", err)
		return nil
	}
	positionID := res.PositionID
	if positionID == "" {
		positionID, err = e.trader.ResolvePositionID(ctx, res.OrderID)
		if err != nil {
			// 仓位已存在但暂时无法管理，下一轮由接管路径恢复
			e.notifyError("开仓成功但无法取得 positionId", err)
			return nil
		}
	}
	if err := e.ledger.SetEntryType(positionID, et); err != nil {
		logger.Errorf("记录入场类型失败 positionId=%s: %v", positionID, err)
	}

	st := &PositionState{
		Side:       side,
		EntryType:  et,
		PositionID: positionID,
		Quantity:   qty,
		EntryPrice: snap.Close,
	}
	long := side == exchange.SideLong

	switch et {
	case EntryRSI:
		stop, target := rsiBracket(long, snap.Close, snap.ATR, params)
		s, tgt := stop, target
		if err := e.cond.PlaceConditional(ctx, positionID, &s, &tgt); err != nil {
			e.notifyError("条件单设置失败", err)
		} else {
			st.StopPrice, st.TargetPrice, st.StopArmed = stop, target, true
		}
	case EntryBreakout:
		stop := trailingCandidate(long, snap.Close, snap.ATR, params)
		s := stop
		if err := e.cond.PlaceConditional(ctx, positionID, &s, nil); err != nil {
			e.notifyError("初始移动止损设置失败", err)
		} else {
			st.StopPrice, st.StopArmed = stop, true
		}
	}

	e.record(ctx, TradeRecord{
		Time:       time.Now(),
		Action:     "open",
		Side:       string(side),
		EntryType:  string(et),
		PositionID: positionID,
		Quantity:   qty,
		Price:      snap.Close,
	})
	price := snap.Close
	evt := notifier.Event{
		Kind:      notifier.EventOpen,
		Title:     openTitle(long, et),
		Side:      string(side),
		EntryType: string(et),
		Quantity:  &qty,
		Price:     &price,
	}
	if st.StopArmed {
		stop := st.StopPrice
		evt.Stop = &stop
		if et == EntryRSI {
			target := st.TargetPrice
			evt.Target = &target
		}
	}
	e.send(evt)
	return st
}

// adopt 接管一个没有本地状态的交易所仓位（重启或 positionId 丢失
// 后出现）。入场类型优先取账本记录，缺失时按 RSI 规则管理。
func (e *Engine) adopt(active *exchange.PositionSnapshot) *PositionState {
	et, ok := e.ledger.EntryType(active.PositionID)
	if !ok {
		et = EntryRSI
		logger.Warnf("仓位 %s 入场类型未知，默认按 RSI 规则管理", active.PositionID)
		if err := e.ledger.SetEntryType(active.PositionID, et); err != nil {
			logger.Errorf("记录入场类型失败 positionId=%s: %v", active.PositionID, err)
		}
	}
	return &PositionState{
		Side:       active.Side,
		EntryType:  et,
		PositionID: active.PositionID,
		Quantity:   active.Quantity,
		EntryPrice: active.EntryPrice.InexactFloat64(),
	}
}

func (e *Engine) manageRSI(ctx context.Context, st *PositionState, active *exchange.PositionSnapshot, snap indicator.Snapshot, params strategy.Params) *PositionState {
	long := st.Side == exchange.SideLong

	// 退出判断只在新 K 线上做一次，同一根 K 线内的波动不算数
	if snap.OpenTime != st.LastExitCheck {
		st.LastExitCheck = snap.OpenTime
		exit := (long && snap.RSI > params.ExitRSI) || (!long && snap.RSI < params.ExitRSIShort)
		if exit {
			return e.closeRSI(ctx, st, active, snap)
		}
	}

	// 以固定入场价和最新 ATR 重算止损/止盈，明显偏移才取消重挂
	stop, target := rsiBracket(long, st.EntryPrice, snap.ATR, params)
	if st.StopArmed && !movedBeyond(stop, st.StopPrice) {
		return st
	}
	if ids, err := e.cond.ListPendingConditional(ctx, st.PositionID); err != nil {
		logger.Warnf("查询挂单条件单失败 positionId=%s: %v", st.PositionID, err)
	} else {
		for _, id := range ids {
			if err := e.cond.CancelConditional(ctx, id); err != nil {
				logger.Warnf("取消条件单失败 orderId=%s: %v", id, err)
			}
		}
	}
	s, tgt := stop, target
	if err := e.cond.PlaceConditional(ctx, st.PositionID, &s, &tgt); err != nil {
		e.notifyError("条件单重挂失败", err)
		return st
	}
	logger.Infof("RSI 条件单重挂 positionId=%s 止损=%.4f 止盈=%.4f", st.PositionID, stop, target)
	st.StopPrice, st.TargetPrice, st.StopArmed = stop, target, true
	return st
}

func (e *Engine) closeRSI(ctx context.Context, st *PositionState, active *exchange.PositionSnapshot, snap indicator.Snapshot) *PositionState {
	long := st.Side == exchange.SideLong
	closeSide := exchange.CloseLong
	if !long {
		closeSide = exchange.CloseShort
	}
	margin := active.Margin

	if _, err := e.trader.PlaceMarketOrder(ctx, closeSide, active.Quantity, st.PositionID); err != nil {
		e.notifyError("RSI 平仓失败", err)
		return st
	}

	order := e.lookupClosedOrder(ctx, st.PositionID)
	var pnl *decimal.Decimal
	if order != nil {
		p := order.Profit
		pnl = &p
		if err := e.ledger.RecordResult(order.Profit); err != nil {
			logger.Errorf("记录胜负失败: %v", err)
		}
		if err := e.ledger.MarkNotified(order.OrderID); err != nil {
			logger.Errorf("记录已通知平仓单失败: %v", err)
		}
	}
	if err := e.ledger.RemoveEntryType(st.PositionID); err != nil {
		logger.Errorf("清理入场类型失败: %v", err)
	}

	e.record(ctx, TradeRecord{
		Time:       time.Now(),
		Action:     "close",
		Side:       string(st.Side),
		EntryType:  string(st.EntryType),
		PositionID: st.PositionID,
		Quantity:   active.Quantity,
		Price:      snap.Close,
		Pnl:        pnl,
		Trigger:    "rsi",
	})
	qty := active.Quantity
	price := snap.Close
	e.send(notifier.Event{
		Kind:     notifier.EventClose,
		Title:    closeTitle(long, "RSI"),
		Side:     string(st.Side),
		Trigger:  "rsi",
		Quantity: &qty,
		Price:    &price,
		Pnl:      pnl,
		Margin:   &margin,
	})
	return nil
}

func (e *Engine) manageBreakout(ctx context.Context, st *PositionState, snap indicator.Snapshot, params strategy.Params) *PositionState {
	long := st.Side == exchange.SideLong
	candidate := trailingCandidate(long, snap.Close, snap.ATR, params)

	if st.StopArmed && !tightens(long, candidate, st.StopPrice) {
		return st
	}
	s := candidate
	if err := e.cond.ModifyConditional(ctx, st.PositionID, &s, nil); err != nil {
		e.notifyError("移动止损调整失败", err)
		return st
	}
	logger.Infof("移动止损收紧 positionId=%s %.4f -> %.4f", st.PositionID, st.StopPrice, candidate)
	stop := candidate
	e.send(notifier.Event{
		Kind:  notifier.EventStatus,
		Title: trailingTitle(long),
		Side:  string(st.Side),
		Stop:  &stop,
	})
	st.StopPrice, st.StopArmed = candidate, true
	return st
}

func (e *Engine) lookupClosedOrder(ctx context.Context, positionID string) *exchange.ClosedOrder {
	for i := 0; i < e.lookupRetries; i++ {
		if i > 0 {
			e.sleep(e.lookupDelay)
		}
		order, err := e.trader.ClosedOrderByPosition(ctx, positionID)
		if err != nil {
			logger.Warnf("查询平仓单失败 positionId=%s: %v", positionID, err)
			continue
		}
		if order != nil {
			return order
		}
	}
	logger.Warnf("历史订单中未找到平仓记录 positionId=%s", positionID)
	return nil
}

func (e *Engine) record(ctx context.Context, rec TradeRecord) {
	if err := e.journal.Record(ctx, rec); err != nil {
		logger.Warnf("写入交易流水失败: %v", err)
	}
}

func (e *Engine) send(evt notifier.Event) {
	evt.Symbol = e.symbol
	evt.Wins = e.ledger.Wins()
	evt.Losses = e.ledger.Losses()
	if err := e.notify.SendText(notifier.Render(evt).RenderMarkdown()); err != nil {
		logger.Warnf("通知发送失败: %v", err)
	}
}

func (e *Engine) notifyError(title string, err error) {
	logger.Errorf("%s: %v", title, err)
	e.send(notifier.Event{Kind: notifier.EventError, Title: title, Details: []string{err.Error()}})
}

// rsiBracket 以入场价与当前 ATR 计算固定止损/止盈。
func rsiBracket(long bool, entry, atr float64, p strategy.Params) (stop, target float64) {
	if long {
		return entry - atr*p.StopMult, entry + atr*p.LimitMult
	}
	return entry + atr*p.StopMult, entry - atr*p.LimitMult
}

// trailingCandidate 计算本轮的移动止损候选价。
func trailingCandidate(long bool, close, atr float64, p strategy.Params) float64 {
	if long {
		return close - atr*p.ATRMult
	}
	return close + atr*p.ATRMult
}

// tightens 判断候选止损是否收紧了保护：多单只升不降，空单只降不升。
func tightens(long bool, candidate, current float64) bool {
	c := decimal.NewFromFloat(candidate)
	cur := decimal.NewFromFloat(current)
	if long {
		return c.GreaterThan(cur)
	}
	return c.LessThan(cur)
}

// movedBeyond 判断两个价格的偏移是否超过重挂阈值。
func movedBeyond(a, b float64) bool {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().GreaterThan(priceEpsilon)
}

func openTitle(long bool, et EntryType) string {
	dir := "多单"
	if !long {
		dir = "空单"
	}
	if et == EntryBreakout {
		return "突破" + dir + "开仓成功"
	}
	return "RSI " + dir + "开仓成功"
}

func closeTitle(long bool, signal string) string {
	dir := "多单"
	if !long {
		dir = "空单"
	}
	return signal + " " + dir + "平仓成功"
}

func trailingTitle(long bool) string {
	if long {
		return "突破多单移动止损上调"
	}
	return "突破空单移动止损下调"
}
