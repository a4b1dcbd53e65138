package trader

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tunix/internal/analysis/indicator"
	"tunix/internal/config"
	"tunix/internal/gateway/exchange"
	"tunix/internal/strategy"
)

func testEngine(t *testing.T) (*Engine, *mockTrader, *mockConditional, *recordingNotifier) {
	t.Helper()
	tr := &mockTrader{}
	cond := &mockConditional{}
	notify := &recordingNotifier{}
	ledger, err := OpenLedger(t.TempDir())
	require.NoError(t, err)

	e := NewEngine(tr, cond, ledger, notify, nil,
		config.TradingConfig{
			Symbol:            "ETHUSDT",
			Leverage:          20,
			WalletFraction:    0.8,
			QuantityPrecision: 4,
		},
		config.StrategyConfig{ConditionalMaxRetries: 3, ConditionalRetryIntervalMS: 1},
	)
	e.sleep = func(time.Duration) {}
	return e, tr, cond, notify
}

func testParams() strategy.Params {
	return strategy.Params{
		Timeframe:        "4h",
		RSILen:           12,
		ATRLen:           12,
		BreakoutLookback: 3,
		RSIBuy:           47,
		RSISell:          53,
		ExitRSI:          44,
		ExitRSIShort:     51,
		StopMult:         1,
		LimitMult:        4,
		ATRMult:          2,
	}
}

func priceNear(want float64) func(*float64) bool {
	return func(p *float64) bool {
		return p != nil && math.Abs(*p-want) < 1e-9
	}
}

func longSnapshot(openTime int64) exchange.Positions {
	return exchange.Positions{Long: &exchange.PositionSnapshot{
		PositionID: "p-1",
		Side:       exchange.SideLong,
		Quantity:   decimal.NewFromInt(8),
		EntryPrice: decimal.NewFromInt(2000),
		Margin:     decimal.NewFromInt(800),
	}}
}

func TestEntrySignalPriority(t *testing.T) {
	params := testParams()
	base := indicator.Snapshot{Close: 2000, HighestBreak: 2100, LowestBreak: 1900}

	t.Run("rsi long wins over everything", func(t *testing.T) {
		s := base
		s.RSI = 40
		s.HighestBreak = 1990 // 同时满足突破条件
		_, orderSide, et, ok := entrySignal(s, params)
		require.True(t, ok)
		assert.Equal(t, exchange.OpenLong, orderSide)
		assert.Equal(t, EntryRSI, et)
	})

	t.Run("breakout long when rsi in band", func(t *testing.T) {
		s := base
		s.RSI = 50
		s.HighestBreak = 1990
		_, orderSide, et, ok := entrySignal(s, params)
		require.True(t, ok)
		assert.Equal(t, exchange.OpenLong, orderSide)
		assert.Equal(t, EntryBreakout, et)
	})

	t.Run("rsi short", func(t *testing.T) {
		s := base
		s.RSI = 60
		_, orderSide, et, ok := entrySignal(s, params)
		require.True(t, ok)
		assert.Equal(t, exchange.OpenShort, orderSide)
		assert.Equal(t, EntryRSI, et)
	})

	t.Run("breakout short", func(t *testing.T) {
		s := base
		s.RSI = 50
		s.LowestBreak = 2050
		_, orderSide, et, ok := entrySignal(s, params)
		require.True(t, ok)
		assert.Equal(t, exchange.OpenShort, orderSide)
		assert.Equal(t, EntryBreakout, et)
	})

	t.Run("no signal", func(t *testing.T) {
		s := base
		s.RSI = 50
		_, _, _, ok := entrySignal(s, params)
		assert.False(t, ok)
	})
}

func TestOpenLongOnRSISignal(t *testing.T) {
	e, tr, cond, notify := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	balance := exchange.Balance{Available: decimal.NewFromInt(1000)}

	// 1000 * 0.8 * 20 / 2000 = 8
	tr.On("PlaceMarketOrder", mock.Anything, exchange.OpenLong,
		mock.MatchedBy(func(q decimal.Decimal) bool { return q.Equal(decimal.NewFromInt(8)) }), "").
		Return(&exchange.OrderResult{OrderID: "o-1", PositionID: "p-1"}, nil)
	cond.On("PlaceConditional", mock.Anything, "p-1",
		mock.MatchedBy(priceNear(1990)), mock.MatchedBy(priceNear(2040))).Return(nil)

	st := e.Evaluate(context.Background(), nil, snap, testParams(), exchange.Positions{}, balance)

	require.NotNil(t, st)
	assert.Equal(t, exchange.SideLong, st.Side)
	assert.Equal(t, EntryRSI, st.EntryType)
	assert.Equal(t, "p-1", st.PositionID)
	assert.InDelta(t, 1990.0, st.StopPrice, 1e-9)
	assert.InDelta(t, 2040.0, st.TargetPrice, 1e-9)
	assert.True(t, st.StopArmed)

	et, ok := e.ledger.EntryType("p-1")
	require.True(t, ok)
	assert.Equal(t, EntryRSI, et)

	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "开仓成功")
	tr.AssertExpectations(t)
	cond.AssertExpectations(t)
}

func TestOpenSkipsOnZeroQuantity(t *testing.T) {
	e, tr, _, notify := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}

	st := e.Evaluate(context.Background(), nil, snap, testParams(), exchange.Positions{}, exchange.Balance{})

	assert.Nil(t, st)
	assert.Empty(t, notify.messages)
	tr.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenFailureDoesNotTransition(t *testing.T) {
	e, tr, _, notify := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	balance := exchange.Balance{Available: decimal.NewFromInt(1000)}

	tr.On("PlaceMarketOrder", mock.Anything, exchange.OpenLong, mock.Anything, "").
		Return(nil, assert.AnError)

	st := e.Evaluate(context.Background(), nil, snap, testParams(), exchange.Positions{}, balance)

	assert.Nil(t, st)
	_, ok := e.ledger.EntryType("p-1")
	assert.False(t, ok)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "开仓失败")
}

func TestNoSecondPositionWhileOpen(t *testing.T) {
	e, tr, _, _ := testEngine(t)
	// RSI 满足做多条件，但已有持仓，不得再开
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	state := &PositionState{
		Side:          exchange.SideLong,
		EntryType:     EntryRSI,
		PositionID:    "p-1",
		EntryPrice:    2000,
		StopPrice:     1990,
		TargetPrice:   2040,
		StopArmed:     true,
		LastExitCheck: 1000,
	}

	st := e.Evaluate(context.Background(), state, snap, testParams(), longSnapshot(1000), exchange.Balance{Available: decimal.NewFromInt(1000)})

	require.NotNil(t, st)
	tr.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, exchange.OpenLong, mock.Anything, mock.Anything)
}

func TestRSIExitGatePerCandle(t *testing.T) {
	e, tr, _, _ := testEngine(t)
	// RSI 50 > ExitRSI 44，但该 K 线已检查过，不得重复触发
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 50, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	state := &PositionState{
		Side:          exchange.SideLong,
		EntryType:     EntryRSI,
		PositionID:    "p-1",
		EntryPrice:    2000,
		StopPrice:     1990,
		TargetPrice:   2040,
		StopArmed:     true,
		LastExitCheck: 1000,
	}

	st := e.Evaluate(context.Background(), state, snap, testParams(), longSnapshot(1000), exchange.Balance{})

	require.NotNil(t, st)
	tr.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRSIExitOnNewCandle(t *testing.T) {
	e, tr, _, notify := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 2000, Close: 2010, RSI: 50, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	state := &PositionState{
		Side:          exchange.SideLong,
		EntryType:     EntryRSI,
		PositionID:    "p-1",
		EntryPrice:    2000,
		StopPrice:     1990,
		TargetPrice:   2040,
		StopArmed:     true,
		LastExitCheck: 1000,
	}
	require.NoError(t, e.ledger.SetEntryType("p-1", EntryRSI))

	tr.On("PlaceMarketOrder", mock.Anything, exchange.CloseLong,
		mock.MatchedBy(func(q decimal.Decimal) bool { return q.Equal(decimal.NewFromInt(8)) }), "p-1").
		Return(&exchange.OrderResult{OrderID: "o-9"}, nil)
	tr.On("ClosedOrderByPosition", mock.Anything, "p-1").
		Return(&exchange.ClosedOrder{OrderID: "c-1", PositionID: "p-1", Status: exchange.OrderStatusFilled, Profit: decimal.NewFromInt(15)}, nil)

	st := e.Evaluate(context.Background(), state, snap, testParams(), longSnapshot(2000), exchange.Balance{})

	assert.Nil(t, st)
	assert.Equal(t, 1, e.ledger.Wins())
	assert.Equal(t, 0, e.ledger.Losses())
	assert.True(t, e.ledger.IsNotified("c-1"))
	_, ok := e.ledger.EntryType("p-1")
	assert.False(t, ok)

	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "平仓成功")
	assert.Contains(t, notify.messages[0], "保证金")
	tr.AssertExpectations(t)
}

func TestBreakoutTrailingMonotonic(t *testing.T) {
	params := testParams() // ATRMult = 2

	t.Run("loosening candidate is not sent", func(t *testing.T) {
		e, _, cond, _ := testEngine(t)
		// close 102, atr 2 -> candidate 98 < 100
		snap := indicator.Snapshot{OpenTime: 1000, Close: 102, RSI: 50, ATR: 2, HighestBreak: 110, LowestBreak: 90}
		state := &PositionState{
			Side: exchange.SideLong, EntryType: EntryBreakout,
			PositionID: "p-1", EntryPrice: 100, StopPrice: 100, StopArmed: true,
		}

		st := e.Evaluate(context.Background(), state, snap, params, longSnapshot(1000), exchange.Balance{})

		require.NotNil(t, st)
		assert.InDelta(t, 100.0, st.StopPrice, 1e-9)
		cond.AssertNotCalled(t, "ModifyConditional", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tightening candidate is sent and stored", func(t *testing.T) {
		e, _, cond, notify := testEngine(t)
		// close 107, atr 2 -> candidate 103 > 100
		snap := indicator.Snapshot{OpenTime: 1000, Close: 107, RSI: 50, ATR: 2, HighestBreak: 110, LowestBreak: 90}
		state := &PositionState{
			Side: exchange.SideLong, EntryType: EntryBreakout,
			PositionID: "p-1", EntryPrice: 100, StopPrice: 100, StopArmed: true,
		}
		cond.On("ModifyConditional", mock.Anything, "p-1", mock.MatchedBy(priceNear(103)), (*float64)(nil)).Return(nil)

		st := e.Evaluate(context.Background(), state, snap, params, longSnapshot(1000), exchange.Balance{})

		require.NotNil(t, st)
		assert.InDelta(t, 103.0, st.StopPrice, 1e-9)
		require.Len(t, notify.messages, 1)
		assert.Contains(t, notify.messages[0], "移动止损")
		cond.AssertExpectations(t)
	})

	t.Run("short stop only moves down", func(t *testing.T) {
		e, _, cond, _ := testEngine(t)
		// close 99, atr 0.5 -> candidate 100，与当前持平，不收紧
		snap := indicator.Snapshot{OpenTime: 1000, Close: 99, RSI: 50, ATR: 0.5, HighestBreak: 110, LowestBreak: 90}
		state := &PositionState{
			Side: exchange.SideShort, EntryType: EntryBreakout,
			PositionID: "p-2", EntryPrice: 101, StopPrice: 100, StopArmed: true,
		}
		positions := exchange.Positions{Short: &exchange.PositionSnapshot{
			PositionID: "p-2", Side: exchange.SideShort, Quantity: decimal.NewFromInt(4),
		}}

		st := e.Evaluate(context.Background(), state, snap, params, positions, exchange.Balance{})

		require.NotNil(t, st)
		cond.AssertNotCalled(t, "ModifyConditional", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdoptUnknownPositionDefaultsToRSI(t *testing.T) {
	e, _, cond, _ := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 42, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}

	// 账本没有 p-1 的记录：按 RSI 接管并重建条件单
	cond.On("ListPendingConditional", mock.Anything, "p-1").Return([]string{"t-1"}, nil)
	cond.On("CancelConditional", mock.Anything, "t-1").Return(nil)
	cond.On("PlaceConditional", mock.Anything, "p-1", mock.Anything, mock.Anything).Return(nil)

	st := e.Evaluate(context.Background(), nil, snap, testParams(), longSnapshot(1000), exchange.Balance{})

	require.NotNil(t, st)
	assert.Equal(t, EntryRSI, st.EntryType)
	assert.True(t, st.StopArmed)
	et, ok := e.ledger.EntryType("p-1")
	require.True(t, ok)
	assert.Equal(t, EntryRSI, et)
	cond.AssertExpectations(t)
}

func TestRepriceOnlyBeyondEpsilon(t *testing.T) {
	e, _, cond, _ := testEngine(t)
	// 入场价 2000、ATR 10：目标止损 1990 与当前完全一致，不重挂
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2005, RSI: 50, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	state := &PositionState{
		Side: exchange.SideLong, EntryType: EntryRSI, PositionID: "p-1",
		EntryPrice: 2000, StopPrice: 1990, TargetPrice: 2040,
		StopArmed: true, LastExitCheck: 1000,
	}

	e.Evaluate(context.Background(), state, snap, testParams(), longSnapshot(1000), exchange.Balance{})
	cond.AssertNotCalled(t, "PlaceConditional", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// ATR 变化后重挂：先取消旧单再挂新单
	snap.ATR = 12
	cond.On("ListPendingConditional", mock.Anything, "p-1").Return([]string{"t-1", "t-2"}, nil)
	cond.On("CancelConditional", mock.Anything, "t-1").Return(nil)
	cond.On("CancelConditional", mock.Anything, "t-2").Return(nil)
	cond.On("PlaceConditional", mock.Anything, "p-1",
		mock.MatchedBy(priceNear(1988)), mock.MatchedBy(priceNear(2048))).Return(nil)

	st := e.Evaluate(context.Background(), state, snap, testParams(), longSnapshot(1000), exchange.Balance{})

	require.NotNil(t, st)
	assert.InDelta(t, 1988.0, st.StopPrice, 1e-9)
	assert.InDelta(t, 2048.0, st.TargetPrice, 1e-9)
	cond.AssertExpectations(t)
}

func TestExternalCloseReturnsFlatWithoutReopen(t *testing.T) {
	e, tr, _, _ := testEngine(t)
	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	state := &PositionState{Side: exchange.SideLong, EntryType: EntryRSI, PositionID: "p-1"}

	// 持仓消失：本轮只回到空仓，不立即再入场
	st := e.Evaluate(context.Background(), state, snap, testParams(), exchange.Positions{}, exchange.Balance{Available: decimal.NewFromInt(1000)})

	assert.Nil(t, st)
	tr.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWinRateAppearsInNotifications(t *testing.T) {
	e, tr, cond, notify := testEngine(t)
	require.NoError(t, e.ledger.RecordResult(decimal.NewFromInt(5)))
	require.NoError(t, e.ledger.RecordResult(decimal.NewFromInt(-5)))

	snap := indicator.Snapshot{OpenTime: 1000, Close: 2000, RSI: 40, ATR: 10, HighestBreak: 2100, LowestBreak: 1900}
	tr.On("PlaceMarketOrder", mock.Anything, exchange.OpenLong, mock.Anything, "").
		Return(&exchange.OrderResult{OrderID: "o-1", PositionID: "p-1"}, nil)
	cond.On("PlaceConditional", mock.Anything, "p-1", mock.Anything, mock.Anything).Return(nil)

	e.Evaluate(context.Background(), nil, snap, testParams(), exchange.Positions{}, exchange.Balance{Available: decimal.NewFromInt(1000)})

	require.Len(t, notify.messages, 1)
	assert.True(t, strings.Contains(notify.messages[0], "胜率: 50.0%"))
}
