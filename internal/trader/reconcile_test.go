package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tunix/internal/config"
	"tunix/internal/gateway/exchange"
)

func testReconciler(t *testing.T) (*Reconciler, *mockTrader, *recordingNotifier) {
	t.Helper()
	tr := &mockTrader{}
	notify := &recordingNotifier{}
	ledger, err := OpenLedger(t.TempDir())
	require.NoError(t, err)
	r := NewReconciler(tr, ledger, notify, nil,
		config.TradingConfig{Symbol: "ETHUSDT"},
		config.StrategyConfig{ConditionalMaxRetries: 3, ConditionalRetryIntervalMS: 1},
	)
	r.sleep = func(time.Duration) {}
	return r, tr, notify
}

func TestStartupNotifiesMissedClosesOnce(t *testing.T) {
	r, tr, notify := testReconciler(t)
	require.NoError(t, r.ledger.MarkNotified("c-old"))

	orders := []exchange.ClosedOrder{
		{OrderID: "c-old", PositionID: "p-0", Status: exchange.OrderStatusFilled, TriggerType: exchange.TriggerStopLoss, Profit: decimal.NewFromInt(-4)},
		{OrderID: "c-new", PositionID: "p-1", Status: exchange.OrderStatusFilled, TriggerType: exchange.TriggerTakeProfit, Profit: decimal.NewFromInt(9)},
		{OrderID: "c-open", PositionID: "p-2", Status: "CANCELED"},
	}
	tr.On("QueryPositions", mock.Anything).Return(exchange.Positions{}, nil)
	tr.On("RecentClosedOrders", mock.Anything, coldStartHistoryLimit).Return(orders, nil)

	_, err := r.Startup(context.Background())
	require.NoError(t, err)

	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "止盈触发")
	assert.Equal(t, 1, r.ledger.Wins())
	assert.True(t, r.ledger.IsNotified("c-new"))

	// 重放启动对账不重复通知、不重复计数
	_, err = r.Startup(context.Background())
	require.NoError(t, err)
	assert.Len(t, notify.messages, 1)
	assert.Equal(t, 1, r.ledger.Wins())
}

func TestStartupAdoptsUnknownPosition(t *testing.T) {
	r, tr, notify := testReconciler(t)
	positions := exchange.Positions{Long: &exchange.PositionSnapshot{
		PositionID: "p-7", Side: exchange.SideLong, Quantity: decimal.NewFromInt(2),
	}}
	tr.On("QueryPositions", mock.Anything).Return(positions, nil)

	got, err := r.Startup(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got.Long)

	et, ok := r.ledger.EntryType("p-7")
	require.True(t, ok)
	assert.Equal(t, EntryRSI, et)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "接管历史仓位")

	// 有持仓时不扫描历史订单
	tr.AssertNotCalled(t, "RecentClosedOrders", mock.Anything, mock.Anything)
}

func TestDetectExternalCloseClassifiesAndCounts(t *testing.T) {
	r, tr, notify := testReconciler(t)
	prev := &PositionState{Side: exchange.SideShort, EntryType: EntryBreakout, PositionID: "p-3"}
	require.NoError(t, r.ledger.SetEntryType("p-3", EntryBreakout))

	closed := &exchange.ClosedOrder{
		OrderID: "c-3", PositionID: "p-3", Status: exchange.OrderStatusFilled,
		TriggerType: exchange.TriggerStopLoss,
		AvgPrice:    decimal.NewFromInt(2100),
		Profit:      decimal.NewFromFloat(-7.5),
	}
	tr.On("ClosedOrderByPosition", mock.Anything, "p-3").Return(closed, nil)

	st := r.DetectExternalClose(context.Background(), prev, exchange.Positions{})

	assert.Nil(t, st)
	assert.Equal(t, 1, r.ledger.Losses())
	assert.True(t, r.ledger.IsNotified("c-3"))
	_, ok := r.ledger.EntryType("p-3")
	assert.False(t, ok)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "止损触发")
	assert.Contains(t, notify.messages[0], "-7.5")
}

func TestDetectExternalCloseRetriesLaggingHistory(t *testing.T) {
	r, tr, notify := testReconciler(t)
	prev := &PositionState{Side: exchange.SideLong, EntryType: EntryRSI, PositionID: "p-4"}

	closed := &exchange.ClosedOrder{
		OrderID: "c-4", PositionID: "p-4", Status: exchange.OrderStatusFilled,
		TriggerType: exchange.TriggerTakeProfit, Profit: decimal.NewFromInt(3),
	}
	// 前两次历史接口还没同步到
	tr.On("ClosedOrderByPosition", mock.Anything, "p-4").Return(nil, nil).Twice()
	tr.On("ClosedOrderByPosition", mock.Anything, "p-4").Return(closed, nil).Once()

	st := r.DetectExternalClose(context.Background(), prev, exchange.Positions{})

	assert.Nil(t, st)
	assert.Equal(t, 1, r.ledger.Wins())
	require.Len(t, notify.messages, 1)
	tr.AssertExpectations(t)
}

func TestDetectExternalCloseUnknownTrigger(t *testing.T) {
	r, tr, notify := testReconciler(t)
	prev := &PositionState{Side: exchange.SideLong, EntryType: EntryRSI, PositionID: "p-5"}

	tr.On("ClosedOrderByPosition", mock.Anything, "p-5").Return(nil, nil)

	st := r.DetectExternalClose(context.Background(), prev, exchange.Positions{})

	assert.Nil(t, st)
	// 找不到成交记录时不计胜负，只播报一次未知触发
	assert.Equal(t, 0, r.ledger.Wins())
	assert.Equal(t, 0, r.ledger.Losses())
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "未知触发类型")
}

func TestDetectExternalCloseNoopWhenStillOpen(t *testing.T) {
	r, tr, notify := testReconciler(t)
	prev := &PositionState{Side: exchange.SideLong, EntryType: EntryRSI, PositionID: "p-6"}
	positions := exchange.Positions{Long: &exchange.PositionSnapshot{PositionID: "p-6", Side: exchange.SideLong, Quantity: decimal.NewFromInt(1)}}

	st := r.DetectExternalClose(context.Background(), prev, positions)

	assert.Same(t, prev, st)
	assert.Empty(t, notify.messages)
	tr.AssertNotCalled(t, "ClosedOrderByPosition", mock.Anything, mock.Anything)
}
