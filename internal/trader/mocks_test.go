package trader

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"tunix/internal/gateway/exchange"
)

type mockTrader struct {
	mock.Mock
}

func (m *mockTrader) PlaceMarketOrder(ctx context.Context, side exchange.OrderSide, qty decimal.Decimal, positionID string) (*exchange.OrderResult, error) {
	args := m.Called(ctx, side, qty, positionID)
	var res *exchange.OrderResult
	if v := args.Get(0); v != nil {
		res = v.(*exchange.OrderResult)
	}
	return res, args.Error(1)
}

func (m *mockTrader) QueryPositions(ctx context.Context) (exchange.Positions, error) {
	args := m.Called(ctx)
	return args.Get(0).(exchange.Positions), args.Error(1)
}

func (m *mockTrader) GetBalance(ctx context.Context) (exchange.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(exchange.Balance), args.Error(1)
}

func (m *mockTrader) RecentClosedOrders(ctx context.Context, limit int) ([]exchange.ClosedOrder, error) {
	args := m.Called(ctx, limit)
	var orders []exchange.ClosedOrder
	if v := args.Get(0); v != nil {
		orders = v.([]exchange.ClosedOrder)
	}
	return orders, args.Error(1)
}

func (m *mockTrader) ClosedOrderByPosition(ctx context.Context, positionID string) (*exchange.ClosedOrder, error) {
	args := m.Called(ctx, positionID)
	var order *exchange.ClosedOrder
	if v := args.Get(0); v != nil {
		order = v.(*exchange.ClosedOrder)
	}
	return order, args.Error(1)
}

func (m *mockTrader) ResolvePositionID(ctx context.Context, orderID string) (string, error) {
	args := m.Called(ctx, orderID)
	return args.String(0), args.Error(1)
}

type mockConditional struct {
	mock.Mock
}

func (m *mockConditional) PlaceConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error {
	return m.Called(ctx, positionID, stopPrice, limitPrice).Error(0)
}

func (m *mockConditional) ModifyConditional(ctx context.Context, positionID string, stopPrice, limitPrice *float64) error {
	return m.Called(ctx, positionID, stopPrice, limitPrice).Error(0)
}

func (m *mockConditional) ListPendingConditional(ctx context.Context, positionID string) ([]string, error) {
	args := m.Called(ctx, positionID)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}

func (m *mockConditional) CancelConditional(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

// recordingNotifier 收集每条推送文本，便于断言通知次数与内容。
type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) SendText(text string) error {
	n.messages = append(n.messages, text)
	return nil
}
