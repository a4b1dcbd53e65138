package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunix/internal/trader"
)

func newTestStore(t *testing.T) *TradeStore {
	t.Helper()
	s, err := NewTradeStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTradeStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pnl := decimal.NewFromFloat(-7.5)
	require.NoError(t, s.Record(ctx, trader.TradeRecord{
		Time:       time.UnixMilli(1000),
		Action:     "open",
		Side:       "long",
		EntryType:  "rsi",
		PositionID: "p-1",
		Quantity:   decimal.NewFromFloat(0.25),
		Price:      2000.5,
	}))
	require.NoError(t, s.Record(ctx, trader.TradeRecord{
		Time:       time.UnixMilli(2000),
		Action:     "close",
		Side:       "long",
		PositionID: "p-1",
		Quantity:   decimal.NewFromFloat(0.25),
		Price:      1990,
		Pnl:        &pnl,
		Trigger:    "stop_loss",
	}))

	rows, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// 最新在前
	assert.Equal(t, "close", rows[0].Action)
	assert.Equal(t, "stop_loss", rows[0].Trigger)
	require.NotNil(t, rows[0].Pnl)
	assert.InDelta(t, -7.5, *rows[0].Pnl, 1e-9)
	assert.Equal(t, "open", rows[1].Action)
	assert.Equal(t, "0.25", rows[1].Quantity)
}

func TestListRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, trader.TradeRecord{
			Time:     time.UnixMilli(int64(i)),
			Action:   "open",
			Quantity: decimal.NewFromInt(1),
		}))
	}
	rows, err := s.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
