package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunix/internal/market"
)

func makeCandles(n int, price func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := price(i)
		out[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    100,
		}
	}
	return out
}

func TestComputeSnapshot(t *testing.T) {
	params := Params{RSILen: 12, ATRLen: 12, BreakoutLookback: 3}
	candles := makeCandles(60, func(i int) float64 { return 2000 + float64(i)*2 })

	snap, err := Compute(candles, params)
	require.NoError(t, err)

	last := candles[len(candles)-1]
	assert.Equal(t, last.OpenTime, snap.OpenTime)
	assert.Equal(t, last.Close, snap.Close)
	// 单边上涨序列的 RSI 接近 100
	assert.Greater(t, snap.RSI, 90.0)
	assert.Greater(t, snap.ATR, 0.0)
	// 突破价不含当前 K 线：前 3 根的最高价
	assert.Equal(t, candles[len(candles)-2].High, snap.HighestBreak)
	assert.Equal(t, candles[len(candles)-4].Low, snap.LowestBreak)
	assert.Less(t, snap.HighestBreak, last.High)
}

func TestComputeRejectsShortHistory(t *testing.T) {
	params := Params{RSILen: 12, ATRLen: 12, BreakoutLookback: 3}
	candles := makeCandles(MinHistory(params)-1, func(i int) float64 { return 100 })
	_, err := Compute(candles, params)
	assert.Error(t, err)
}

func TestComputeRejectsUnorderedCandles(t *testing.T) {
	params := Params{RSILen: 12, ATRLen: 12, BreakoutLookback: 3}
	candles := makeCandles(60, func(i int) float64 { return 100 + float64(i) })
	candles[30].OpenTime = candles[29].OpenTime
	_, err := Compute(candles, params)
	assert.Error(t, err)
}

func TestComputeRejectsBadParams(t *testing.T) {
	candles := makeCandles(60, func(i int) float64 { return 100 })
	_, err := Compute(candles, Params{RSILen: 0, ATRLen: 12, BreakoutLookback: 3})
	assert.Error(t, err)
}

func TestMinHistoryTakesWidestWindow(t *testing.T) {
	assert.Equal(t, 12+historyMargin, MinHistory(Params{RSILen: 12, ATRLen: 5, BreakoutLookback: 3}))
	assert.Equal(t, 21+historyMargin, MinHistory(Params{RSILen: 5, ATRLen: 5, BreakoutLookback: 20}))
}
