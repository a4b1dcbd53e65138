package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"tunix/internal/market"
)

// historyMargin 在最小样本量之外额外要求的 K 线数，避免指标刚好
// 落在预热区边缘。
const historyMargin = 5

// Params 描述信号计算所需的周期参数。
type Params struct {
	RSILen           int
	ATRLen           int
	BreakoutLookback int
}

// Snapshot 是最新一根 K 线上的全部信号输入。突破价取的是之前
// BreakoutLookback 根 K 线的极值，不含当前这根。
type Snapshot struct {
	OpenTime     int64
	Close        float64
	RSI          float64
	ATR          float64
	HighestBreak float64
	LowestBreak  float64
}

// MinHistory 返回计算一份完整 Snapshot 所需的最少 K 线数。
func MinHistory(p Params) int {
	need := p.RSILen
	if p.ATRLen > need {
		need = p.ATRLen
	}
	if p.BreakoutLookback+1 > need {
		need = p.BreakoutLookback + 1
	}
	return need + historyMargin
}

// Compute 对 K 线序列计算最新信号。历史不足或指标尚未预热完成时
// 返回错误，调用方跳过本轮即可。
func Compute(candles []market.Candle, p Params) (Snapshot, error) {
	if p.RSILen <= 0 || p.ATRLen <= 0 || p.BreakoutLookback <= 0 {
		return Snapshot{}, fmt.Errorf("指标周期参数必须为正: %+v", p)
	}
	if min := MinHistory(p); len(candles) < min {
		return Snapshot{}, fmt.Errorf("K 线历史不足: 需要 %d 根, 实际 %d 根", min, len(candles))
	}
	if !market.Ordered(candles) {
		return Snapshot{}, fmt.Errorf("K 线序列时间戳乱序")
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	last := len(candles) - 1
	rsi := talib.Rsi(closes, p.RSILen)[last]
	atr := talib.Atr(highs, lows, closes, p.ATRLen)[last]
	if math.IsNaN(rsi) || math.IsNaN(atr) {
		return Snapshot{}, fmt.Errorf("指标尚未预热完成 (rsi=%v atr=%v)", rsi, atr)
	}

	return Snapshot{
		OpenTime:     candles[last].OpenTime,
		Close:        closes[last],
		RSI:          rsi,
		ATR:          atr,
		HighestBreak: rollingMax(highs[:last], p.BreakoutLookback),
		LowestBreak:  rollingMin(lows[:last], p.BreakoutLookback),
	}, nil
}

// rollingMax 取序列末尾 window 个元素的最大值。
func rollingMax(series []float64, window int) float64 {
	out := math.Inf(-1)
	for _, v := range series[len(series)-window:] {
		if v > out {
			out = v
		}
	}
	return out
}

func rollingMin(series []float64, window int) float64 {
	out := math.Inf(1)
	for _, v := range series[len(series)-window:] {
		if v < out {
			out = v
		}
	}
	return out
}
