package visual

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tunix/internal/analysis/indicator"
	"tunix/internal/market"
)

const (
	chartWidthPx  = 1280
	chartHeightPx = 640

	colorBull          = "#2ecc71"
	colorBear          = "#e74c3c"
	colorBreakHigh     = "#f39c12"
	colorBreakLow      = "#3498db"
	colorTextPrimary   = "#e8e8e8"
	colorTextSecondary = "#9aa0a6"
	colorBackground    = "#101418"
)

// StartupChart 描述启动时渲染的行情快照图。
type StartupChart struct {
	Symbol   string
	Interval string
	Candles  []market.Candle
	Snapshot indicator.Snapshot
}

// Render 把启动行情快照渲染为自包含 HTML 写入 path，返回写入的文件路径。
// 仅作为人工巡检用的静态产物，渲染失败不影响交易主流程。
func Render(chart StartupChart, path string) (string, error) {
	if len(chart.Candles) == 0 {
		return "", fmt.Errorf("没有可渲染的 K 线")
	}
	if path == "" {
		return "", fmt.Errorf("图表输出路径为空")
	}

	minPrice, maxPrice := priceBounds(chart.Candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(chart.Symbol), chart.Interval),
			Subtitle:      fmt.Sprintf("RSI %.1f | ATR %.2f | break %.2f / %.2f", chart.Snapshot.RSI, chart.Snapshot.ATR, chart.Snapshot.HighestBreak, chart.Snapshot.LowestBreak),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(chart.Candles)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(chart.Candles))
	kline.Overlap(buildBreakLines(chart))

	var buf bytes.Buffer
	if err := kline.Render(&buf); err != nil {
		return "", fmt.Errorf("渲染启动图表失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("创建图表目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("写入启动图表失败: %w", err)
	}
	return path, nil
}

// buildBreakLines 把突破参考价画成贯穿全图的水平线。
func buildBreakLines(chart StartupChart) *charts.Line {
	line := charts.NewLine()

	n := len(chart.Candles)
	high := make([]opts.LineData, n)
	low := make([]opts.LineData, n)
	for i := 0; i < n; i++ {
		high[i] = opts.LineData{Value: chart.Snapshot.HighestBreak}
		low[i] = opts.LineData{Value: chart.Snapshot.LowestBreak}
	}
	line.SetXAxis(buildXAxis(chart.Candles))
	line.AddSeries("Break High", high,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBreakHigh, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("Break Low", low,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBreakLow, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.CloseTime).UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func priceBounds(candles []market.Candle) (float64, float64) {
	minPrice := math.Inf(1)
	maxPrice := math.Inf(-1)
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}
	return minPrice, maxPrice
}

func round(v float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(v*factor) / factor
}
