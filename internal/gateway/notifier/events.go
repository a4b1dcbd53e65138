package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind 是一条推送的业务类别。
type EventKind string

const (
	EventOpen   EventKind = "open"
	EventClose  EventKind = "close"
	EventError  EventKind = "error"
	EventStatus EventKind = "status"
)

// Event 汇总一次仓位变动或状态播报的全部展示字段。数值缺省
// （零值指针）的行不渲染。
type Event struct {
	Kind      EventKind
	Title     string
	Symbol    string
	Side      string
	EntryType string
	Trigger   string

	Quantity *decimal.Decimal
	Price    *float64
	Stop     *float64
	Target   *float64
	Pnl      *decimal.Decimal
	Margin   *decimal.Decimal

	Details []string

	Wins   int
	Losses int
}

var eventIcons = map[EventKind]string{
	EventOpen:   "🟢",
	EventClose:  "🔴",
	EventError:  "⚠️",
	EventStatus: "ℹ️",
}

// Render 把事件转成统一格式的消息，所有推送都带胜率脚注。
func Render(evt Event) Message {
	lines := make([]string, 0, 8)
	if evt.Symbol != "" {
		lines = append(lines, "标的: "+evt.Symbol)
	}
	if evt.Side != "" {
		lines = append(lines, "方向: "+strings.ToUpper(evt.Side))
	}
	if evt.EntryType != "" {
		lines = append(lines, "入场类型: "+evt.EntryType)
	}
	if evt.Trigger != "" {
		lines = append(lines, "触发: "+evt.Trigger)
	}
	if evt.Quantity != nil {
		lines = append(lines, "数量: "+evt.Quantity.String())
	}
	if evt.Price != nil {
		lines = append(lines, fmt.Sprintf("价格: %.4f", *evt.Price))
	}
	if evt.Stop != nil {
		lines = append(lines, fmt.Sprintf("止损: %.4f", *evt.Stop))
	}
	if evt.Target != nil {
		lines = append(lines, fmt.Sprintf("止盈: %.4f", *evt.Target))
	}
	if evt.Pnl != nil {
		lines = append(lines, "盈亏: "+evt.Pnl.StringFixed(4)+" USDT")
	}
	if evt.Margin != nil {
		lines = append(lines, "保证金: "+evt.Margin.StringFixed(4)+" USDT")
	}

	sections := []Section{{Lines: lines}}
	if len(evt.Details) > 0 {
		sections = append(sections, Section{Title: "详情", Lines: evt.Details})
	}

	return Message{
		Icon:      eventIcons[evt.Kind],
		Title:     evt.Title,
		Sections:  sections,
		Footer:    winRateFooter(evt.Wins, evt.Losses),
		Timestamp: time.Now(),
	}
}

// winRateFooter 渲染胜率脚注；没有任何已结算交易时显示 N/A。
func winRateFooter(wins, losses int) string {
	total := wins + losses
	if total == 0 {
		return "胜率: N/A (0 胜 / 0 负)"
	}
	rate := float64(wins) / float64(total) * 100
	return fmt.Sprintf("胜率: %.1f%% (%d 胜 / %d 负)", rate, wins, losses)
}
