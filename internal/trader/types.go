package trader

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tunix/internal/gateway/exchange"
)

// EntryType 标记仓位由哪类信号开出，决定后续由哪套退出规则管理：
// RSI 仓位有固定止损/止盈并按周期检查退出，Breakout 仓位只有单向
// 收紧的移动止损。
type EntryType string

const (
	EntryRSI      EntryType = "rsi"
	EntryBreakout EntryType = "breakout"
)

// PositionState 是状态机在两轮之间携带的唯一仓位状态。nil 表示空仓。
// 持久化的部分（入场类型）在账本里，价格类字段随进程存亡，重启后
// 由下一轮重新武装。
type PositionState struct {
	Side       exchange.Side
	EntryType  EntryType
	PositionID string
	Quantity   decimal.Decimal
	EntryPrice float64

	// StopArmed 为 false 时表示交易所侧止损价未知（进程刚接管仓位），
	// 下一次管理动作先重建止损而不做单调性比较。
	StopPrice   float64
	TargetPrice float64
	StopArmed   bool

	// LastExitCheck 是上一次做过 RSI 退出判断的 K 线开盘时间，
	// 同一根 K 线内不重复判断。
	LastExitCheck int64
}

// Clone 返回状态的副本。Evaluate 会原地修改传入的状态，已经发布给
// 只读消费者（如状态接口）的快照必须先克隆再交给引擎。
func (s *PositionState) Clone() *PositionState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// TradeRecord 是写入交易流水的一行。
type TradeRecord struct {
	Time       time.Time
	Action     string // open / close
	Side       string
	EntryType  string
	PositionID string
	Quantity   decimal.Decimal
	Price      float64
	Pnl        *decimal.Decimal
	Trigger    string
}

// Journal 接收交易流水。写入失败只记日志，不影响状态机。
type Journal interface {
	Record(ctx context.Context, rec TradeRecord) error
}

// NopJournal 在未配置流水库时使用。
type NopJournal struct{}

func (NopJournal) Record(context.Context, TradeRecord) error { return nil }
