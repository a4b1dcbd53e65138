package strategy

import (
	"fmt"

	"tunix/internal/config"
)

// Params 是一轮决策用到的全部策略参数。参数可能在运行中被热更新，
// 每轮循环取一次快照，循环内保持一致。
type Params struct {
	Timeframe        string  `yaml:"timeframe" json:"timeframe"`
	RSILen           int     `yaml:"rsi_len" json:"rsi_len"`
	ATRLen           int     `yaml:"atr_len" json:"atr_len"`
	BreakoutLookback int     `yaml:"breakout_lookback" json:"breakout_lookback"`
	RSIBuy           float64 `yaml:"rsi_buy" json:"rsi_buy"`
	RSISell          float64 `yaml:"rsi_sell" json:"rsi_sell"`
	ExitRSI          float64 `yaml:"exit_rsi" json:"exit_rsi"`
	ExitRSIShort     float64 `yaml:"exit_rsi_short" json:"exit_rsi_short"`
	StopMult         float64 `yaml:"stop_mult" json:"stop_mult"`
	LimitMult        float64 `yaml:"limit_mult" json:"limit_mult"`
	ATRMult          float64 `yaml:"atr_mult" json:"atr_mult"`
}

// FromConfig 把主配置里的内联参数转成 Params，作为没有参数文件或
// 文件缺字段时的兜底值。
func FromConfig(cfg config.StrategyConfig) Params {
	return Params{
		Timeframe:        cfg.Timeframe,
		RSILen:           cfg.RSILen,
		ATRLen:           cfg.ATRLen,
		BreakoutLookback: cfg.BreakoutLookback,
		RSIBuy:           cfg.RSIBuy,
		RSISell:          cfg.RSISell,
		ExitRSI:          cfg.ExitRSI,
		ExitRSIShort:     cfg.ExitRSIShort,
		StopMult:         cfg.StopMult,
		LimitMult:        cfg.LimitMult,
		ATRMult:          cfg.ATRMult,
	}
}

// Validate 做跨字段检查，schema 只能覆盖单字段类型与下限。
func (p Params) Validate() error {
	if p.RSILen <= 0 || p.ATRLen <= 0 || p.BreakoutLookback <= 0 {
		return fmt.Errorf("指标周期必须为正: rsi_len=%d atr_len=%d breakout_lookback=%d", p.RSILen, p.ATRLen, p.BreakoutLookback)
	}
	if p.RSIBuy >= p.RSISell {
		return fmt.Errorf("rsi_buy(%.1f) 必须小于 rsi_sell(%.1f)", p.RSIBuy, p.RSISell)
	}
	if p.StopMult <= 0 || p.LimitMult <= 0 || p.ATRMult <= 0 {
		return fmt.Errorf("ATR 乘数必须为正: stop=%.2f limit=%.2f atr=%.2f", p.StopMult, p.LimitMult, p.ATRMult)
	}
	return nil
}

// merge 用文件值覆盖兜底值，零值字段视为「文件未提供」。
func merge(base, override Params) Params {
	out := base
	if override.Timeframe != "" {
		out.Timeframe = override.Timeframe
	}
	if override.RSILen > 0 {
		out.RSILen = override.RSILen
	}
	if override.ATRLen > 0 {
		out.ATRLen = override.ATRLen
	}
	if override.BreakoutLookback > 0 {
		out.BreakoutLookback = override.BreakoutLookback
	}
	if override.RSIBuy > 0 {
		out.RSIBuy = override.RSIBuy
	}
	if override.RSISell > 0 {
		out.RSISell = override.RSISell
	}
	if override.ExitRSI > 0 {
		out.ExitRSI = override.ExitRSI
	}
	if override.ExitRSIShort > 0 {
		out.ExitRSIShort = override.ExitRSIShort
	}
	if override.StopMult > 0 {
		out.StopMult = override.StopMult
	}
	if override.LimitMult > 0 {
		out.LimitMult = override.LimitMult
	}
	if override.ATRMult > 0 {
		out.ATRMult = override.ATRMult
	}
	return out
}
