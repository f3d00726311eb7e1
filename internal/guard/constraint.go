package guard

import (
	"context"
	"fmt"

	"quantgate/conf"
	"quantgate/internal/model"
)

// 合规约束守卫 信号本身的静态检查
// 止损不能太紧，点差不能太宽，盈亏比要够
type ConstraintGuard struct {
	cfg      conf.ConstraintConfig
	tickSize float64
}

func NewConstraintGuard(cfg conf.ConstraintConfig, tickSize float64) *ConstraintGuard {
	return &ConstraintGuard{cfg: cfg, tickSize: tickSize}
}

func (g *ConstraintGuard) Name() string { return "constraint" }

func (g *ConstraintGuard) Evaluate(_ context.Context, in *Input) model.GateResult {
	sig := in.Signal

	minStop := g.cfg.MinStopTicks * g.tickSize
	if sig.StopDistance() < minStop {
		return model.GateResult{
			Name:   g.Name(),
			Passed: false,
			Reason: model.ReasonStopTooTight,
			Detail: fmt.Sprintf("stop distance %.4f < minimum %.4f", sig.StopDistance(), minStop),
		}
	}

	// 用特征快照里的点差（没有实时报价时为0，放行交给执行守卫兜底）
	if in.Features != nil {
		if spread := in.Features.SpreadOrZero(); spread > g.cfg.MaxSpreadTicks {
			return model.GateResult{
				Name:   g.Name(),
				Passed: false,
				Reason: model.ReasonSpreadTooWide,
				Detail: fmt.Sprintf("spread %.1f ticks > maximum %.1f", spread, g.cfg.MaxSpreadTicks),
			}
		}
	}

	if sig.Target != 0 && sig.RiskReward() < g.cfg.MinRiskReward {
		return model.GateResult{
			Name:   g.Name(),
			Passed: false,
			Reason: model.ReasonPoorRiskReward,
			Detail: fmt.Sprintf("risk reward %.2f < minimum %.2f", sig.RiskReward(), g.cfg.MinRiskReward),
		}
	}

	return model.GateResult{Name: g.Name(), Passed: true}
}
