package guard

import (
	"context"
	"fmt"

	"quantgate/internal/model"
	"quantgate/internal/risk"
)

// 心理守卫 等级1或冷却期内一律拒绝
type MentalGuard struct {
	mgr *risk.MentalManager
}

func NewMentalGuard(mgr *risk.MentalManager) *MentalGuard {
	return &MentalGuard{mgr: mgr}
}

func (g *MentalGuard) Name() string { return "mental" }

func (g *MentalGuard) Evaluate(_ context.Context, in *Input) model.GateResult {
	if g.mgr.CanTrade(in.Mental, in.Now) {
		return model.GateResult{Name: g.Name(), Passed: true}
	}
	detail := fmt.Sprintf("mental level %d", in.Mental.Level)
	if in.Mental.InCooldown(in.Now) {
		detail = fmt.Sprintf("mental cooldown until %s", in.Mental.CooldownUntil.Format("15:04:05"))
	}
	return model.GateResult{
		Name:   g.Name(),
		Passed: false,
		Reason: model.ReasonMentalState,
		Detail: detail,
	}
}
