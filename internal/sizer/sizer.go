package sizer

import (
	"math"

	"quantgate/internal/model"
)

// 仓位计算器 纯函数
// contracts = floor(风险预算 × 市场状态乘数 × 软调节乘数 × 心理乘数 / 每张合约的止损金额)
// 乘数链条完整记入SizingDetail，复盘时每个数字都有出处。

type Sizer struct {
	dollarPerPoint float64
}

func New(dollarPerPoint float64) *Sizer {
	return &Sizer{dollarPerPoint: dollarPerPoint}
}

// Size 计算最终张数 张数为0时上层按"仓位不足最小单位"拒绝
func (s *Sizer) Size(sig *model.Signal, riskBudget, scalingMult, mentalMult float64) model.SizingDetail {
	detail := model.SizingDetail{
		RiskBudget:     riskBudget,
		RegimeMult:     sig.Regime.SizeMultiplier(),
		ScalingMult:    scalingMult,
		MentalMult:     mentalMult,
		StopDistance:   sig.StopDistance(),
		DollarPerPoint: s.dollarPerPoint,
	}

	stopDollars := detail.StopDistance * s.dollarPerPoint
	if stopDollars <= 0 {
		return detail
	}

	effective := riskBudget * detail.RegimeMult * scalingMult * mentalMult
	detail.Contracts = int(math.Floor(effective / stopDollars))
	if detail.Contracts < 0 {
		detail.Contracts = 0
	}
	return detail
}
