package strategy

import (
	"fmt"
	"time"

	"quantgate/internal/model"
)

// 开盘区间突破策略 只在趋势市跑
// 价格站上开盘区间高点且量能放大时做多，跌破低点时做空。
// 止损放在区间另一侧，目标按区间高度的倍数投射。

const (
	orbMinRelVolume  = 1.2 // 突破要有量
	orbTargetRatio   = 2.0 // 目标 = 区间高度 × 倍数
	orbMinHoldMinute = 5.0 // 站稳区间外的最短时间
)

type ORBStrategy struct{}

func NewORBStrategy() *ORBStrategy { return &ORBStrategy{} }

func (s *ORBStrategy) Name() string { return "orb-breakout" }

func (s *ORBStrategy) RequiredRegime() model.Regime { return model.RegimeTrend }

func (s *ORBStrategy) GenerateSignal(f *model.FeatureSnapshot, regime model.Regime, positions []model.OpenPosition) (*model.Signal, error) {
	if regime != model.RegimeTrend {
		return nil, nil
	}
	orRange := f.ORHigh - f.ORLow
	if orRange <= 0 {
		return nil, nil
	}
	// 刚突破的假动作不追，要求已经站稳一段时间
	if f.ORHoldMinutes < orbMinHoldMinute {
		return nil, nil
	}
	if f.RelVolume < orbMinRelVolume {
		return nil, nil
	}

	price := f.LastClose

	var dir model.Direction
	var stop, target float64
	switch {
	case price > f.ORHigh && f.VWAPSlope > 0:
		dir = model.Long
		stop = f.ORLow
		target = f.ORHigh + orRange*orbTargetRatio
	case price < f.ORLow && f.VWAPSlope < 0:
		dir = model.Short
		stop = f.ORHigh
		target = f.ORLow - orRange*orbTargetRatio
	default:
		return nil, nil
	}

	// 已有同向持仓不加仓
	if hasPosition(positions, f.Symbol, dir) {
		return nil, nil
	}

	return &model.Signal{
		Symbol:     f.Symbol,
		Direction:  dir,
		Entry:      price,
		Stop:       stop,
		Target:     target,
		Confidence: confidenceFromTrend(f.TrendStrength),
		Regime:     regime,
		Strategy:   s.Name(),
		Timestamp:  time.Now(),
		Rationale:  fmt.Sprintf("OR突破 range=[%.2f,%.2f] hold=%.0fmin relVol=%.2f", f.ORLow, f.ORHigh, f.ORHoldMinutes, f.RelVolume),
	}, nil
}

// 趋势越强信心越高 ADX 25->0.5 50->1.0
func confidenceFromTrend(adx float64) float64 {
	c := adx / 50
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

func hasPosition(positions []model.OpenPosition, symbol string, dir model.Direction) bool {
	for _, p := range positions {
		if p.Symbol == symbol && p.Dir == dir {
			return true
		}
	}
	return false
}
