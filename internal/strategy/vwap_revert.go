package strategy

import (
	"fmt"
	"math"
	"time"

	"quantgate/internal/model"
)

// VWAP回归策略 只在震荡市跑
// 价格偏离VWAP超过N倍波动率时反向入场，赌价格回到均值。
// 止损放在偏离方向再一倍波动率处，目标就是VWAP。

const (
	revertEntryDev = 1.5 // 入场偏离阈值（倍ATR）
	revertStopDev  = 1.0 // 止损再让出的距离（倍ATR）
)

type VWAPRevertStrategy struct{}

func NewVWAPRevertStrategy() *VWAPRevertStrategy { return &VWAPRevertStrategy{} }

func (s *VWAPRevertStrategy) Name() string { return "vwap-revert" }

func (s *VWAPRevertStrategy) RequiredRegime() model.Regime { return model.RegimeRange }

func (s *VWAPRevertStrategy) GenerateSignal(f *model.FeatureSnapshot, regime model.Regime, positions []model.OpenPosition) (*model.Signal, error) {
	if regime != model.RegimeRange {
		return nil, nil
	}
	if f.Volatility <= 0 {
		return nil, nil
	}

	price := f.LastClose
	dev := price - f.VWAP
	if math.Abs(dev) < revertEntryDev*f.Volatility {
		return nil, nil
	}

	var dir model.Direction
	var stop float64
	if dev > 0 {
		// 价格高于VWAP过多 做空回归
		dir = model.Short
		stop = price + revertStopDev*f.Volatility
	} else {
		dir = model.Long
		stop = price - revertStopDev*f.Volatility
	}

	if hasPosition(positions, f.Symbol, dir) {
		return nil, nil
	}

	// 波动率异常放大时不做均值回归
	if f.VolatilityBaseline > 0 && f.Volatility > 2*f.VolatilityBaseline {
		return nil, nil
	}

	return &model.Signal{
		Symbol:     f.Symbol,
		Direction:  dir,
		Entry:      price,
		Stop:       stop,
		Target:     f.VWAP,
		Confidence: confidenceFromDeviation(math.Abs(dev), f.Volatility),
		Regime:     regime,
		Strategy:   s.Name(),
		Timestamp:  time.Now(),
		Rationale:  fmt.Sprintf("VWAP回归 dev=%.2f atr=%.2f", dev, f.Volatility),
	}, nil
}

// 偏离越大信心越高 1.5倍ATR->0.5 3倍ATR->1.0
func confidenceFromDeviation(dev, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	c := dev / (3 * atr)
	if c > 1 {
		c = 1
	}
	return c
}
