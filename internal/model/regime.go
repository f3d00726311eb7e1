package model

// 市场状态
type Regime int

const (
	// 无法交易（新闻临近/点差过大等强制不交易）
	RegimeNoTrade Regime = iota
	// 趋势行情
	RegimeTrend
	// 震荡行情
	RegimeRange
	// 高波动行情
	RegimeVolatile
)

func (r Regime) String() string {
	switch r {
	case RegimeTrend:
		return "TREND"
	case RegimeRange:
		return "RANGE"
	case RegimeVolatile:
		return "VOLATILE"
	default:
		return "NOTRADE"
	}
}

// 各状态对应的仓位乘数
// 震荡行情均值回归胜率高可以放大，趋势行情回撤深要收敛
func (r Regime) SizeMultiplier() float64 {
	switch r {
	case RegimeTrend:
		return 0.85
	case RegimeRange:
		return 1.15
	case RegimeVolatile:
		return 1.00
	default:
		return 0.00
	}
}

// 是否允许进场
func (r Regime) Tradable() bool {
	return r != RegimeNoTrade
}
