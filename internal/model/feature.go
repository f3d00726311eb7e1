package model

import "time"

// 特征快照 每根K线生成一份，生成后不可变
// 可选输入缺失时用 nil 表示，不能用0代替
// （news=nil 表示"未知是否临近新闻"，news=0 表示"新闻就在眼前"，两者对守卫含义完全不同）
type FeatureSnapshot struct {
	Symbol    string
	Timestamp time.Time

	// 窗口最后一根K线的收盘价
	LastClose float64

	// 趋势强度 0~100（ADX口径）
	TrendStrength float64

	// 成交量加权均价及其斜率
	VWAP            float64
	VWAPSlope       float64
	VWAPSlopeMedian float64 // 滚动中位数基线

	// 波动率（ATR口径）及基线
	Volatility         float64
	VolatilityBaseline float64

	// 开盘区间
	ORHigh        float64
	ORLow         float64
	ORHoldMinutes float64 // 价格维持在开盘区间外的分钟数

	// 相对成交量（当前量/均量）
	RelVolume float64

	// ==== 以下为可选输入，缺失用nil ====

	// 点差（tick数）
	SpreadTicks *float64

	// 盘口不平衡 -1~1
	BookImbalance *float64

	// 距下一条相关新闻的分钟数
	MinutesToNews *float64

	// 近期进出场滑点分位数（百分比）
	EntrySlipP95 *float64
	ExitSlipP95  *float64
}

// 点差读数 缺失时按0处理（视为无点差风险信息）
func (f FeatureSnapshot) SpreadOrZero() float64 {
	if f.SpreadTicks == nil {
		return 0
	}
	return *f.SpreadTicks
}
