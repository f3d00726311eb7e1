package regime

import "quantgate/internal/model"

// 市场状态分类 纯函数，全部规则只看一份特征快照
// 规则有严格的先后顺序，写死在这里而不是配置里，保证行为可审计：
//  1. 新闻临近或点差过大 → NOTRADE（合规优先，最先判）
//  2. 趋势强 且（VWAP斜率高于中位基线 或 开盘区间外站稳超过30分钟）→ TREND
//  3. 趋势弱 且 VWAP斜率不高于基线 → RANGE
//  4. 其余 → VOLATILE
//
// 边界值约定：trendStrength恰好等于25或20时落到低优先级分支，
// 所以这里必须用严格大于/小于，不能写>=。

const (
	newsBlackoutMinutes = 30.0
	maxSpreadTicks      = 2.0
	trendStrengthHigh   = 25.0
	trendStrengthLow    = 20.0
	orHoldTrendMinutes  = 30.0
)

func Classify(f *model.FeatureSnapshot) model.Regime {
	// 1. 合规/质量强制不交易
	// MinutesToNews为nil表示新闻风险未知，不触发黑名单
	if f.MinutesToNews != nil && *f.MinutesToNews <= newsBlackoutMinutes {
		return model.RegimeNoTrade
	}
	if f.SpreadTicks != nil && *f.SpreadTicks > maxSpreadTicks {
		return model.RegimeNoTrade
	}

	// 2. 趋势行情
	if f.TrendStrength > trendStrengthHigh &&
		(f.VWAPSlope > f.VWAPSlopeMedian || f.ORHoldMinutes > orHoldTrendMinutes) {
		return model.RegimeTrend
	}

	// 3. 震荡行情
	if f.TrendStrength < trendStrengthLow && f.VWAPSlope <= f.VWAPSlopeMedian {
		return model.RegimeRange
	}

	// 4. 其余都按高波动处理
	return model.RegimeVolatile
}
