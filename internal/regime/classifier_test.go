package regime

import (
	"testing"

	"quantgate/internal/model"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

// 基础快照：不命中任何高优先级规则
func baseSnapshot() *model.FeatureSnapshot {
	return &model.FeatureSnapshot{
		Symbol:          "BTC/USDT",
		TrendStrength:   22,
		VWAPSlope:       0.5,
		VWAPSlopeMedian: 1.0,
	}
}

func TestClassifyNewsBlackout(t *testing.T) {
	f := baseSnapshot()
	f.MinutesToNews = fptr(30) // 恰好30分钟也算临近
	assert.Equal(t, model.RegimeNoTrade, Classify(f))

	f.MinutesToNews = fptr(30.1)
	assert.NotEqual(t, model.RegimeNoTrade, Classify(f))
}

func TestClassifyNewsUnknownIsNotBlackout(t *testing.T) {
	f := baseSnapshot()
	f.MinutesToNews = nil
	assert.NotEqual(t, model.RegimeNoTrade, Classify(f))
}

func TestClassifySpread(t *testing.T) {
	f := baseSnapshot()
	f.SpreadTicks = fptr(2.0) // 恰好2个tick不拦
	assert.NotEqual(t, model.RegimeNoTrade, Classify(f))

	f.SpreadTicks = fptr(2.5)
	assert.Equal(t, model.RegimeNoTrade, Classify(f))
}

func TestClassifyTrend(t *testing.T) {
	f := baseSnapshot()
	f.TrendStrength = 26
	f.VWAPSlope = 2.0
	f.VWAPSlopeMedian = 1.0
	assert.Equal(t, model.RegimeTrend, Classify(f))

	// 斜率不行但开盘区间外站稳也算趋势
	f.VWAPSlope = 0.5
	f.ORHoldMinutes = 31
	assert.Equal(t, model.RegimeTrend, Classify(f))

	// 恰好30分钟不算站稳
	f.ORHoldMinutes = 30
	assert.Equal(t, model.RegimeVolatile, Classify(f))
}

// 边界值落到低优先级分支
func TestClassifyBoundaryValues(t *testing.T) {
	f := baseSnapshot()
	f.TrendStrength = 25 // 恰好25不算趋势强
	f.VWAPSlope = 2.0
	f.VWAPSlopeMedian = 1.0
	assert.Equal(t, model.RegimeVolatile, Classify(f))

	f = baseSnapshot()
	f.TrendStrength = 20 // 恰好20不算趋势弱
	f.VWAPSlope = 0.5
	f.VWAPSlopeMedian = 1.0
	assert.Equal(t, model.RegimeVolatile, Classify(f))
}

func TestClassifyRange(t *testing.T) {
	f := baseSnapshot()
	f.TrendStrength = 19.9
	f.VWAPSlope = 1.0
	f.VWAPSlopeMedian = 1.0 // 等于基线也算震荡
	assert.Equal(t, model.RegimeRange, Classify(f))
}

func TestClassifyVolatileFallback(t *testing.T) {
	f := baseSnapshot()
	f.TrendStrength = 23 // 20~25之间
	assert.Equal(t, model.RegimeVolatile, Classify(f))
}
