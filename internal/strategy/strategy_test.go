package strategy

import (
	"testing"

	"quantgate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendSnapshot() *model.FeatureSnapshot {
	return &model.FeatureSnapshot{
		Symbol:        "BTC/USDT",
		LastClose:     29560,
		TrendStrength: 30,
		VWAPSlope:     2.5,
		ORHigh:        29500,
		ORLow:         29400,
		ORHoldMinutes: 15,
		RelVolume:     1.5,
	}
}

func TestORBLongSetup(t *testing.T) {
	s := NewORBStrategy()
	sig, err := s.GenerateSignal(trendSnapshot(), model.RegimeTrend, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, model.Long, sig.Direction)
	assert.InDelta(t, 29560, sig.Entry, 1e-9)
	assert.InDelta(t, 29400, sig.Stop, 1e-9) // 区间低点
	// 目标 = 区间高点 + 区间高度×2
	assert.InDelta(t, 29700, sig.Target, 1e-9)
	assert.Equal(t, "orb-breakout", sig.Strategy)
	assert.InDelta(t, 0.6, sig.Confidence, 1e-9) // ADX 30 / 50
}

func TestORBShortSetup(t *testing.T) {
	f := trendSnapshot()
	f.LastClose = 29350
	f.VWAPSlope = -2.5

	s := NewORBStrategy()
	sig, err := s.GenerateSignal(f, model.RegimeTrend, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, model.Short, sig.Direction)
	assert.InDelta(t, 29500, sig.Stop, 1e-9)
	assert.InDelta(t, 29200, sig.Target, 1e-9)
}

func TestORBNoSetupCases(t *testing.T) {
	s := NewORBStrategy()

	// 非趋势市不出信号
	sig, err := s.GenerateSignal(trendSnapshot(), model.RegimeRange, nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	// 刚突破还没站稳
	f := trendSnapshot()
	f.ORHoldMinutes = 3
	sig, _ = s.GenerateSignal(f, model.RegimeTrend, nil)
	assert.Nil(t, sig)

	// 量能不足
	f = trendSnapshot()
	f.RelVolume = 1.0
	sig, _ = s.GenerateSignal(f, model.RegimeTrend, nil)
	assert.Nil(t, sig)

	// 价格在区间内
	f = trendSnapshot()
	f.LastClose = 29450
	sig, _ = s.GenerateSignal(f, model.RegimeTrend, nil)
	assert.Nil(t, sig)

	// 突破方向和VWAP斜率相反
	f = trendSnapshot()
	f.VWAPSlope = -1
	sig, _ = s.GenerateSignal(f, model.RegimeTrend, nil)
	assert.Nil(t, sig)
}

func TestORBSkipsExistingPosition(t *testing.T) {
	s := NewORBStrategy()
	positions := []model.OpenPosition{{Symbol: "BTC/USDT", Dir: model.Long, Contracts: 1}}
	sig, err := s.GenerateSignal(trendSnapshot(), model.RegimeTrend, positions)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func rangeSnapshot() *model.FeatureSnapshot {
	return &model.FeatureSnapshot{
		Symbol:             "BTC/USDT",
		LastClose:          29600,
		VWAP:               29500,
		Volatility:         50,
		VolatilityBaseline: 45,
	}
}

func TestVWAPRevertShortSetup(t *testing.T) {
	s := NewVWAPRevertStrategy()
	// 偏离+100 = 2倍ATR，超过1.5倍入场线
	sig, err := s.GenerateSignal(rangeSnapshot(), model.RegimeRange, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, model.Short, sig.Direction)
	assert.InDelta(t, 29600, sig.Entry, 1e-9)
	assert.InDelta(t, 29650, sig.Stop, 1e-9) // 再让出1倍ATR
	assert.InDelta(t, 29500, sig.Target, 1e-9)
	assert.Equal(t, "vwap-revert", sig.Strategy)
}

func TestVWAPRevertLongSetup(t *testing.T) {
	f := rangeSnapshot()
	f.LastClose = 29400

	s := NewVWAPRevertStrategy()
	sig, err := s.GenerateSignal(f, model.RegimeRange, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, model.Long, sig.Direction)
	assert.InDelta(t, 29350, sig.Stop, 1e-9)
}

func TestVWAPRevertNoSetupCases(t *testing.T) {
	s := NewVWAPRevertStrategy()

	// 偏离不够
	f := rangeSnapshot()
	f.LastClose = 29550 // 1倍ATR
	sig, err := s.GenerateSignal(f, model.RegimeRange, nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	// 波动率异常放大
	f = rangeSnapshot()
	f.Volatility = 100
	f.VolatilityBaseline = 40
	f.LastClose = 29700
	sig, _ = s.GenerateSignal(f, model.RegimeRange, nil)
	assert.Nil(t, sig)

	// 非震荡市
	sig, _ = s.GenerateSignal(rangeSnapshot(), model.RegimeTrend, nil)
	assert.Nil(t, sig)
}

type dummyStrategy struct {
	name   string
	regime model.Regime
}

func (d *dummyStrategy) Name() string { return d.name }

func (d *dummyStrategy) RequiredRegime() model.Regime { return d.regime }
func (d *dummyStrategy) GenerateSignal(*model.FeatureSnapshot, model.Regime, []model.OpenPosition) (*model.Signal, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register(&dummyStrategy{name: "zz-test", regime: model.RegimeTrend})
	Register(&dummyStrategy{name: "aa-test", regime: model.RegimeTrend})

	s, err := Get("zz-test")
	require.NoError(t, err)
	assert.Equal(t, "zz-test", s.Name())

	_, err = Get("missing")
	assert.ErrorIs(t, err, model.ErrStrategyNotFound)

	// ForRegime按名称排序
	list := ForRegime(model.RegimeTrend)
	require.GreaterOrEqual(t, len(list), 2)
	assert.Equal(t, "aa-test", list[0].Name())
}
