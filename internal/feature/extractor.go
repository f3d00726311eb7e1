package feature

import (
	"math"
	"sort"
	"time"

	"quantgate/internal/model"

	"github.com/markcheno/go-talib"
)

// 特征提取器 纯函数：同一窗口永远产出同一份快照，不持有任何状态

type Config struct {
	MinBars     int // 最少K线数量，不足返回InsufficientDataError
	ADXPeriod   int
	ATRPeriod   int
	SlopeWindow int     // VWAP斜率回看的bar数
	ORBars      int     // 开盘区间覆盖的bar数
	TickSize    float64 // 点差换算用
}

func DefaultConfig() Config {
	return Config{
		MinBars:     30,
		ADXPeriod:   14,
		ATRPeriod:   14,
		SlopeWindow: 10,
		ORBars:      6, // 5m K线下为前30分钟
		TickSize:    0.1,
	}
}

type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.MinBars <= 0 {
		cfg = DefaultConfig()
	}
	return &Extractor{cfg: cfg}
}

// 可选的实时输入 没有就传零值
type LiveInput struct {
	Quote         *model.Quote
	MinutesToNews *float64 // nil表示未知，不代表没有新闻
	EntrySlipP95  *float64
	ExitSlipP95   *float64
}

// Extract 从K线窗口计算一份特征快照
func (e *Extractor) Extract(symbol string, bars []model.Kline, live LiveInput) (*model.FeatureSnapshot, error) {
	if len(bars) < e.cfg.MinBars {
		return nil, &model.InsufficientDataError{Symbol: symbol, Need: e.cfg.MinBars, Have: len(bars)}
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	vols := make([]float64, len(bars))
	for i, k := range bars {
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = k.Close
		vols[i] = k.Vol
	}

	// 1. 趋势强度（ADX 0~100）
	adx := talib.Adx(highs, lows, closes, e.cfg.ADXPeriod)
	trendStrength := adx[len(adx)-1]

	// 2. VWAP序列 + 斜率 + 斜率滚动中位数
	vwapSeries := rollingVWAP(bars)
	vwap := vwapSeries[len(vwapSeries)-1]
	slope := calcSlope(tail(vwapSeries, e.cfg.SlopeWindow))
	slopeMedian := rollingSlopeMedian(vwapSeries, e.cfg.SlopeWindow)

	// 3. 波动率（ATR）及基线
	atr := talib.Atr(highs, lows, closes, e.cfg.ATRPeriod)
	volatility := atr[len(atr)-1]
	volBaseline := median(nonZero(atr))

	// 4. 开盘区间与区间外持续时间
	orHigh, orLow := openingRange(bars, e.cfg.ORBars)
	holdMinutes := orHoldMinutes(bars, e.cfg.ORBars, orHigh, orLow)

	// 5. 相对成交量
	relVol := relativeVolume(vols)

	snap := &model.FeatureSnapshot{
		Symbol:             symbol,
		Timestamp:          bars[len(bars)-1].Timestamp,
		LastClose:          bars[len(bars)-1].Close,
		TrendStrength:      trendStrength,
		VWAP:               vwap,
		VWAPSlope:          slope,
		VWAPSlopeMedian:    slopeMedian,
		Volatility:         volatility,
		VolatilityBaseline: volBaseline,
		ORHigh:             orHigh,
		ORLow:              orLow,
		ORHoldMinutes:      holdMinutes,
		RelVolume:          relVol,
		MinutesToNews:      live.MinutesToNews,
		EntrySlipP95:       live.EntrySlipP95,
		ExitSlipP95:        live.ExitSlipP95,
	}

	// 实时盘口是可选输入 缺失保持nil，守卫自己决定怎么降级
	if live.Quote != nil {
		spread := live.Quote.SpreadTicks(e.cfg.TickSize)
		imb := live.Quote.BookImbalance()
		snap.SpreadTicks = &spread
		snap.BookImbalance = &imb
	}

	return snap, nil
}

// 滚动VWAP 每个位置取窗口起点到该bar的量加权均价
func rollingVWAP(bars []model.Kline) []float64 {
	out := make([]float64, len(bars))
	var pvSum, vSum float64
	for i, k := range bars {
		pvSum += k.TypicalPrice() * k.Vol
		vSum += k.Vol
		if vSum > 0 {
			out[i] = pvSum / vSum
		} else {
			out[i] = k.Close
		}
	}
	return out
}

// 最小二乘斜率
func calcSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// 斜率的滚动中位数基线
func rollingSlopeMedian(vwap []float64, window int) float64 {
	if len(vwap) < window+2 {
		return 0
	}
	var slopes []float64
	for end := window; end <= len(vwap); end++ {
		slopes = append(slopes, calcSlope(vwap[end-window:end]))
	}
	return median(slopes)
}

func openingRange(bars []model.Kline, orBars int) (high, low float64) {
	if orBars > len(bars) {
		orBars = len(bars)
	}
	high = bars[0].High
	low = bars[0].Low
	for _, k := range bars[:orBars] {
		high = math.Max(high, k.High)
		low = math.Min(low, k.Low)
	}
	return high, low
}

// 从窗口末尾往回数，收盘价连续处于开盘区间外的时长
func orHoldMinutes(bars []model.Kline, orBars int, orHigh, orLow float64) float64 {
	if len(bars) <= orBars {
		return 0
	}
	barDur := barDuration(bars)
	var held time.Duration
	for i := len(bars) - 1; i >= orBars; i-- {
		c := bars[i].Close
		if c > orHigh || c < orLow {
			held += barDur
		} else {
			break
		}
	}
	return held.Minutes()
}

// 从相邻时间戳推断bar周期，推断不出来按5分钟
func barDuration(bars []model.Kline) time.Duration {
	if len(bars) >= 2 {
		d := bars[1].Timestamp.Sub(bars[0].Timestamp)
		if d > 0 {
			return d
		}
	}
	return 5 * time.Minute
}

func relativeVolume(vols []float64) float64 {
	if len(vols) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vols {
		sum += v
	}
	avg := sum / float64(len(vols))
	if avg == 0 {
		return 0
	}
	return vols[len(vols)-1] / avg
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func nonZero(values []float64) []float64 {
	out := values[:0:0]
	for _, v := range values {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
