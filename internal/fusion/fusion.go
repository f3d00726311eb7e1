package fusion

import (
	"fmt"
	"sync"
	"time"

	"quantgate/internal/model"
)

// 多周期融合
// 把低周期K线流实时聚合成高周期K线，维护每个symbol每个周期的有界缓存，
// 在入场前检查高周期趋势方向是否与候选方向一致。
// 不一致时编排器按普通守卫拒绝处理，原因是"HTF/LTF disagreement"。

type Config struct {
	Enabled    bool            // htf_gating开关，默认开
	Timeframes []time.Duration // 聚合的高周期
	MaxBars    int             // 每个周期最多缓存的聚合bar数（内存有界）
	MinBars    int             // 低于这个数量不参与投票
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Timeframes: []time.Duration{30 * time.Minute, time.Hour, 4 * time.Hour},
		MaxBars:    64,
		MinBars:    6,
	}
}

type Fusion struct {
	cfg Config
	mu  sync.RWMutex
	// symbol -> timeframe -> 已完成的聚合bar（环形截断）
	cache map[string]map[time.Duration][]model.Kline
	// symbol -> timeframe -> 聚合中的当前bucket
	partial map[string]map[time.Duration]*model.Kline
}

func New(cfg Config) *Fusion {
	if len(cfg.Timeframes) == 0 {
		cfg = DefaultConfig()
	}
	return &Fusion{
		cfg:     cfg,
		cache:   make(map[string]map[time.Duration][]model.Kline),
		partial: make(map[string]map[time.Duration]*model.Kline),
	}
}

// Update 把一根低周期K线滚进所有高周期bucket
// 均摊O(1)：每根bar只做常数次合并，缓存长度固定
func (f *Fusion) Update(symbol string, bar model.Kline) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cache[symbol]; !ok {
		f.cache[symbol] = make(map[time.Duration][]model.Kline)
		f.partial[symbol] = make(map[time.Duration]*model.Kline)
	}

	for _, tf := range f.cfg.Timeframes {
		bucketStart := bar.Timestamp.Truncate(tf)
		cur := f.partial[symbol][tf]

		if cur == nil || !cur.Timestamp.Equal(bucketStart) {
			// 上一个bucket完成，落入缓存
			if cur != nil {
				bars := append(f.cache[symbol][tf], *cur)
				if len(bars) > f.cfg.MaxBars {
					bars = bars[len(bars)-f.cfg.MaxBars:]
				}
				f.cache[symbol][tf] = bars
			}
			nb := bar
			nb.Timestamp = bucketStart
			f.partial[symbol][tf] = &nb
			continue
		}

		// 合并进当前bucket
		cur.High = maxf(cur.High, bar.High)
		cur.Low = minf(cur.Low, bar.Low)
		cur.Close = bar.Close
		cur.Vol += bar.Vol
		cur.VolCcy += bar.VolCcy
	}
}

// Bars 某周期已完成的聚合K线（只读副本）
func (f *Fusion) Bars(symbol string, tf time.Duration) []model.Kline {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]model.Kline(nil), f.cache[symbol][tf]...)
}

// 单个周期的方向投票 看聚合收盘价的斜率
func trendVote(bars []model.Kline) int {
	if len(bars) < 2 {
		return 0
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	slope := calcSlope(closes)
	// 斜率相对价格归一，避免高价币天然斜率大
	ref := closes[len(closes)-1]
	if ref != 0 {
		slope = slope / ref
	}
	switch {
	case slope > 0.0001:
		return 1
	case slope < -0.0001:
		return -1
	default:
		return 0
	}
}

// Consensus 多周期共识方向
// 返回false表示数据还不够，没有可用的共识
func (f *Fusion) Consensus(symbol string) (model.Direction, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	votes := 0
	voted := 0
	for _, tf := range f.cfg.Timeframes {
		bars := f.cache[symbol][tf]
		if len(bars) < f.cfg.MinBars {
			continue
		}
		v := trendVote(bars)
		if v != 0 {
			votes += v
			voted++
		}
	}
	if voted == 0 {
		return "", false
	}
	if votes > 0 {
		return model.Long, true
	}
	if votes < 0 {
		return model.Short, true
	}
	// 周期互相打架，视为没有共识
	return "", false
}

// Gate 高低周期一致性检查
// 通过返回true；不通过返回false和给审计用的说明
func (f *Fusion) Gate(symbol string, ltfRegime model.Regime, dir model.Direction) (bool, string) {
	if !f.cfg.Enabled {
		return true, "htf gating disabled"
	}
	// 趋势行情才要求高周期背书，震荡行情的均值回归天然是逆小势的
	if ltfRegime != model.RegimeTrend {
		return true, "regime does not require htf confirmation"
	}
	consensus, ok := f.Consensus(symbol)
	if !ok {
		// 高周期数据不足不拦截，交给特征提取的最小窗口去挡
		return true, "htf consensus unavailable"
	}
	if consensus != dir {
		return false, fmt.Sprintf("htf consensus %s vs candidate %s", consensus, dir)
	}
	return true, "htf agrees"
}

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

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
