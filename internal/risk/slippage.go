package risk

import (
	"math"
	"sort"
	"sync"
)

// 滑点统计 按品种维护最近成交的开/平仓滑点滚动窗口
// 执行守卫用P95分位数做上限检查，样本不足时返回nil表示暂不拦截

const slipWindow = 100

type slipSeries struct {
	entry []float64
	exit  []float64
}

type SlipTracker struct {
	mu     sync.RWMutex
	series map[string]*slipSeries
}

func NewSlipTracker() *SlipTracker {
	return &SlipTracker{series: make(map[string]*slipSeries)}
}

// Record 记录一笔成交的滑点 负值按0处理（成交价优于预期不算滑点）
func (t *SlipTracker) Record(symbol string, entryTicks, exitTicks float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[symbol]
	if !ok {
		s = &slipSeries{}
		t.series[symbol] = s
	}
	s.entry = appendBounded(s.entry, math.Max(entryTicks, 0))
	s.exit = appendBounded(s.exit, math.Max(exitTicks, 0))
}

// EntryP95 开仓滑点95分位 无样本返回nil
func (t *SlipTracker) EntryP95(symbol string) *float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.series[symbol]; ok {
		return percentile95(s.entry)
	}
	return nil
}

// ExitP95 平仓滑点95分位 无样本返回nil
func (t *SlipTracker) ExitP95(symbol string) *float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.series[symbol]; ok {
		return percentile95(s.exit)
	}
	return nil
}

func appendBounded(w []float64, v float64) []float64 {
	w = append(w, v)
	if len(w) > slipWindow {
		w = w[len(w)-slipWindow:]
	}
	return w
}

func percentile95(samples []float64) *float64 {
	if len(samples) == 0 {
		return nil
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	p := sorted[idx]
	return &p
}
