package strategy

import (
	"sort"
	"sync"

	"quantgate/internal/model"
)

var (
	// 策略注册表， 支持多策略注册
	registry = make(map[string]Strategy)
	mu       sync.RWMutex
)

func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	registry[s.Name()] = s
}

func Get(name string) (Strategy, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, model.ErrStrategyNotFound
	}
	return s, nil
}

// ForRegime 返回适配当前市场状态的所有策略
// 按名称排序，保证同样的输入得到同样的调度顺序
func ForRegime(regime model.Regime) []Strategy {
	mu.RLock()
	defer mu.RUnlock()
	var out []Strategy
	for _, s := range registry {
		if s.RequiredRegime() == regime {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
