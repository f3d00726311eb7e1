package calendar

import (
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"quantgate/internal/model"
	"quantgate/pkg/logger"

	"gopkg.in/yaml.v3"
)

// 财经日历
// 从yaml文件加载新闻事件，文件变化时热加载，不需要重启管道。
// symbol为"*"的事件（FOMC/CPI这类）对所有品种生效。

type Impact int

const (
	ImpactLow Impact = iota + 1
	ImpactMedium
	ImpactHigh
)

func ParseImpact(s string) Impact {
	switch strings.ToLower(s) {
	case "high":
		return ImpactHigh
	case "medium":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

type Event struct {
	Symbol string    `yaml:"symbol"`
	Time   time.Time `yaml:"time"`
	Impact string    `yaml:"impact"`
	Title  string    `yaml:"title"`
}

func (e Event) ImpactLevel() Impact {
	return ParseImpact(e.Impact)
}

type calendarFile struct {
	Events []Event `yaml:"events"`
}

type Calendar struct {
	mu         sync.RWMutex
	path       string
	events     []Event
	modTime    time.Time
	lastCheck  time.Time
	checkEvery time.Duration
}

// Load 启动期加载 文件非法直接返回ConfigurationError让进程fail fast
func Load(path string, checkEvery time.Duration) (*Calendar, error) {
	if checkEvery <= 0 {
		checkEvery = 30 * time.Second
	}
	c := &Calendar{path: path, checkEvery: checkEvery}
	if err := c.reload(); err != nil {
		return nil, &model.ConfigurationError{Field: "calendar.path", Detail: err.Error()}
	}
	return c, nil
}

func (c *Calendar) reload() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var cf calendarFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return err
	}
	sort.Slice(cf.Events, func(i, j int) bool {
		return cf.Events[i].Time.Before(cf.Events[j].Time)
	})

	c.mu.Lock()
	c.events = cf.Events
	c.modTime = info.ModTime()
	c.mu.Unlock()
	logger.Infof("日历已加载: %s 事件数=%d", c.path, len(cf.Events))
	return nil
}

// 每次查询前按间隔检查mtime，变了就热加载
// 加载失败保留旧数据继续用，只记日志
func (c *Calendar) maybeReload(now time.Time) {
	c.mu.RLock()
	due := now.Sub(c.lastCheck) >= c.checkEvery
	c.mu.RUnlock()
	if !due {
		return
	}

	c.mu.Lock()
	c.lastCheck = now
	c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		logger.Errorf("日历文件检查失败: %v", err)
		return
	}
	c.mu.RLock()
	changed := info.ModTime().After(c.modTime)
	c.mu.RUnlock()
	if !changed {
		return
	}
	if err := c.reload(); err != nil {
		logger.Errorf("日历热加载失败，沿用旧数据: %v", err)
	}
}

// MinutesToNext 距下一条匹配事件的分钟数
// 没有任何匹配事件返回nil（未知 ≠ 0分钟）
func (c *Calendar) MinutesToNext(symbol string, minImpact Impact, now time.Time) *float64 {
	c.maybeReload(now)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.events {
		if ev.ImpactLevel() < minImpact {
			continue
		}
		if ev.Symbol != "*" && ev.Symbol != symbol {
			continue
		}
		if ev.Time.Before(now) {
			continue
		}
		m := ev.Time.Sub(now).Minutes()
		return &m
	}
	return nil
}

// InWindow 是否落在某个事件的前后窗口内
func (c *Calendar) InWindow(symbol string, minImpact Impact, before, after time.Duration, now time.Time) (bool, Event) {
	c.maybeReload(now)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.events {
		if ev.ImpactLevel() < minImpact {
			continue
		}
		if ev.Symbol != "*" && ev.Symbol != symbol {
			continue
		}
		if now.After(ev.Time.Add(-before)) && now.Before(ev.Time.Add(after)) {
			return true, ev
		}
	}
	return false, Event{}
}
