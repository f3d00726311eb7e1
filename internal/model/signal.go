package model

import (
	"math"
	"time"
)

// 候选交易信号 由策略产生，仓位计算器填入张数，之后只读
type Signal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"` // long / short
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Contracts  int       `json:"contracts"`  // 由sizer最终确定
	Confidence float64   `json:"confidence"` // 0~1 策略自定义
	Regime     Regime    `json:"regime"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp"`
	Rationale  string    `json:"rationale"` // 自由文本，便于复盘
}

// 止损距离（点）
func (s Signal) StopDistance() float64 {
	return math.Abs(s.Entry - s.Stop)
}

// 盈亏比
func (s Signal) RiskReward() float64 {
	risk := s.StopDistance()
	if risk == 0 {
		return 0
	}
	return math.Abs(s.Target-s.Entry) / risk
}

/*
外部信号来源（TradingView webhook等）

	{
	  "tenant": "default",
	  "symbol": "BTC/USDT",
	  "direction": "long",
	  "entry": 29500,
	  "stop": 29350,
	  "target": 29950,
	  "confidence": 0.6,
	  "strategy": "tv-orb-5m",
	  "comment": "突破+回踩买入"
	}
*/
type ExternalSignal struct {
	Tenant     string         `json:"tenant"`
	Symbol     string         `json:"symbol" binding:"required"`
	Direction  string         `json:"direction" binding:"required,oneof=long short"`
	Entry      float64        `json:"entry" binding:"required,gt=0"`
	Stop       float64        `json:"stop" binding:"required,gt=0"`
	Target     float64        `json:"target"`
	Confidence float64        `json:"confidence" binding:"gte=0,lte=1"`
	Strategy   string         `json:"strategy" binding:"required"`
	Comment    string         `json:"comment"`
	Meta       map[string]any `json:"meta"`
	Timestamp  time.Time      `json:"timestamp"`
}

// 外部信号有效期
const externalSignalExpiry = 5 * time.Minute

// 信号是否过期
func (es ExternalSignal) IsExpired(now time.Time) bool {
	if es.Timestamp.IsZero() {
		return false
	}
	return now.Sub(es.Timestamp) > externalSignalExpiry
}

// 转换为内部信号格式
func (es ExternalSignal) ToSignal() Signal {
	ts := es.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Signal{
		Symbol:     es.Symbol,
		Direction:  Direction(es.Direction),
		Entry:      es.Entry,
		Stop:       es.Stop,
		Target:     es.Target,
		Confidence: es.Confidence,
		Strategy:   es.Strategy,
		Timestamp:  ts,
		Rationale:  es.Comment,
	}
}
