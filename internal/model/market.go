package model

import (
	"time"
)

// 交易方向
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

type Kline struct {
	Timestamp time.Time `json:"time"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Vol       float64   `json:"vol"`     // 成交量 以币/合约张数为单位
	VolCcy    float64   `json:"vol_ccy"` // 成交额 以USDT为单位
}

// 典型价 用于VWAP计算
func (k Kline) TypicalPrice() float64 {
	return (k.High + k.Low + k.Close) / 3
}

// 实时报价 执行质量检查的输入
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size"` // 买一挂单量
	AskSize   float64   `json:"ask_size"` // 卖一挂单量
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// 点差换算成tick数
func (q Quote) SpreadTicks(tickSize float64) float64 {
	if tickSize <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / tickSize
}

// 盘口不平衡度 -1(全是卖压) ~ +1(全是买压)
func (q Quote) BookImbalance() float64 {
	total := q.BidSize + q.AskSize
	if total <= 0 {
		return 0
	}
	return (q.BidSize - q.AskSize) / total
}

// 报价是否过期（超过maxAge视为不可用）
func (q Quote) Stale(maxAge time.Duration, now time.Time) bool {
	return q.Timestamp.IsZero() || now.Sub(q.Timestamp) > maxAge
}

// 当前持仓快照 由执行边界回报，决策时只读
type OpenPosition struct {
	Symbol     string
	Dir        Direction
	Contracts  int
	AvgPrice   float64
	OpenedAt   time.Time
	Unrealized float64 // 未实现盈亏（R）
}

// MidPrice 中间价
func (q Quote) MidPrice() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}
