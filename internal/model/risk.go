package model

import (
	"fmt"
	"time"
)

// 触发硬风控后的处置动作
type TripwireAction string

const (
	ActionNone       TripwireAction = ""
	ActionPauseDay   TripwireAction = "pause_until_next_day"
	ActionPauseWeek  TripwireAction = "pause_until_next_week"
	ActionPauseReset TripwireAction = "pause_pending_manual_reset"
)

// 风控状态 按租户隔离，只有平仓事件会修改它
// 日/周边界的清零由外部协作方负责
type RiskState struct {
	TenantID string

	DailyR  float64 // 当日已实现盈亏（R）
	WeeklyR float64 // 当周已实现盈亏（R）

	// 连续亏损天数
	ConsecutiveLossDays int

	// 软性调节乘数（由盈利因子推算）
	ScalingMult float64

	// 最近N笔平仓结果，用于盈利因子和心理状态推导
	RecentWins   []float64
	RecentLosses []float64

	// 当周每日盈亏，用于一致性规则
	DailyProfits map[string]float64

	UpdatedAt time.Time
}

// NewRiskState 初始状态 乘数从1.0开始
func NewRiskState(tenant string) *RiskState {
	return &RiskState{
		TenantID:     tenant,
		ScalingMult:  1.0,
		DailyProfits: make(map[string]float64),
	}
}

// 滚动盈利因子 毛利/毛损
// 没有亏损样本时返回一个大数，避免除零
func (rs *RiskState) ProfitFactor() float64 {
	var grossWin, grossLoss float64
	for _, w := range rs.RecentWins {
		grossWin += w
	}
	for _, l := range rs.RecentLosses {
		grossLoss += -l
	}
	if grossLoss == 0 {
		if grossWin == 0 {
			return 1.0
		}
		return 99.0
	}
	return grossWin / grossLoss
}

// Snapshot 只读副本，给外部查询用
func (rs *RiskState) Snapshot() RiskState {
	cp := *rs
	cp.RecentWins = append([]float64(nil), rs.RecentWins...)
	cp.RecentLosses = append([]float64(nil), rs.RecentLosses...)
	cp.DailyProfits = make(map[string]float64, len(rs.DailyProfits))
	for k, v := range rs.DailyProfits {
		cp.DailyProfits[k] = v
	}
	return cp
}

// 成交回报 以(orderId, executionId)作幂等键
type Fill struct {
	OrderID        string    `json:"order_id"`
	ExecutionID    string    `json:"execution_id"`
	TenantID       string    `json:"tenant_id"`
	Symbol         string    `json:"symbol"`
	RealizedR      float64   `json:"realized_r"`       // 本笔平仓实现的R
	EntrySlipTicks float64   `json:"entry_slip_ticks"` // 开仓滑点（tick）
	ExitSlipTicks  float64   `json:"exit_slip_ticks"`  // 平仓滑点（tick）
	ClosedAt       time.Time `json:"closed_at"`
}

// 去重键
func (f Fill) Key() string {
	return fmt.Sprintf("%s:%s", f.OrderID, f.ExecutionID)
}

// ==== 心理状态 ====

// 心理状态等级 1最差（禁止交易）5最好
type MentalLevel int

const (
	MentalCritical MentalLevel = iota + 1
	MentalPoor
	MentalFair
	MentalGood
	MentalExcellent
)

// 心理状态 按租户维护，每笔平仓或手动覆盖后更新
type MentalState struct {
	Level         MentalLevel
	CooldownUntil time.Time // 等级1触发的冷却截止
	LossStreak    int       // 连续亏损笔数
	ManualUntil   time.Time // 手动覆盖的生效期
	UpdatedAt     time.Time
}

// 是否处于冷却期
func (ms *MentalState) InCooldown(now time.Time) bool {
	return now.Before(ms.CooldownUntil)
}
