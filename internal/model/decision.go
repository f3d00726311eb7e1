package model

import "time"

// 拒绝原因码 机器可读，写入决策记录
type ReasonCode string

const (
	ReasonNone            ReasonCode = ""
	ReasonInsufficientBar ReasonCode = "insufficient_data"
	ReasonNoTradeRegime   ReasonCode = "regime_notrade"
	ReasonHTFDisagree     ReasonCode = "htf_ltf_disagreement"
	ReasonNewsBlackout    ReasonCode = "news_blackout"
	ReasonMentalState     ReasonCode = "mental_state_below_threshold"
	ReasonStopTooTight    ReasonCode = "stop_distance_below_minimum"
	ReasonSpreadTooWide   ReasonCode = "spread_above_maximum"
	ReasonPoorRiskReward  ReasonCode = "risk_reward_below_minimum"
	ReasonDailyLossLimit  ReasonCode = "daily_loss_limit_exceeded"
	ReasonWeeklyLossLimit ReasonCode = "weekly_loss_limit_exceeded"
	ReasonLosingStreak    ReasonCode = "consecutive_losing_days"
	ReasonConsistencyCap  ReasonCode = "daily_consistency_cap"
	ReasonNoSetup         ReasonCode = "no_setup"
	ReasonSizeBelowMin    ReasonCode = "size_below_minimum"
	ReasonExecSpread      ReasonCode = "execution_spread_too_wide"
	ReasonExecSlippage    ReasonCode = "execution_slippage_too_high"
	ReasonExecDepth       ReasonCode = "execution_depth_insufficient"
	ReasonExecUnavailable ReasonCode = "execution_guard_unavailable"
	ReasonPaused          ReasonCode = "pipeline_paused"
	ReasonFault           ReasonCode = "unhandled_module_fault"
	ReasonSignalExpired   ReasonCode = "signal_expired"
)

// 单个守卫的评估结果 顺序保留在Decision里做审计
type GateResult struct {
	Name   string     `json:"name"`
	Passed bool       `json:"passed"`
	Reason ReasonCode `json:"reason,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// 仓位计算明细 审计用
type SizingDetail struct {
	RiskBudget     float64 `json:"risk_budget"` // 本笔允许亏损的美元预算
	RegimeMult     float64 `json:"regime_mult"`
	ScalingMult    float64 `json:"scaling_mult"`
	MentalMult     float64 `json:"mental_mult"`
	StopDistance   float64 `json:"stop_distance"`    // 点
	DollarPerPoint float64 `json:"dollar_per_point"` // 每点美元价值
	Contracts      int     `json:"contracts"`
}

// 决策 每次管道调用有且只有一个输出，是审计日志的最小单元
// 要么是带最终仓位的放行信号，要么是带原因的拒绝，不存在部分生效
type Decision struct {
	ID        string       `json:"decision_id"`
	TenantID  string       `json:"tenant_id"`
	Symbol    string       `json:"symbol"`
	Timestamp time.Time    `json:"timestamp"`
	Regime    Regime       `json:"regime"`
	Gates     []GateResult `json:"gate_results"`

	Approved bool    `json:"approved"`
	Signal   *Signal `json:"signal,omitempty"` // 放行时非空

	RejectCode   ReasonCode `json:"reject_code,omitempty"`
	RejectDetail string     `json:"reject_detail,omitempty"`

	Sizing *SizingDetail `json:"sizing,omitempty"`
}

// 拒绝决策
func Rejected(tenant, symbol string, regime Regime, gates []GateResult, code ReasonCode, detail string) *Decision {
	return &Decision{
		TenantID:     tenant,
		Symbol:       symbol,
		Timestamp:    time.Now(),
		Regime:       regime,
		Gates:        gates,
		Approved:     false,
		RejectCode:   code,
		RejectDetail: detail,
	}
}

// 放行决策
func Approved(tenant string, regime Regime, gates []GateResult, sig *Signal, sizing *SizingDetail) *Decision {
	return &Decision{
		TenantID:  tenant,
		Symbol:    sig.Symbol,
		Timestamp: time.Now(),
		Regime:    regime,
		Gates:     gates,
		Approved:  true,
		Signal:    sig,
		Sizing:    sizing,
	}
}
