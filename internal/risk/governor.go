package risk

import (
	"fmt"
	"math"
	"time"

	"quantgate/conf"
	"quantgate/internal/model"
	"quantgate/pkg/logger"
)

// 风控总督
// 硬风控（tripwire）是RiskState的纯函数，每根bar都可以便宜地查；
// 软调节（scaling）只在平仓事件后重算一次，结果一直生效到下次重算。

// 硬风控检查结果
type TripwireResult struct {
	CanTrade bool
	Action   model.TripwireAction
	Reason   model.ReasonCode
	Detail   string
}

// 交易验证结果 正常拒绝不是error
type Validation struct {
	Approved   bool
	RiskBudget float64 // 审批通过后允许的单笔风险（美元），可能被压缩
	Reason     model.ReasonCode
	Detail     string
}

type Governor struct {
	cfg conf.RiskConfig
}

func NewGovernor(cfg conf.RiskConfig) *Governor {
	return &Governor{cfg: cfg}
}

// CheckTripwires 硬止损检查 纯函数
// 顺序：日内 → 周 → 连续亏损天数，第一条命中就返回
func (g *Governor) CheckTripwires(rs *model.RiskState) TripwireResult {
	if rs.DailyR <= g.cfg.DailyStopR {
		return TripwireResult{
			CanTrade: false,
			Action:   model.ActionPauseDay,
			Reason:   model.ReasonDailyLossLimit,
			Detail:   fmt.Sprintf("daily loss limit exceeded: %.2fR <= %.2fR", rs.DailyR, g.cfg.DailyStopR),
		}
	}
	if rs.WeeklyR <= g.cfg.WeeklyStopR {
		return TripwireResult{
			CanTrade: false,
			Action:   model.ActionPauseWeek,
			Reason:   model.ReasonWeeklyLossLimit,
			Detail:   fmt.Sprintf("weekly loss limit exceeded: %.2fR <= %.2fR", rs.WeeklyR, g.cfg.WeeklyStopR),
		}
	}
	if rs.ConsecutiveLossDays >= g.cfg.MaxLossDays {
		return TripwireResult{
			CanTrade: false,
			Action:   model.ActionPauseReset,
			Reason:   model.ReasonLosingStreak,
			Detail:   fmt.Sprintf("%d consecutive losing days, manual reset required", rs.ConsecutiveLossDays),
		}
	}
	return TripwireResult{CanTrade: true}
}

// EvaluateScaling 软调节 每笔平仓后调用一次，不要按bar调用
// 盈利因子差就缩30%，好就放大15%，放大封顶
func (g *Governor) EvaluateScaling(rs *model.RiskState) {
	pf := rs.ProfitFactor()
	old := rs.ScalingMult
	switch {
	case pf < 1.10:
		rs.ScalingMult *= 0.70
	case pf >= 1.30:
		rs.ScalingMult = math.Min(rs.ScalingMult*1.15, g.cfg.ScaleCeiling)
	}
	if rs.ScalingMult != old {
		logger.Infof("[risk] %s 调节乘数 %.3f -> %.3f (pf=%.2f)", rs.TenantID, old, rs.ScalingMult, pf)
	}
}

// ValidateTrade 开仓前的最后风控验证
// 1. 硬风控复查
// 2. 单笔风险 ≤ min(配置R, 剩余日亏损额度的10%)
// 3. 一致性规则：单日利润占比过高时压缩风险
func (g *Governor) ValidateTrade(sig *model.Signal, rs *model.RiskState) Validation {
	if tw := g.CheckTripwires(rs); !tw.CanTrade {
		return Validation{Approved: false, Reason: tw.Reason, Detail: tw.Detail}
	}

	// 剩余日亏损额度（美元）已实现亏损按每R的美元价值折算
	realizedLossUSD := 0.0
	if rs.DailyR < 0 {
		realizedLossUSD = -rs.DailyR * g.cfg.RiskPerTrade
	}
	remaining := g.cfg.DailyLossUSD - realizedLossUSD
	if remaining <= 0 {
		return Validation{
			Approved: false,
			Reason:   model.ReasonDailyLossLimit,
			Detail:   "daily loss limit budget exhausted",
		}
	}

	budget := math.Min(g.cfg.RiskPerTrade, remaining*0.10)

	// 一致性规则：今天的利润不能撑起整周的业绩
	if g.consistencyBreached(rs) {
		budget *= 0.5
	}

	if budget <= 0 {
		return Validation{
			Approved: false,
			Reason:   model.ReasonDailyLossLimit,
			Detail:   "per-trade risk budget reduced to zero",
		}
	}
	return Validation{Approved: true, RiskBudget: budget}
}

// 单日利润占滚动总利润的比例是否超标
func (g *Governor) consistencyBreached(rs *model.RiskState) bool {
	var total, maxDay float64
	for _, p := range rs.DailyProfits {
		if p > 0 {
			total += p
			maxDay = math.Max(maxDay, p)
		}
	}
	if total <= 0 {
		return false
	}
	return maxDay/total > g.cfg.ConsistencyPct
}

// 最近平仓样本的滚动窗口大小
const recentTradeWindow = 20

// ApplyFill 把一笔平仓结果记入风控状态
// 幂等由上层Deduper保证，这里只管累加
func (g *Governor) ApplyFill(rs *model.RiskState, fill model.Fill) {
	rs.DailyR += fill.RealizedR
	rs.WeeklyR += fill.RealizedR

	day := fill.ClosedAt.Format("2006-01-02")
	rs.DailyProfits[day] += fill.RealizedR * g.cfg.RiskPerTrade

	if fill.RealizedR >= 0 {
		rs.RecentWins = appendCapped(rs.RecentWins, fill.RealizedR, recentTradeWindow)
	} else {
		rs.RecentLosses = appendCapped(rs.RecentLosses, fill.RealizedR, recentTradeWindow)
	}
	rs.UpdatedAt = time.Now()

	// 平仓事件是软调节的唯一触发点
	g.EvaluateScaling(rs)
}

// ResetDay 日边界清零（由外部调度方调用）
func (g *Governor) ResetDay(rs *model.RiskState) {
	if rs.DailyR < 0 {
		rs.ConsecutiveLossDays++
	} else if rs.DailyR > 0 {
		rs.ConsecutiveLossDays = 0
	}
	rs.DailyR = 0
	rs.UpdatedAt = time.Now()
}

// ResetWeek 周边界清零
func (g *Governor) ResetWeek(rs *model.RiskState) {
	rs.WeeklyR = 0
	rs.DailyProfits = make(map[string]float64)
	rs.UpdatedAt = time.Now()
}

func appendCapped(list []float64, v float64, cap int) []float64 {
	list = append(list, v)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}
