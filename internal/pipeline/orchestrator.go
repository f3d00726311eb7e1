package pipeline

import (
	"context"
	"fmt"
	"time"

	"quantgate/conf"
	"quantgate/internal/calendar"
	"quantgate/internal/feature"
	"quantgate/internal/fusion"
	"quantgate/internal/guard"
	"quantgate/internal/model"
	"quantgate/internal/regime"
	"quantgate/internal/risk"
	"quantgate/internal/sizer"
	"quantgate/internal/strategy"
	"quantgate/pkg/logger"

	"github.com/bwmarrin/snowflake"
)

// 决策编排器 单个租户的完整决策管道
// 每次调用有且只有一个Decision输出：要么放行（带最终张数），要么拒绝（带原因码）。
// 编排器本身不做并发保护，上层engine保证同一租户串行调用。

// K线窗口上限 防止内存无界增长
const maxWindowBars = 240

type Orchestrator struct {
	tenantID string

	extractor *feature.Extractor
	fusion    *fusion.Fusion
	cal       *calendar.Calendar
	governor  *risk.Governor
	mentalMgr *risk.MentalManager
	sizer     *sizer.Sizer

	preGuards *guard.Chain          // 新闻 → 心理，信号无关，策略之前跑
	sigGuards *guard.Chain          // 合规约束，需要具体信号
	execGuard *guard.ExecutionGuard // 定仓之后的最后一道闸
	slips     *risk.SlipTracker

	newsCfg conf.NewsConfig
	node    *snowflake.Node

	state       State
	pauseAction model.TripwireAction
	pausedUntil time.Time // 零值表示需要人工恢复

	bars       map[string][]model.Kline
	positions  []model.OpenPosition
	lastRegime map[string]model.Regime

	riskState   *model.RiskState
	mentalState *model.MentalState
}

type Deps struct {
	Extractor *feature.Extractor
	Fusion    *fusion.Fusion
	Calendar  *calendar.Calendar
	Governor  *risk.Governor
	Mental    *risk.MentalManager
	Sizer     *sizer.Sizer
	PreGuards *guard.Chain
	SigGuards *guard.Chain
	ExecGuard *guard.ExecutionGuard
	Slips     *risk.SlipTracker
	NewsCfg   conf.NewsConfig
	Node      *snowflake.Node
}

func NewOrchestrator(tenant string, d Deps) *Orchestrator {
	o := &Orchestrator{
		tenantID:    tenant,
		extractor:   d.Extractor,
		fusion:      d.Fusion,
		cal:         d.Calendar,
		governor:    d.Governor,
		mentalMgr:   d.Mental,
		sizer:       d.Sizer,
		preGuards:   d.PreGuards,
		sigGuards:   d.SigGuards,
		execGuard:   d.ExecGuard,
		slips:       d.Slips,
		newsCfg:     d.NewsCfg,
		node:        d.Node,
		state:       StateInitializing,
		bars:        make(map[string][]model.Kline),
		lastRegime:  make(map[string]model.Regime),
		riskState:   model.NewRiskState(tenant),
		mentalState: risk.NewMentalState(),
	}
	o.transition(StateReady)
	return o
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) RiskSnapshot() model.RiskState { return o.riskState.Snapshot() }

func (o *Orchestrator) MentalSnapshot() model.MentalState { return *o.mentalState }

// RegimeOf 某品种最近一次分类结果和是否已有结果
func (o *Orchestrator) RegimeOf(symbol string) (model.Regime, bool) {
	rg, ok := o.lastRegime[symbol]
	return rg, ok
}

// SetPositions 执行边界回报的持仓快照 决策时只读
func (o *Orchestrator) SetPositions(ps []model.OpenPosition) {
	o.positions = ps
}

func (o *Orchestrator) transition(to State) {
	if !canTransition(o.state, to) {
		// 迁移表外的跳转说明编排逻辑有bug，记下来但不panic
		logger.Errorf("[pipeline] %s 非法状态迁移 %s -> %s", o.tenantID, o.state, to)
	}
	o.state = to
}

// OnBar 处理一根收盘K线 返回唯一的决策
func (o *Orchestrator) OnBar(ctx context.Context, symbol string, bar model.Kline) (dec *model.Decision, err error) {
	// 任何组件panic都收敛为ERROR状态，绝不让一根坏K线带崩进程
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[pipeline] %s 未捕获异常: %v", o.tenantID, r)
			o.state = StateError
			dec = o.stamp(model.Rejected(o.tenantID, symbol, model.RegimeNoTrade, nil,
				model.ReasonFault, fmt.Sprintf("panic: %v", r)))
			err = nil
		}
	}()

	// K线窗口与高周期聚合先更新，暂停期间数据也不能断
	o.appendBar(symbol, bar)
	o.fusion.Update(symbol, bar)

	if stop := o.gatekeep(symbol, bar.Timestamp); stop != nil {
		return stop, nil
	}

	o.transition(StateAnalyzing)

	snap, ferr := o.extractor.Extract(symbol, o.bars[symbol], o.liveInput(symbol, bar.Timestamp))
	if ferr != nil {
		o.transition(StateReady)
		if model.IsInsufficientData(ferr) {
			return o.stamp(model.Rejected(o.tenantID, symbol, model.RegimeNoTrade, nil,
				model.ReasonInsufficientBar, ferr.Error())), nil
		}
		return nil, ferr
	}

	rg := regime.Classify(snap)
	o.lastRegime[symbol] = rg
	if rg == model.RegimeNoTrade {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, symbol, rg, nil,
			model.ReasonNoTradeRegime, "regime classified as notrade")), nil
	}

	// 信号无关的守卫先跑：黑名单窗口/心理状态不合格时策略根本不该被调用
	in := o.guardInput(symbol, snap, bar.Timestamp)
	gates, failed := o.preGuards.Evaluate(ctx, in)
	if failed != nil {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, symbol, rg, gates, failed.Reason, failed.Detail)), nil
	}

	sig, serr := o.firstSetup(snap, rg)
	if serr != nil {
		o.transition(StateReady)
		return nil, serr
	}
	if sig == nil {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, symbol, rg, gates,
			model.ReasonNoSetup, "no strategy produced a setup")), nil
	}

	o.transition(StateSignalGenerated)
	in.Signal = sig
	return o.decide(ctx, in, gates, rg, sig)
}

// OnExternalSignal 外部信号（webhook）走同一套守卫和定仓
// 区别只在信号来源：策略换成了外部，市场状态用最近的K线窗口现算
func (o *Orchestrator) OnExternalSignal(ctx context.Context, es model.ExternalSignal) (dec *model.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[pipeline] %s 未捕获异常: %v", o.tenantID, r)
			o.state = StateError
			dec = o.stamp(model.Rejected(o.tenantID, es.Symbol, model.RegimeNoTrade, nil,
				model.ReasonFault, fmt.Sprintf("panic: %v", r)))
			err = nil
		}
	}()

	now := time.Now()
	if es.IsExpired(now) {
		return o.stamp(model.Rejected(o.tenantID, es.Symbol, model.RegimeNoTrade, nil,
			model.ReasonSignalExpired, "external signal past expiry window")), nil
	}

	if stop := o.gatekeep(es.Symbol, now); stop != nil {
		return stop, nil
	}

	o.transition(StateAnalyzing)

	snap, ferr := o.extractor.Extract(es.Symbol, o.bars[es.Symbol], o.liveInput(es.Symbol, now))
	if ferr != nil {
		o.transition(StateReady)
		if model.IsInsufficientData(ferr) {
			return o.stamp(model.Rejected(o.tenantID, es.Symbol, model.RegimeNoTrade, nil,
				model.ReasonInsufficientBar, ferr.Error())), nil
		}
		return nil, ferr
	}

	rg := regime.Classify(snap)
	o.lastRegime[es.Symbol] = rg
	if rg == model.RegimeNoTrade {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, es.Symbol, rg, nil,
			model.ReasonNoTradeRegime, "regime classified as notrade")), nil
	}

	in := o.guardInput(es.Symbol, snap, now)
	gates, failed := o.preGuards.Evaluate(ctx, in)
	if failed != nil {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, es.Symbol, rg, gates, failed.Reason, failed.Detail)), nil
	}

	sig := es.ToSignal()
	sig.Regime = rg

	o.transition(StateSignalGenerated)
	in.Signal = &sig
	return o.decide(ctx, in, gates, rg, &sig)
}

// 暂停/错误状态的统一入口检查 返回非nil表示本次调用到此为止
func (o *Orchestrator) gatekeep(symbol string, now time.Time) *model.Decision {
	if o.state == StateError {
		return o.stamp(model.Rejected(o.tenantID, symbol, model.RegimeNoTrade, nil,
			model.ReasonFault, "pipeline in error state, manual resume required"))
	}

	if o.state == StatePaused {
		// 到期自动恢复 人工暂停（零值）只能靠Resume
		if !o.pausedUntil.IsZero() && now.After(o.pausedUntil) {
			o.resumeFromPause()
		} else {
			return o.stamp(model.Rejected(o.tenantID, symbol, model.RegimeNoTrade, nil,
				model.ReasonPaused, fmt.Sprintf("paused (%s)", o.pauseAction)))
		}
	}

	// 每根bar都便宜地查一次硬风控
	if tw := o.governor.CheckTripwires(o.riskState); !tw.CanTrade {
		o.pause(tw.Action, now)
		return o.stamp(model.Rejected(o.tenantID, symbol, model.RegimeNoTrade, nil,
			tw.Reason, tw.Detail))
	}
	return nil
}

// 信号确定后的后半程：HTF → 信号相关守卫 → 风控验证 → 定仓 → 执行质量
// gates带着前半程已通过的守卫结果进来，决策里能看到完整闸门轨迹
func (o *Orchestrator) decide(ctx context.Context, in *guard.Input, gates []model.GateResult, rg model.Regime, sig *model.Signal) (*model.Decision, error) {
	// 高低周期一致性
	ok, why := o.fusion.Gate(sig.Symbol, rg, sig.Direction)
	gates = append(gates, model.GateResult{Name: "htf", Passed: ok, Detail: why})
	if !ok {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, sig.Symbol, rg, gates, model.ReasonHTFDisagree, why)), nil
	}

	results, failed := o.sigGuards.Evaluate(ctx, in)
	gates = append(gates, results...)
	if failed != nil {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, sig.Symbol, rg, gates, failed.Reason, failed.Detail)), nil
	}

	// 风控验证 预算可能被DLL或一致性规则压缩
	val := o.governor.ValidateTrade(sig, o.riskState)
	gates = append(gates, model.GateResult{Name: "risk", Passed: val.Approved, Reason: val.Reason, Detail: val.Detail})
	if !val.Approved {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, sig.Symbol, rg, gates, val.Reason, val.Detail)), nil
	}

	// 定仓
	sizing := o.sizer.Size(sig, val.RiskBudget, o.riskState.ScalingMult, o.mentalMgr.Multiplier(o.mentalState))
	if sizing.Contracts <= 0 {
		detail := fmt.Sprintf("computed size 0 (budget=%.2f stop=%.4f)", val.RiskBudget, sig.StopDistance())
		gates = append(gates, model.GateResult{Name: "sizer", Passed: false, Reason: model.ReasonSizeBelowMin, Detail: detail})
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, sig.Symbol, rg, gates, model.ReasonSizeBelowMin, detail)), nil
	}
	sig.Contracts = sizing.Contracts
	gates = append(gates, model.GateResult{Name: "sizer", Passed: true})

	// 执行质量 放行前的最后检查
	er := o.execGuard.Evaluate(ctx, in)
	gates = append(gates, er)
	if !er.Passed {
		o.transition(StateReady)
		return o.stamp(model.Rejected(o.tenantID, sig.Symbol, rg, gates, er.Reason, er.Detail)), nil
	}

	o.transition(StateTrading)
	o.transition(StateReady)
	dec := o.stamp(model.Approved(o.tenantID, rg, gates, sig, &sizing))
	logger.Info("决策放行",
		logger.Pair("tenant", o.tenantID),
		logger.Pair("symbol", sig.Symbol),
		logger.Pair("strategy", sig.Strategy),
		logger.Pair("contracts", sig.Contracts),
	)
	return dec, nil
}

// 按注册顺序问询适配当前市场状态的策略，第一个给出setup的胜出
func (o *Orchestrator) firstSetup(snap *model.FeatureSnapshot, rg model.Regime) (*model.Signal, error) {
	for _, s := range strategy.ForRegime(rg) {
		sig, err := s.GenerateSignal(snap, rg, o.positions)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			return sig, nil
		}
	}
	return nil, nil
}

// ==== 成交与状态维护 ====

// ApplyFill 平仓回报记账（幂等去重由engine层做）
// 记账后立刻复查硬风控，触发就进入PAUSED
func (o *Orchestrator) ApplyFill(fill model.Fill) {
	o.governor.ApplyFill(o.riskState, fill)
	o.mentalMgr.OnTradeClosed(o.mentalState, o.riskState, fill.RealizedR, fill.ClosedAt)
	if o.slips != nil {
		o.slips.Record(fill.Symbol, fill.EntrySlipTicks, fill.ExitSlipTicks)
	}

	if tw := o.governor.CheckTripwires(o.riskState); !tw.CanTrade {
		o.pause(tw.Action, fill.ClosedAt)
	}
}

// OverrideMental 手动设定心理等级
func (o *Orchestrator) OverrideMental(level model.MentalLevel, effective time.Duration) {
	o.mentalMgr.Override(o.mentalState, level, effective, time.Now())
}

// RestoreRiskState 启动时从快照恢复风控账本 nil入参直接忽略
func (o *Orchestrator) RestoreRiskState(rs *model.RiskState) {
	if rs == nil {
		return
	}
	restored := rs.Snapshot()
	restored.TenantID = o.tenantID
	o.riskState = &restored
}

// ResetDay 日边界 连续亏损天数在这里推进
func (o *Orchestrator) ResetDay() {
	o.governor.ResetDay(o.riskState)
}

// ResetWeek 周边界
func (o *Orchestrator) ResetWeek() {
	o.governor.ResetWeek(o.riskState)
}

// Resume 人工恢复 连续亏损暂停和ERROR状态只有这条路
func (o *Orchestrator) Resume() {
	switch o.state {
	case StatePaused:
		o.resumeFromPause()
	case StateError:
		o.transition(StateReady)
		logger.Warnf("[pipeline] %s 从ERROR状态人工恢复", o.tenantID)
	}
}

func (o *Orchestrator) pause(action model.TripwireAction, now time.Time) {
	o.transition(StatePaused)
	o.pauseAction = action
	switch action {
	case model.ActionPauseDay:
		o.pausedUntil = nextDay(now)
	case model.ActionPauseWeek:
		o.pausedUntil = nextWeek(now)
	default:
		// 人工处置 没有自动恢复时间
		o.pausedUntil = time.Time{}
	}
	logger.Warn("管道暂停",
		logger.Pair("tenant", o.tenantID),
		logger.Pair("action", string(action)),
		logger.Pair("until", o.pausedUntil),
	)
}

func (o *Orchestrator) resumeFromPause() {
	o.transition(StateReady)
	o.pauseAction = model.ActionNone
	o.pausedUntil = time.Time{}
	logger.Infof("[pipeline] %s 暂停解除", o.tenantID)
}

// ==== 内部工具 ====

func (o *Orchestrator) appendBar(symbol string, bar model.Kline) {
	w := append(o.bars[symbol], bar)
	if len(w) > maxWindowBars {
		w = w[len(w)-maxWindowBars:]
	}
	o.bars[symbol] = w
}

// 组装特征提取的可选实时输入
func (o *Orchestrator) liveInput(symbol string, now time.Time) feature.LiveInput {
	in := feature.LiveInput{}
	if o.cal != nil {
		in.MinutesToNews = o.cal.MinutesToNext(symbol, calendar.ParseImpact(o.newsCfg.MinImpact), now)
	}
	if o.slips != nil {
		in.EntrySlipP95 = o.slips.EntryP95(symbol)
		in.ExitSlipP95 = o.slips.ExitP95(symbol)
	}
	return in
}

// 守卫输入 信号字段由调用方在策略产出后补上
func (o *Orchestrator) guardInput(symbol string, snap *model.FeatureSnapshot, now time.Time) *guard.Input {
	return &guard.Input{
		TenantID: o.tenantID,
		Symbol:   symbol,
		Features: snap,
		Risk:     o.riskState,
		Mental:   o.mentalState,
		Now:      now,
	}
}

// 决策编号
func (o *Orchestrator) stamp(dec *model.Decision) *model.Decision {
	if o.node != nil {
		dec.ID = o.node.Generate().String()
	}
	return dec
}

func nextDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func nextWeek(now time.Time) time.Time {
	// 下周一零点
	days := int(time.Monday - now.Weekday())
	if days <= 0 {
		days += 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, now.Location())
}
